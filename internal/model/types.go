package model

import "time"

// Attachment is one attachment on an inbound direct message.
type Attachment struct {
	Type string
	URL  string
}

// Event is an inbound messaging event after transport decoding.
type Event struct {
	SenderID    string
	RecipientID string
	Text        string
	Attachments []Attachment
}

// Profile is the platform profile data we soft-cache per user.
type Profile struct {
	UserID     string
	Username   string
	FullName   string
	ProfilePic string
}

// Engagement is one row of per-user reply history.
type Engagement struct {
	UserID              string
	FirstSeen           time.Time
	LastContacted       time.Time // zero if we never sent to this user
	MessageCount        int
	FirstMediaReplySent time.Time // zero until the first media reply
}

// Credential is the stored long-lived access token. ExpiresAt may be zero
// when the platform did not report an expiry.
type Credential struct {
	AccessToken string
	ExpiresAt   time.Time
	UpdatedAt   time.Time
}

// HasExpiry reports whether the credential carries a usable expiry.
func (c Credential) HasExpiry() bool { return !c.ExpiresAt.IsZero() }
