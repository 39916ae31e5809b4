package igclient

import (
	"context"
	"time"

	"igreply/internal/errs"
	"igreply/internal/store/engagedb"
)

// StoreTokenSource reads the access token from the credential store and
// rejects missing or expired credentials before a network call is made.
type StoreTokenSource struct {
	DB  *engagedb.DB
	Now func() time.Time
}

func (s *StoreTokenSource) Token(ctx context.Context) (string, error) {
	cred, found, err := s.DB.GetCredential(ctx)
	if err != nil {
		return "", err
	}
	if !found || cred.AccessToken == "" {
		return "", errs.ErrCredentialMissing
	}
	if cred.HasExpiry() && !cred.ExpiresAt.After(s.now()) {
		return "", errs.ErrCredentialExpired
	}
	return cred.AccessToken, nil
}

func (s *StoreTokenSource) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// StaticTokenSource returns a fixed token; used by tests and one-shot tools.
type StaticTokenSource string

func (s StaticTokenSource) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", errs.ErrCredentialMissing
	}
	return string(s), nil
}
