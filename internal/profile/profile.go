package profile

import (
	"context"
	"time"

	"igreply/internal/logging"
	"igreply/internal/model"
	"igreply/internal/store/engagedb"
)

// maxAge is how long a cached profile stays valid before we ask the
// platform again.
const maxAge = 7 * 24 * time.Hour

// Fetcher is the platform call that resolves a profile.
type Fetcher interface {
	FetchProfile(ctx context.Context, userID string) (model.Profile, error)
}

// Cache reads profiles through the engagement store, refreshing from the
// platform at most once per week per user.
type Cache struct {
	DB      *engagedb.DB
	Fetcher Fetcher
	Now     func() time.Time
}

// Get returns the profile for userID: cached if fresh, fetched and stored
// otherwise. A failed fetch falls back to a synthesized display name so
// callers always get something presentable.
func (c *Cache) Get(ctx context.Context, userID string) model.Profile {
	now := c.now()
	cached, refreshedAt, found, err := c.DB.GetProfile(ctx, userID)
	if err == nil && found && now.Sub(refreshedAt) < maxAge {
		return cached
	}
	if err != nil {
		logging.Error("profile_cache_read_failed", map[string]any{"user_id": userID, "error": err.Error()})
	}
	fetched, err := c.Fetcher.FetchProfile(ctx, userID)
	if err != nil {
		logging.Error("profile_fetch_failed", map[string]any{"user_id": userID, "error": err.Error()})
		if found {
			return cached
		}
		return Fallback(userID)
	}
	if err := c.DB.SetProfile(ctx, fetched, now); err != nil {
		logging.Error("profile_cache_write_failed", map[string]any{"user_id": userID, "error": err.Error()})
	}
	return fetched
}

func (c *Cache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

// Fallback synthesizes a display name from the id's last 8 characters.
func Fallback(userID string) model.Profile {
	tail := userID
	if len(tail) > 8 {
		tail = tail[len(tail)-8:]
	}
	return model.Profile{UserID: userID, FullName: "User " + tail}
}
