package throttle

import (
	"context"
	"time"

	"igreply/internal/store/engagedb"
)

// ShouldAcknowledge reports whether userID is outside the acknowledgment
// window: never contacted, or last contacted more than windowDays ago.
// Zero or negative windowDays degenerates to always true. Callers must run
// this before recording the send, not after.
func ShouldAcknowledge(ctx context.Context, db *engagedb.DB, userID string, windowDays int, now time.Time) (bool, error) {
	last, found, err := db.LastContacted(ctx, userID)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	// Not strictly-before: a zero window must stay "always send" even for
	// a contact recorded in the same second.
	return !last.After(now.AddDate(0, 0, -windowDays)), nil
}
