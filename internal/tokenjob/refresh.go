package tokenjob

import (
	"context"
	"sync/atomic"
	"time"

	"igreply/internal/logging"
	"igreply/internal/metrics"
	"igreply/internal/model"
	"igreply/internal/notifier"
	"igreply/internal/store/engagedb"
)

const (
	// minAge bounds retry frequency: a credential written (or re-written)
	// less than this long ago is never refreshed again yet.
	minAge = 24 * time.Hour
	// nearExpiryWindow is how close to expiry a credential must be before
	// a refresh is worth attempting.
	nearExpiryWindow = 60 * 24 * time.Hour
)

// Status is the scheduler's verdict about the stored credential.
type Status int

const (
	StatusMissing Status = iota
	StatusNoExpiry
	StatusExpired
	StatusTooRecent
	StatusFresh
	StatusNearExpiry
)

func (s Status) String() string {
	switch s {
	case StatusMissing:
		return "missing"
	case StatusNoExpiry:
		return "no_expiry"
	case StatusExpired:
		return "expired"
	case StatusTooRecent:
		return "too_recent"
	case StatusFresh:
		return "fresh"
	case StatusNearExpiry:
		return "near_expiry"
	}
	return "unknown"
}

// Refresher is the external refresh endpoint; implemented by igclient.
type Refresher interface {
	Refresh(ctx context.Context, currentToken string) (newToken string, expiresIn int64, err error)
}

// Evaluate applies the refresh decision table. Only StatusNearExpiry makes
// the scheduler call the refresh endpoint.
func Evaluate(cred model.Credential, found bool, now time.Time) Status {
	if !found || cred.AccessToken == "" {
		return StatusMissing
	}
	if !cred.HasExpiry() {
		return StatusNoExpiry
	}
	if !cred.ExpiresAt.After(now) {
		return StatusExpired
	}
	if now.Sub(cred.UpdatedAt) < minAge {
		return StatusTooRecent
	}
	if cred.ExpiresAt.Sub(now) > nearExpiryWindow {
		return StatusFresh
	}
	return StatusNearExpiry
}

// RunOnce evaluates the stored credential and refreshes it when eligible.
// A failed refresh leaves the stored credential untouched; the next tick
// retries once the decision table allows it again.
func RunOnce(ctx context.Context, db *engagedb.DB, client Refresher, notify notifier.Notifier, now time.Time) (Status, error) {
	cred, found, err := db.GetCredential(ctx)
	if err != nil {
		return StatusMissing, err
	}
	status := Evaluate(cred, found, now)
	switch status {
	case StatusMissing:
		logging.Info("refresh_skip", map[string]any{"status": status.String()})
		return status, nil
	case StatusNoExpiry, StatusTooRecent, StatusFresh:
		logging.Info("refresh_skip", map[string]any{"status": status.String(), "updated_at": cred.UpdatedAt})
		return status, nil
	case StatusExpired:
		logging.Error("token_expired", map[string]any{"expires_at": cred.ExpiresAt})
		notify.ReportEvent(ctx, notifier.KindTokenExpired, "access token expired, re-authorization required", "")
		return status, nil
	}

	metrics.RefreshAttempts.Inc()
	logging.Info("refresh_attempt", map[string]any{"expires_at": cred.ExpiresAt})
	newToken, expiresIn, err := client.Refresh(ctx, cred.AccessToken)
	if err != nil {
		metrics.RefreshErrors.Inc()
		logging.Error("refresh_failed", map[string]any{"error": err.Error()})
		notify.ReportEvent(ctx, notifier.KindTokenRefreshFailed, "token refresh failed", err.Error())
		return status, err
	}
	var expiresAt time.Time
	if expiresIn > 0 {
		expiresAt = now.Add(time.Duration(expiresIn) * time.Second)
	}
	if err := db.PutCredential(ctx, newToken, expiresAt, now); err != nil {
		metrics.RefreshErrors.Inc()
		return status, err
	}
	logging.Info("refresh_ok", map[string]any{"new_expiry": expiresAt})
	return status, nil
}

// RunLoop runs RunOnce immediately and then on every tick until ctx is
// cancelled. A tick that fires while the previous run is still in flight
// is skipped, never stacked.
func RunLoop(ctx context.Context, db *engagedb.DB, client Refresher, notify notifier.Notifier, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	var inFlight atomic.Bool
	run := func() {
		if !inFlight.CompareAndSwap(false, true) {
			logging.Warn("refresh_tick_skipped", map[string]any{"reason": "previous tick in flight"})
			return
		}
		defer inFlight.Store(false)
		if _, err := RunOnce(ctx, db, client, notify, time.Now().UTC()); err != nil {
			logging.Error("refresh_once_error", map[string]any{"error": err.Error()})
		}
	}
	run()
	for {
		select {
		case <-ctx.Done():
			logging.Info("refresh_loop_stop", nil)
			return ctx.Err()
		case <-t.C:
			go run()
		}
	}
}
