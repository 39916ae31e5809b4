package engagedb

import (
	"context"
	"sync"
	"testing"
	"time"

	"igreply/internal/model"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil { t.Fatal(err) }
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestUpsertOutboundSendCountsEveryCall(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := db.UpsertOutboundSend(ctx, "u1", base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}
	e, found, err := db.Get(ctx, "u1")
	if err != nil { t.Fatal(err) }
	if !found { t.Fatal("expected row") }
	if e.MessageCount != 5 {
		t.Fatalf("message_count = %d, want 5", e.MessageCount)
	}
	if !e.LastContacted.Equal(base.Add(4 * time.Minute)) {
		t.Fatalf("last_contacted = %v, want last call time", e.LastContacted)
	}
	if !e.FirstSeen.Equal(base) {
		t.Fatalf("first_seen = %v, want first call time", e.FirstSeen)
	}
}

func TestRecordFirstMediaSendIsSetOnce(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	first := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	if err := db.RecordFirstMediaSend(ctx, "u1", first); err != nil { t.Fatal(err) }
	if err := db.RecordFirstMediaSend(ctx, "u1", second); err != nil { t.Fatal(err) }
	e, _, err := db.Get(ctx, "u1")
	if err != nil { t.Fatal(err) }
	if !e.FirstMediaReplySent.Equal(first) {
		t.Fatalf("first_media_reply_sent = %v, want time of first call", e.FirstMediaReplySent)
	}
	if e.MessageCount != 2 {
		t.Fatalf("message_count = %d, want 2", e.MessageCount)
	}
}

func TestIsFirstMediaSender(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first, err := db.IsFirstMediaSender(ctx, "u1")
	if err != nil { t.Fatal(err) }
	if !first { t.Fatal("no row: expected first media sender") }

	// Plain sends do not consume first-media status
	if err := db.UpsertOutboundSend(ctx, "u1", now); err != nil { t.Fatal(err) }
	first, err = db.IsFirstMediaSender(ctx, "u1")
	if err != nil { t.Fatal(err) }
	if !first { t.Fatal("text-only history: expected first media sender") }

	if err := db.RecordFirstMediaSend(ctx, "u1", now); err != nil { t.Fatal(err) }
	first, err = db.IsFirstMediaSender(ctx, "u1")
	if err != nil { t.Fatal(err) }
	if first { t.Fatal("after media send: expected not first") }
}

func TestIsNewUser(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	isNew, err := db.IsNewUser(ctx, "u1")
	if err != nil { t.Fatal(err) }
	if !isNew { t.Fatal("expected new user") }
	if err := db.UpsertOutboundSend(ctx, "u1", time.Now().UTC()); err != nil { t.Fatal(err) }
	isNew, err = db.IsNewUser(ctx, "u1")
	if err != nil { t.Fatal(err) }
	if isNew { t.Fatal("expected known user") }
}

func TestConcurrentUpsertsLoseNoIncrement(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	now := time.Now().UTC()
	const n = 20
	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- db.UpsertOutboundSend(ctx, "u1", now)
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil { t.Fatal(err) }
	}
	e, _, err := db.Get(ctx, "u1")
	if err != nil { t.Fatal(err) }
	if e.MessageCount != n {
		t.Fatalf("message_count = %d after %d concurrent upserts", e.MessageCount, n)
	}
}

func TestConcurrentMediaSendsStampOnce(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = db.RecordFirstMediaSend(ctx, "u1", now)
		}()
	}
	wg.Wait()
	e, _, err := db.Get(ctx, "u1")
	if err != nil { t.Fatal(err) }
	if !e.FirstMediaReplySent.Equal(now) {
		t.Fatalf("first_media_reply_sent = %v, want %v", e.FirstMediaReplySent, now)
	}
}

func TestProfileRoundTripKeepsCounters(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := db.UpsertOutboundSend(ctx, "u1", now); err != nil { t.Fatal(err) }

	p := model.Profile{UserID: "u1", Username: "chef", FullName: "Chef One", ProfilePic: "https://example.com/p.jpg"}
	if err := db.SetProfile(ctx, p, now); err != nil { t.Fatal(err) }

	got, refreshedAt, found, err := db.GetProfile(ctx, "u1")
	if err != nil { t.Fatal(err) }
	if !found { t.Fatal("expected cached profile") }
	if got != p {
		t.Fatalf("profile = %+v, want %+v", got, p)
	}
	if !refreshedAt.Equal(now) {
		t.Fatalf("profile_last_refreshed = %v, want %v", refreshedAt, now)
	}

	e, _, err := db.Get(ctx, "u1")
	if err != nil { t.Fatal(err) }
	if e.MessageCount != 1 {
		t.Fatalf("SetProfile changed message_count to %d", e.MessageCount)
	}
}

func TestProfileAbsentForUnknownUser(t *testing.T) {
	db := openTest(t)
	_, _, found, err := db.GetProfile(context.Background(), "nobody")
	if err != nil { t.Fatal(err) }
	if found { t.Fatal("expected no profile") }
}

func TestCredentialPutReplaces(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, found, err := db.GetCredential(ctx)
	if err != nil { t.Fatal(err) }
	if found { t.Fatal("expected empty credential store") }

	exp1 := now.Add(60 * 24 * time.Hour)
	if err := db.PutCredential(ctx, "tok1", exp1, now); err != nil { t.Fatal(err) }
	later := now.Add(48 * time.Hour)
	exp2 := later.Add(60 * 24 * time.Hour)
	if err := db.PutCredential(ctx, "tok2", exp2, later); err != nil { t.Fatal(err) }

	cred, found, err := db.GetCredential(ctx)
	if err != nil { t.Fatal(err) }
	if !found { t.Fatal("expected credential") }
	if cred.AccessToken != "tok2" {
		t.Fatalf("access_token = %q, want full replacement", cred.AccessToken)
	}
	if !cred.ExpiresAt.Equal(exp2) || !cred.UpdatedAt.Equal(later) {
		t.Fatalf("expires_at=%v updated_at=%v, want %v %v", cred.ExpiresAt, cred.UpdatedAt, exp2, later)
	}
}

func TestCredentialNullExpiry(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := db.PutCredential(ctx, "tok", time.Time{}, now); err != nil { t.Fatal(err) }
	cred, found, err := db.GetCredential(ctx)
	if err != nil { t.Fatal(err) }
	if !found { t.Fatal("expected credential") }
	if cred.HasExpiry() {
		t.Fatalf("expected null expiry, got %v", cred.ExpiresAt)
	}
}
