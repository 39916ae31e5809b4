package engagedb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"igreply/internal/errs"
	"igreply/internal/model"
)

// DB wraps the SQLite database holding engagement history and the
// credential row. All writes are single statements so concurrent callers
// cannot lose an update.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil { return nil, err }
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil { return nil, err }
	db := &DB{sql: d}
	if err := db.migrate(); err != nil { _ = d.Close(); return nil, err }
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS engagement (
	  user_id TEXT PRIMARY KEY,
	  first_seen INTEGER NOT NULL,
	  last_contacted INTEGER,
	  message_count INTEGER NOT NULL DEFAULT 0,
	  first_media_reply_sent INTEGER,
	  username TEXT,
	  full_name TEXT,
	  profile_pic TEXT,
	  profile_last_refreshed INTEGER
	);
	CREATE TABLE IF NOT EXISTS credential (
	  id INTEGER PRIMARY KEY CHECK (id=1),
	  access_token TEXT NOT NULL,
	  expires_at INTEGER,
	  updated_at INTEGER NOT NULL
	);
	`)
	return err
}

// UpsertOutboundSend records that we sent a message to userID at now:
// first call creates the row with message_count 1, later calls bump the
// count and move last_contacted forward.
func (d *DB) UpsertOutboundSend(ctx context.Context, userID string, now time.Time) error {
	_, err := d.sql.ExecContext(ctx, `
	INSERT INTO engagement(user_id, first_seen, last_contacted, message_count) VALUES(?,?,?,1)
	ON CONFLICT(user_id) DO UPDATE SET
	  last_contacted=excluded.last_contacted,
	  message_count=message_count+1`,
		userID, now.Unix(), now.Unix())
	if err != nil { return errs.NewStorage("upsert send", err) }
	return nil
}

// RecordFirstMediaSend is UpsertOutboundSend plus a set-once stamp on
// first_media_reply_sent. COALESCE keeps the earliest stamp even when two
// sends race; the whole thing is one statement.
func (d *DB) RecordFirstMediaSend(ctx context.Context, userID string, now time.Time) error {
	_, err := d.sql.ExecContext(ctx, `
	INSERT INTO engagement(user_id, first_seen, last_contacted, message_count, first_media_reply_sent) VALUES(?,?,?,1,?)
	ON CONFLICT(user_id) DO UPDATE SET
	  last_contacted=excluded.last_contacted,
	  message_count=message_count+1,
	  first_media_reply_sent=COALESCE(engagement.first_media_reply_sent, excluded.first_media_reply_sent)`,
		userID, now.Unix(), now.Unix(), now.Unix())
	if err != nil { return errs.NewStorage("record media send", err) }
	return nil
}

// IsFirstMediaSender reports whether userID has never received a media
// reply: true when no row exists or the stamp is still null.
func (d *DB) IsFirstMediaSender(ctx context.Context, userID string) (bool, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT first_media_reply_sent FROM engagement WHERE user_id=?`, userID)
	var ts sql.NullInt64
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) { return true, nil }
		return false, errs.NewStorage("read media stamp", err)
	}
	return !ts.Valid, nil
}

// IsNewUser reports whether no engagement row exists at all for userID.
func (d *DB) IsNewUser(ctx context.Context, userID string) (bool, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT 1 FROM engagement WHERE user_id=?`, userID)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) { return true, nil }
		return false, errs.NewStorage("read row", err)
	}
	return false, nil
}

// LastContacted returns the last outbound-send time for userID; found is
// false when there is no row or we never sent to them.
func (d *DB) LastContacted(ctx context.Context, userID string) (time.Time, bool, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT last_contacted FROM engagement WHERE user_id=?`, userID)
	var ts sql.NullInt64
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) { return time.Time{}, false, nil }
		return time.Time{}, false, errs.NewStorage("read last contacted", err)
	}
	if !ts.Valid { return time.Time{}, false, nil }
	return time.Unix(ts.Int64, 0).UTC(), true, nil
}

// Get returns the full engagement row for userID.
func (d *DB) Get(ctx context.Context, userID string) (model.Engagement, bool, error) {
	row := d.sql.QueryRowContext(ctx, `
	SELECT first_seen, last_contacted, message_count, first_media_reply_sent
	FROM engagement WHERE user_id=?`, userID)
	var e model.Engagement
	var firstSeen int64
	var lastContacted, mediaSent sql.NullInt64
	if err := row.Scan(&firstSeen, &lastContacted, &e.MessageCount, &mediaSent); err != nil {
		if errors.Is(err, sql.ErrNoRows) { return e, false, nil }
		return e, false, errs.NewStorage("read engagement", err)
	}
	e.UserID = userID
	e.FirstSeen = time.Unix(firstSeen, 0).UTC()
	if lastContacted.Valid { e.LastContacted = time.Unix(lastContacted.Int64, 0).UTC() }
	if mediaSent.Valid { e.FirstMediaReplySent = time.Unix(mediaSent.Int64, 0).UTC() }
	return e, true, nil
}

// GetProfile returns the cached profile and when it was last refreshed;
// found is false until SetProfile has run for this user.
func (d *DB) GetProfile(ctx context.Context, userID string) (model.Profile, time.Time, bool, error) {
	row := d.sql.QueryRowContext(ctx, `
	SELECT username, full_name, profile_pic, profile_last_refreshed
	FROM engagement WHERE user_id=?`, userID)
	var p model.Profile
	var username, fullName, pic sql.NullString
	var refreshed sql.NullInt64
	if err := row.Scan(&username, &fullName, &pic, &refreshed); err != nil {
		if errors.Is(err, sql.ErrNoRows) { return p, time.Time{}, false, nil }
		return p, time.Time{}, false, errs.NewStorage("read profile", err)
	}
	if !refreshed.Valid { return p, time.Time{}, false, nil }
	p.UserID = userID
	p.Username = username.String
	p.FullName = fullName.String
	p.ProfilePic = pic.String
	return p, time.Unix(refreshed.Int64, 0).UTC(), true, nil
}

// SetProfile caches profile data without touching the engagement counters.
func (d *DB) SetProfile(ctx context.Context, p model.Profile, now time.Time) error {
	_, err := d.sql.ExecContext(ctx, `
	INSERT INTO engagement(user_id, first_seen, username, full_name, profile_pic, profile_last_refreshed) VALUES(?,?,?,?,?,?)
	ON CONFLICT(user_id) DO UPDATE SET
	  username=excluded.username,
	  full_name=excluded.full_name,
	  profile_pic=excluded.profile_pic,
	  profile_last_refreshed=excluded.profile_last_refreshed`,
		p.UserID, now.Unix(), nullStr(p.Username), nullStr(p.FullName), nullStr(p.ProfilePic), now.Unix())
	if err != nil { return errs.NewStorage("set profile", err) }
	return nil
}

// GetCredential returns the stored credential, if any.
func (d *DB) GetCredential(ctx context.Context) (model.Credential, bool, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT access_token, expires_at, updated_at FROM credential WHERE id=1`)
	var c model.Credential
	var expires sql.NullInt64
	var updated int64
	if err := row.Scan(&c.AccessToken, &expires, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) { return c, false, nil }
		return c, false, errs.NewStorage("read credential", err)
	}
	if expires.Valid { c.ExpiresAt = time.Unix(expires.Int64, 0).UTC() }
	c.UpdatedAt = time.Unix(updated, 0).UTC()
	return c, true, nil
}

// PutCredential replaces the stored credential. A zero expiresAt is stored
// as null ("no known expiry").
func (d *DB) PutCredential(ctx context.Context, token string, expiresAt, now time.Time) error {
	var exp any
	if !expiresAt.IsZero() { exp = expiresAt.Unix() }
	_, err := d.sql.ExecContext(ctx, `
	INSERT INTO credential(id, access_token, expires_at, updated_at) VALUES(1,?,?,?)
	ON CONFLICT(id) DO UPDATE SET
	  access_token=excluded.access_token,
	  expires_at=excluded.expires_at,
	  updated_at=excluded.updated_at`,
		token, exp, now.Unix())
	if err != nil { return errs.NewStorage("put credential", err) }
	return nil
}

func nullStr(s string) any {
	if s == "" { return nil }
	return s
}
