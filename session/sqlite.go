package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS session_records (
	profile       TEXT PRIMARY KEY,
	sid           TEXT NOT NULL,
	token         TEXT NOT NULL,
	expires_at    INTEGER NOT NULL,
	last_activity INTEGER NOT NULL,
	"user"        TEXT NOT NULL DEFAULT 'null'
)`

// SQLiteBackend stores one row per profile in a SQLite database. Several processes may open
// the same database file to share a profile.
type SQLiteBackend struct {
	db      *sql.DB
	profile string
	owned   bool
}

// OpenSQLiteBackend opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for a private in-memory database.
func OpenSQLiteBackend(ctx context.Context, path, profile string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	b, err := NewSQLiteBackend(ctx, db, profile)
	if err != nil {
		db.Close()
		return nil, err
	}
	b.owned = true
	return b, nil
}

// NewSQLiteBackend uses an already opened database. The caller keeps ownership of db.
func NewSQLiteBackend(ctx context.Context, db *sql.DB, profile string) (*SQLiteBackend, error) {
	if profile == "" {
		profile = "default"
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("migrate session_records: %w", err)
	}
	return &SQLiteBackend{db: db, profile: profile}, nil
}

// Close closes the database when it was opened by [OpenSQLiteBackend].
func (b *SQLiteBackend) Close() error {
	if !b.owned {
		return nil
	}
	return b.db.Close()
}

// Load implements [Backend].
func (b *SQLiteBackend) Load(ctx context.Context) (*Record, error) {
	var (
		sid, token, user string
		exp, last        int64
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT sid, token, expires_at, last_activity, "user" FROM session_records WHERE profile = ?`,
		b.profile,
	).Scan(&sid, &token, &exp, &last, &user)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	rec, err := recordFromFields(map[string]string{
		FieldSessionID:    sid,
		FieldToken:        token,
		FieldExpiresAt:    fmt.Sprint(exp),
		FieldLastActivity: fmt.Sprint(last),
		FieldUser:         user,
	})
	if err != nil {
		if _, err := b.Clear(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return rec, nil
}

// Replace implements [Backend].
func (b *SQLiteBackend) Replace(ctx context.Context, rec *Record) error {
	user, err := encodeUser(rec.User)
	if err != nil {
		return err
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO session_records (profile, sid, token, expires_at, last_activity, "user")
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.profile, rec.SessionID, rec.Token, rec.ExpiresAt.UnixMilli(), rec.LastActivityAt.UnixMilli(), user,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Extend implements [Backend].
func (b *SQLiteBackend) Extend(ctx context.Context, sid string, lastActivity, expiresAt, now time.Time) (bool, error) {
	res, err := b.db.ExecContext(ctx,
		`UPDATE session_records SET last_activity = ?, expires_at = ?
		 WHERE profile = ? AND sid = ? AND expires_at > ?`,
		lastActivity.UnixMilli(), expiresAt.UnixMilli(), b.profile, sid, now.UnixMilli(),
	)
	return affected(res, err)
}

// ReplaceUser implements [Backend].
func (b *SQLiteBackend) ReplaceUser(ctx context.Context, sid string, user *User) (bool, error) {
	raw, err := encodeUser(user)
	if err != nil {
		return false, err
	}
	res, err := b.db.ExecContext(ctx,
		`UPDATE session_records SET "user" = ? WHERE profile = ? AND sid = ?`,
		raw, b.profile, sid,
	)
	return affected(res, err)
}

// Clear implements [Backend].
func (b *SQLiteBackend) Clear(ctx context.Context) (bool, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM session_records WHERE profile = ?`, b.profile)
	return affected(res, err)
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return n > 0, nil
}
