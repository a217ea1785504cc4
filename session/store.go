package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrBackendUnavailable wraps every failure reported by a [Backend].
var ErrBackendUnavailable = errors.New("session backend unavailable")

// ErrRecordCorrupt is returned by backends when a stored record cannot be decoded.
var ErrRecordCorrupt = errors.New("session record corrupt")

// ErrEmptyToken is returned by [Store.Establish] when the token is empty.
var ErrEmptyToken = errors.New("session token empty")

// Stable persisted field names. Every backend uses exactly these names.
const (
	FieldSessionID    = "sid"
	FieldToken        = "token"
	FieldExpiresAt    = "expires_at"
	FieldLastActivity = "last_activity"
	FieldUser         = "user"
)

// Backend persists the record of one profile.
//
// Implementations must make Replace and Clear atomic for all fields, and must evaluate the
// conditions of Extend and ReplaceUser inside the same atomic step as the write.
type Backend interface {
	// Load returns the stored record, or nil when none exists.
	Load(ctx context.Context) (*Record, error)
	// Replace overwrites the whole record.
	Replace(ctx context.Context, rec *Record) error
	// Extend updates LastActivityAt/ExpiresAt only if the stored record has session id sid
	// and has not expired at now. It reports whether the write happened.
	Extend(ctx context.Context, sid string, lastActivity, expiresAt, now time.Time) (bool, error)
	// ReplaceUser swaps the user snapshot only if the stored record has session id sid.
	ReplaceUser(ctx context.Context, sid string, user *User) (bool, error)
	// Clear removes the record and reports whether one existed.
	Clear(ctx context.Context) (bool, error)
}

// Store is the single owner of the session record for one client.
//
// It keeps an in-memory copy of the record, but every read reloads from the [Backend]
// first; the cache only serves to detect what changed since the previous read.
type Store struct {
	backend Backend
	timeout time.Duration
	now     func() time.Time

	mu     sync.Mutex
	cached *Record
}

// NewStore creates a [Store] over backend. timeout is the inactivity window used to derive
// ExpiresAt; now is the clock (nil means time.Now).
func NewStore(backend Backend, timeout time.Duration, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		backend: backend,
		timeout: timeout,
		now:     now,
	}
}

// Timeout returns the inactivity window.
func (s *Store) Timeout() time.Duration {
	return s.timeout
}

func (s *Store) clock() time.Time {
	return s.now().Truncate(time.Millisecond)
}

// Current reloads the record from the backend, refreshes the cache and returns a copy.
// It returns nil, nil when no session is stored.
func (s *Store) Current(ctx context.Context) (*Record, error) {
	rec, err := s.backend.Load(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cached = rec.Clone()
	s.mu.Unlock()

	return rec.Clone(), nil
}

// Cached returns the record seen by the last backend round-trip without reloading.
func (s *Store) Cached() *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cached.Clone()
}

// IsActive reports whether a stored, unexpired session exists. Backend failures count as
// inactive.
func (s *Store) IsActive(ctx context.Context) bool {
	rec, err := s.Current(ctx)
	if err != nil {
		return false
	}
	return rec.Active(s.clock())
}

// Establish writes a new record with a fresh session id and lastActivity = now.
// It replaces whatever record was stored before.
func (s *Store) Establish(ctx context.Context, token string, user *User) (*Record, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}
	now := s.clock()
	rec := &Record{
		SessionID:      uuid.NewString(),
		Token:          token,
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.timeout),
	}
	if user != nil {
		u := *user
		rec.User = &u
	}

	if err := s.backend.Replace(ctx, rec); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cached = rec.Clone()
	s.mu.Unlock()

	return rec.Clone(), nil
}

// Touch moves lastActivity to now and recomputes ExpiresAt.
//
// Touch never resurrects a session. If nothing is stored, the stored record already expired,
// or the record is replaced between the load and the write, nothing is written and false is
// returned.
func (s *Store) Touch(ctx context.Context) (bool, error) {
	rec, err := s.Current(ctx)
	if err != nil {
		return false, err
	}
	now := s.clock()
	if !rec.Active(now) {
		return false, nil
	}

	next := now.Add(s.timeout)
	ok, err := s.backend.Extend(ctx, rec.SessionID, now, next, now)
	if err != nil {
		return false, err
	}
	if !ok {
		// Lost a race with a clear or a replace; resync and report the no-op.
		_, _ = s.Current(ctx)
		return false, nil
	}

	s.mu.Lock()
	if s.cached != nil && s.cached.SessionID == rec.SessionID {
		s.cached.LastActivityAt = now
		s.cached.ExpiresAt = next
	}
	s.mu.Unlock()

	return true, nil
}

// SetUser replaces the user snapshot of the current session. It is a no-op (false) when
// no session is stored.
func (s *Store) SetUser(ctx context.Context, user User) (bool, error) {
	rec, err := s.Current(ctx)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}

	ok, err := s.backend.ReplaceUser(ctx, rec.SessionID, &user)
	if err != nil || !ok {
		return ok, err
	}

	s.mu.Lock()
	if s.cached != nil && s.cached.SessionID == rec.SessionID {
		u := user
		s.cached.User = &u
	}
	s.mu.Unlock()

	return true, nil
}

// Clear removes the record. It is safe to call repeatedly; the result reports whether this
// call removed something.
func (s *Store) Clear(ctx context.Context) (bool, error) {
	removed, err := s.backend.Clear(ctx)

	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()

	return removed, err
}

func encodeUser(u *User) (string, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeUser(raw string) (*User, error) {
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("%w: user: %v", ErrRecordCorrupt, err)
	}
	return &u, nil
}
