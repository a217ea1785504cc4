package session

import "time"

// User is the identity snapshot fetched once after authentication.
//
// It is owned by the [Store] and is always replaced whole, never field by field.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Record is the single live session of a profile.
//
// ExpiresAt is derived from LastActivityAt by the [Store]; backends persist it but never
// compute it.
type Record struct {
	SessionID      string
	Token          string
	User           *User
	LastActivityAt time.Time
	ExpiresAt      time.Time
}

// Active reports whether the record still has time left at now.
func (r *Record) Active(now time.Time) bool {
	return r != nil && r.Token != "" && now.Before(r.ExpiresAt)
}

// Remaining returns ExpiresAt - now, clamped at zero.
func (r *Record) Remaining(now time.Time) time.Duration {
	if r == nil {
		return 0
	}
	d := r.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Clone returns a deep copy so callers can never mutate the cached record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.User != nil {
		u := *r.User
		out.User = &u
	}
	return &out
}

func unixMilli(ms int64) time.Time {
	return time.UnixMilli(ms)
}
