package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryBackend keeps the record in process memory. Several [Store] values may share one
// MemoryBackend to model clients that share a profile inside a single process.
type MemoryBackend struct {
	mu  sync.Mutex
	rec *Record
}

// NewMemoryBackend returns an empty [MemoryBackend].
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Load implements [Backend].
func (m *MemoryBackend) Load(ctx context.Context) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec.Clone(), nil
}

// Replace implements [Backend].
func (m *MemoryBackend) Replace(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	m.mu.Lock()
	m.rec = rec.Clone()
	m.mu.Unlock()
	return nil
}

// Extend implements [Backend].
func (m *MemoryBackend) Extend(ctx context.Context, sid string, lastActivity, expiresAt, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rec == nil || m.rec.SessionID != sid || !now.Before(m.rec.ExpiresAt) {
		return false, nil
	}
	m.rec.LastActivityAt = lastActivity
	m.rec.ExpiresAt = expiresAt
	return true, nil
}

// ReplaceUser implements [Backend].
func (m *MemoryBackend) ReplaceUser(ctx context.Context, sid string, user *User) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rec == nil || m.rec.SessionID != sid {
		return false, nil
	}
	if user == nil {
		m.rec.User = nil
		return true, nil
	}
	u := *user
	m.rec.User = &u
	return true, nil
}

// Clear implements [Backend].
func (m *MemoryBackend) Clear(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existed := m.rec != nil
	m.rec = nil
	return existed, nil
}
