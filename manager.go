package goSession

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/session"
)

// Manager is the session and authentication lifecycle manager of one client.
//
// Several managers may share a profile (through a shared backend); the persisted record is
// the source of truth and each manager reconciles with it on every read.
// A Manager is safe for concurrent use.
type Manager struct {
	id      string
	cfg     Config
	store   *session.Store
	gateway Gateway
	base    http.RoundTripper
	logger  *slog.Logger
	now     func() time.Time
	metrics *Metrics
	audit   *auditDispatcher

	logoutHooks []LogoutHook
	stateHooks  []StateHook

	activity *ActivityTracker
	exempt   map[string]struct{}
	wake     chan struct{}

	loginSeq atomic.Uint64

	mu        sync.Mutex
	state     State
	sessionID string
	user      *User
	challenge *TwoFactorChallenge
	// epoch changes whenever a session is established, adopted or ended. A monitor
	// evaluation only applies its result when the epoch did not move underneath it.
	epoch uint64
	// tombstone is the session logged out while the store could not be cleared. It is
	// never adopted, and Check retries the clear while the store still holds it.
	tombstone     string
	logoutDone    chan struct{}
	monitorCancel context.CancelFunc
	monitorDone   chan struct{}
	closed        bool
}

// ID identifies this manager in logs and audit metadata.
func (m *Manager) ID() string {
	return m.id
}

// Config returns a copy of the configuration.
func (m *Manager) Config() Config {
	return cloneConfig(m.cfg)
}

// Store returns the session store used by the manager.
func (m *Manager) Store() *session.Store {
	return m.store
}

// Activity returns the activity tracker bound to this manager.
func (m *Manager) Activity() *ActivityTracker {
	return m.activity
}

// State returns the last state computed by this manager without touching the store.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsActive reports whether the persisted record holds an unexpired session.
func (m *Manager) IsActive(ctx context.Context) bool {
	rec, err := m.store.Current(ctx)
	if err != nil {
		m.storeFailure("read", err)
		return false
	}
	return m.live(rec)
}

// CurrentUser returns the user snapshot of the persisted record, or nil.
func (m *Manager) CurrentUser(ctx context.Context) *User {
	rec, err := m.store.Current(ctx)
	if err != nil {
		m.storeFailure("read", err)
		return nil
	}
	if !m.live(rec) {
		return nil
	}
	return rec.User
}

// Token returns the bearer token of the active session.
func (m *Manager) Token(ctx context.Context) (string, error) {
	rec, err := m.store.Current(ctx)
	if err != nil {
		m.storeFailure("read", err)
		return "", err
	}
	if !m.live(rec) {
		return "", ErrNoSession
	}
	return rec.Token, nil
}

// live reports whether rec is unexpired and not a session this manager already ended.
func (m *Manager) live(rec *session.Record) bool {
	if !rec.Active(m.now()) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return rec.SessionID != m.tombstone
}

// PendingChallenge returns the outstanding second-factor challenge, if it has not aged out.
func (m *Manager) PendingChallenge() (TwoFactorChallenge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.challenge == nil {
		return TwoFactorChallenge{}, false
	}
	if m.now().Sub(m.challenge.IssuedAt) > m.cfg.TwoFactor.ChallengeTTL {
		m.challenge = nil
		return TwoFactorChallenge{}, false
	}
	return *m.challenge, true
}

// MetricsSnapshot copies the current counters and histograms.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	return m.metrics.Snapshot()
}

// AuditDropped returns how many audit events were dropped because the buffer stayed full.
func (m *Manager) AuditDropped() uint64 {
	return m.audit.Dropped()
}

// Close stops the monitor and flushes audit events. The persisted session is left in place
// so another client (or a later process) can keep using it.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cancel := m.monitorCancel
	done := m.monitorDone
	m.monitorCancel = nil
	m.monitorDone = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	m.audit.Close()
	return nil
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// setStateLocked records a transition and returns a function that fires the state hooks.
// The caller must hold m.mu and invoke the returned function after unlocking.
func (m *Manager) setStateLocked(next State, status Status) func() {
	prev := m.state
	if prev == next {
		return func() {}
	}
	m.state = next
	hooks := m.stateHooks
	return func() {
		for _, fn := range hooks {
			fn(prev, next, status)
		}
	}
}

func (m *Manager) emitAudit(ctx context.Context, eventType string, success bool, sid string, user *User, err error, meta map[string]string) {
	if m.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp: m.now(),
		EventType: eventType,
		SessionID: sid,
		Success:   success,
		Metadata:  meta,
	}
	if user != nil {
		event.UserID = user.ID
	}
	if err != nil {
		event.Error = err.Error()
	}
	m.audit.Emit(ctx, event)
}

func (m *Manager) storeFailure(op string, err error) {
	m.metrics.Inc(MetricStoreFailure)
	m.logger.Warn("goSession: store failure", "op", op, "error", err)
}

// remainingSeconds converts d per the configured rounding.
func (m *Manager) remainingSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	secs := int64(d / time.Second)
	if m.cfg.Monitor.Rounding == RoundCeil && d%time.Second != 0 {
		secs++
	}
	return secs
}
