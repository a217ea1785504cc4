package goSession

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/session"
)

// Check performs one monitor evaluation.
//
// It reloads the record, adopts a session created by another client, logs out when the
// record vanished (LogoutExternal) or expired (LogoutTimeout), and otherwise reports Active
// or Warning with the remaining time. Backend failures leave the state unchanged. A record
// this manager logged out of but could not clear is cleared again, never adopted.
func (m *Manager) Check(ctx context.Context) Status {
	start := time.Now()
	defer func() { m.metrics.Observe(MetricCheckLatency, time.Since(start)) }()

	m.mu.Lock()
	if m.closed || m.logoutDone != nil {
		st := Status{State: m.state}
		m.mu.Unlock()
		return st
	}
	prev := m.state
	heldSID := m.sessionID
	epoch := m.epoch
	tomb := m.tombstone
	m.mu.Unlock()

	rec, err := m.store.Current(ctx)
	if err != nil {
		m.storeFailure("read", err)
		return m.statusSnapshot()
	}
	now := m.now()

	if tomb != "" {
		if rec != nil && rec.SessionID == tomb {
			m.retryClear(ctx, tomb)
			return m.statusSnapshot()
		}
		m.dropTombstone(tomb)
	}

	if rec == nil {
		if prev.Authenticated() {
			m.logoutIfEpoch(ctx, epoch, LogoutExternal)
			return Status{State: m.State()}
		}
		return Status{State: prev}
	}

	if rec.SessionID != heldSID {
		if !rec.Active(now) {
			if prev.Authenticated() {
				// Replaced by a session that has since expired as well.
				m.logoutIfEpoch(ctx, epoch, LogoutTimeout)
				return Status{State: m.State()}
			}
			return Status{State: prev}
		}
		if !m.adopt(ctx, epoch, rec) {
			return m.statusSnapshot()
		}
		epoch++
	}

	remaining := rec.ExpiresAt.Sub(now)
	if remaining <= 0 {
		m.logoutIfEpoch(ctx, epoch, LogoutTimeout)
		return Status{State: m.State(), ExpiresAt: rec.ExpiresAt}
	}

	if m.cfg.Token.HonorExpiryClaim {
		if exp, ok := jwt.ExpiresAt(rec.Token); ok && now.After(exp.Add(m.cfg.Token.ExpiryLeeway)) {
			m.logger.Info("goSession: token expiry claim passed", "session_id", rec.SessionID)
			m.logoutIfEpoch(ctx, epoch, LogoutUnauthorized)
			return Status{State: m.State()}
		}
	}

	next := StateActive
	if remaining <= m.cfg.Session.WarningWindow {
		next = StateWarning
	}
	status := Status{
		State:     next,
		Remaining: remaining,
		ExpiresAt: rec.ExpiresAt,
		User:      rec.User,
	}
	if next == StateWarning {
		status.RemainingSeconds = m.remainingSeconds(remaining)
	}

	m.mu.Lock()
	if m.epoch != epoch || m.logoutDone != nil {
		st := Status{State: m.state}
		m.mu.Unlock()
		return st
	}
	from := m.state
	m.user = rec.User
	fire := m.setStateLocked(next, status)
	m.mu.Unlock()
	fire()

	if from == StateActive && next == StateWarning {
		m.metrics.Inc(MetricWarningShown)
		m.emitAudit(ctx, AuditWarning, true, rec.SessionID, rec.User, nil, sessionMeta(rec.SessionID, status.RemainingSeconds))
	}
	return status
}

func (m *Manager) statusSnapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{State: m.state, User: m.user}
}

// logoutIfEpoch logs out unless a newer session was established or adopted meanwhile.
func (m *Manager) logoutIfEpoch(ctx context.Context, epoch uint64, reason LogoutReason) {
	m.mu.Lock()
	stale := m.epoch != epoch
	m.mu.Unlock()
	if stale {
		return
	}
	if err := m.Logout(ctx, reason); err != nil {
		m.logger.Warn("goSession: logout failed", "reason", reason.String(), "error", err)
	}
}

// retryClear repeats the clear that failed while logging out of sid.
func (m *Manager) retryClear(ctx context.Context, sid string) {
	if _, err := m.store.Clear(ctx); err != nil {
		m.storeFailure("clear", err)
		return
	}
	m.logger.Info("goSession: cleared session left behind by logout", "session_id", sid)
	m.dropTombstone(sid)
}

func (m *Manager) dropTombstone(sid string) {
	m.mu.Lock()
	if m.tombstone == sid {
		m.tombstone = ""
	}
	m.mu.Unlock()
}

// adopt takes over a live record written by another client.
func (m *Manager) adopt(ctx context.Context, epoch uint64, rec *session.Record) bool {
	m.mu.Lock()
	if m.epoch != epoch || m.logoutDone != nil || m.closed {
		m.mu.Unlock()
		return false
	}
	m.epoch++
	m.sessionID = rec.SessionID
	m.user = rec.User
	m.challenge = nil
	fire := m.setStateLocked(StateActive, Status{State: StateActive, ExpiresAt: rec.ExpiresAt, User: rec.User})
	m.startMonitorLocked()
	m.mu.Unlock()
	fire()

	m.metrics.Inc(MetricSessionAdopted)
	m.emitAudit(ctx, AuditSessionAdopted, true, rec.SessionID, rec.User, nil, nil)
	m.logger.Info("goSession: adopted session", "session_id", rec.SessionID)
	return true
}

// Resume adopts a live persisted record, typically at process start.
func (m *Manager) Resume(ctx context.Context) Status {
	return m.Check(ctx)
}

// Focus re-reconciles with the store when the client regains focus.
func (m *Manager) Focus(ctx context.Context) Status {
	return m.Check(ctx)
}

// ContinueSession is the "stay signed in" command of the warning prompt. It extends the
// session and returns the state to Active.
func (m *Manager) ContinueSession(ctx context.Context) error {
	if m.isClosed() {
		return ErrManagerClosed
	}
	ok, err := m.store.Touch(ctx)
	if err != nil {
		m.storeFailure("touch", err)
		return err
	}
	if !ok {
		m.Check(ctx)
		return ErrNoSession
	}
	m.metrics.Inc(MetricSessionContinued)
	m.metrics.Inc(MetricSessionTouched)

	st := m.Check(ctx)
	m.emitAudit(ctx, AuditSessionContinued, true, m.currentSessionID(), st.User, nil, nil)
	m.poke()
	return nil
}

func (m *Manager) currentSessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// poke makes the monitor re-evaluate promptly.
func (m *Manager) poke() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// startMonitorLocked starts the background monitor. The caller must hold m.mu.
func (m *Manager) startMonitorLocked() {
	if m.cfg.Monitor.Disabled || m.closed || m.monitorCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.monitorCancel = cancel
	m.monitorDone = done
	go m.runMonitor(ctx, done)
}

func (m *Manager) runMonitor(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(m.cfg.Monitor.FastInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.wake:
		case <-timer.C:
		}

		st := m.Check(ctx)
		if ctx.Err() != nil {
			return
		}
		if !st.State.Authenticated() {
			// Leave the slot free so a later establish or adopt can start a fresh monitor.
			m.mu.Lock()
			if m.monitorDone == done {
				m.monitorCancel = nil
				m.monitorDone = nil
			}
			m.mu.Unlock()
			return
		}
		timer.Reset(m.nextInterval(st))
	}
}

// nextInterval polls fast near expiry and slowly otherwise.
func (m *Manager) nextInterval(st Status) time.Duration {
	if st.Remaining <= m.cfg.Session.WarningWindow+m.cfg.Monitor.SlowInterval {
		return m.cfg.Monitor.FastInterval
	}
	return m.cfg.Monitor.SlowInterval
}
