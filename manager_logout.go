package goSession

import (
	"context"
	"strconv"
)

// Logout ends the session: it clears the persisted record, cancels the monitor, drops any
// pending second-factor challenge and, once per session, runs the logout hooks.
//
// Logout is idempotent. A call that arrives while another logout is running waits for it
// and returns nil; a call after the session already ended only re-clears the store.
// The final state is Expired for LogoutTimeout and SignedOut otherwise. When the store
// cannot be cleared the session is still ended locally; the record is never adopted again
// and Check retries the clear.
func (m *Manager) Logout(ctx context.Context, reason LogoutReason) error {
	m.mu.Lock()
	if done := m.logoutDone; done != nil {
		m.mu.Unlock()
		m.metrics.Inc(MetricLogoutDuplicate)
		select {
		case <-done:
		case <-ctx.Done():
		}
		return nil
	}

	done := make(chan struct{})
	m.logoutDone = done
	prev := m.state
	sid := m.sessionID
	user := m.user
	m.challenge = nil
	m.epoch++
	cancel := m.monitorCancel
	m.monitorCancel = nil
	m.monitorDone = nil
	m.mu.Unlock()

	// The monitor may be the caller, so it is cancelled but not awaited.
	if cancel != nil {
		cancel()
	}

	// ctx may belong to the monitor that was just cancelled.
	_, err := m.store.Clear(context.WithoutCancel(ctx))
	if err != nil {
		m.storeFailure("clear", err)
	}

	final := StateSignedOut
	if reason == LogoutTimeout {
		final = StateExpired
	}

	m.mu.Lock()
	fire := m.setStateLocked(final, Status{State: final})
	switch {
	case err == nil:
		m.tombstone = ""
	case sid != "":
		m.tombstone = sid
	}
	m.sessionID = ""
	m.user = nil
	m.logoutDone = nil
	m.mu.Unlock()
	close(done)

	if !prev.Authenticated() {
		m.metrics.Inc(MetricLogoutDuplicate)
		fire()
		return err
	}

	m.metrics.Inc(logoutMetric(reason))
	m.emitAudit(context.WithoutCancel(ctx), AuditLogout, true, sid, user, nil, map[string]string{"reason": reason.String()})
	m.logger.Info("goSession: logged out", "reason", reason.String(), "session_id", sid)

	fire()
	event := LogoutEvent{Reason: reason, SessionID: sid, User: user, At: m.now()}
	for _, fn := range m.logoutHooks {
		fn(event)
	}
	return err
}

// LogoutNow is the user-initiated logout command.
func (m *Manager) LogoutNow(ctx context.Context) error {
	return m.Logout(ctx, LogoutUserInitiated)
}

// logoutIfCurrent logs out only while sid is still the session this manager holds or the
// one persisted. A late 401 for an older session must not end a newer one.
func (m *Manager) logoutIfCurrent(ctx context.Context, sid string, reason LogoutReason) bool {
	m.mu.Lock()
	held := m.sessionID
	m.mu.Unlock()

	if sid == "" {
		return false
	}
	if held != sid {
		rec, err := m.store.Current(ctx)
		if err != nil || rec == nil || rec.SessionID != sid {
			m.logger.Debug("goSession: ignoring stale unauthorized answer", "session_id", sid)
			return false
		}
	}
	if err := m.Logout(ctx, reason); err != nil {
		m.logger.Warn("goSession: logout failed", "reason", reason.String(), "error", err)
	}
	return true
}

func sessionMeta(sid string, remaining int64) map[string]string {
	return map[string]string{"session_id": sid, "remaining_seconds": strconv.FormatInt(remaining, 10)}
}
