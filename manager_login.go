package goSession

import (
	"context"
	"strings"
)

// Login exchanges credentials (and an optional second-factor code) for a session.
//
// On success the profile is fetched with the new token, the record is written with
// lastActivity = now, the state becomes Active and the monitor starts. A
// LoginTwoFactorRequired outcome records an in-memory challenge and changes nothing else.
// Failures are [*Error] values and never touch the session. When a newer Login is issued
// before this one completes, this one returns [ErrLoginSuperseded] and applies nothing.
func (m *Manager) Login(ctx context.Context, identifier, password, otpCode string) (LoginResult, error) {
	if m.isClosed() {
		return LoginResult{}, ErrManagerClosed
	}

	identifier = strings.TrimSpace(identifier)
	otpCode = strings.TrimSpace(otpCode)
	if identifier == "" || password == "" {
		m.metrics.Inc(MetricLoginFailure)
		return LoginResult{}, newError(KindValidation, 0, "Username/email and password are required.", nil)
	}

	seq := m.loginSeq.Add(1)

	gctx, cancel := requestTimeout(ctx, m.cfg.Gateway.RequestTimeout)
	defer cancel()

	token, err := m.gateway.Login(gctx, LoginRequest{Identifier: identifier, Password: password, OTPCode: otpCode})
	if m.loginSeq.Load() != seq {
		return m.superseded()
	}
	if err != nil {
		return m.loginFailed(ctx, identifier, err)
	}

	var user *User
	profile, err := m.gateway.CurrentUser(gctx, token)
	switch {
	case err == nil:
		user = &profile
	case KindOf(err) == KindAuthorizationExpired || KindOf(err) == KindCredential:
		// The service refused the token it just issued; nothing usable to persist.
		m.metrics.Inc(MetricLoginFailure)
		m.emitAudit(ctx, AuditLogin, false, "", nil, err, map[string]string{"identifier": identifier})
		return LoginResult{}, newError(KindCredential, 0, "Login failed. Please try again.", err)
	default:
		m.logger.Warn("goSession: profile fetch failed after login", "error", err)
	}

	if m.loginSeq.Load() != seq {
		return m.superseded()
	}

	return m.establish(ctx, token, user)
}

func (m *Manager) superseded() (LoginResult, error) {
	m.metrics.Inc(MetricLoginSuperseded)
	return LoginResult{}, ErrLoginSuperseded
}

func (m *Manager) loginFailed(ctx context.Context, identifier string, err error) (LoginResult, error) {
	switch KindOf(err) {
	case KindTwoFactorRequired:
		m.mu.Lock()
		m.challenge = &TwoFactorChallenge{Identifier: identifier, IssuedAt: m.now()}
		m.mu.Unlock()
		m.metrics.Inc(MetricLoginTwoFactorRequired)
		m.emitAudit(ctx, AuditTwoFactorRequired, true, "", nil, nil, map[string]string{"identifier": identifier})
		return LoginResult{Outcome: LoginTwoFactorRequired}, nil
	case KindNetwork:
		m.metrics.Inc(MetricLoginNetworkError)
	default:
		m.metrics.Inc(MetricLoginFailure)
	}
	if KindOf(err) == 0 {
		err = newError(KindNetwork, 0, "Network error. Please check your connection.", err)
	}
	m.emitAudit(ctx, AuditLogin, false, "", nil, err, map[string]string{"identifier": identifier})
	return LoginResult{}, err
}

func (m *Manager) establish(ctx context.Context, token string, user *User) (LoginResult, error) {
	rec, err := m.store.Establish(ctx, token, user)
	if err != nil {
		m.storeFailure("establish", err)
		return LoginResult{}, newError(KindService, 0, "Could not save the session.", err)
	}

	status := Status{
		State:     StateActive,
		Remaining: rec.Remaining(m.now()),
		ExpiresAt: rec.ExpiresAt,
		User:      rec.User,
	}

	m.mu.Lock()
	m.epoch++
	m.sessionID = rec.SessionID
	m.user = rec.User
	m.challenge = nil
	m.tombstone = ""
	fire := m.setStateLocked(StateActive, status)
	m.startMonitorLocked()
	m.mu.Unlock()
	fire()

	m.activity.reset()
	m.metrics.Inc(MetricLoginSuccess)
	m.metrics.Inc(MetricSessionEstablished)
	m.emitAudit(ctx, AuditLogin, true, rec.SessionID, rec.User, nil, nil)
	m.logger.Info("goSession: session established", "session_id", rec.SessionID)

	return LoginResult{
		Outcome:   LoginAuthenticated,
		User:      rec.User,
		SessionID: rec.SessionID,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// RefreshProfile re-fetches the user with the stored token and replaces the snapshot.
// An authentication-denied answer ends the session with LogoutUnauthorized.
func (m *Manager) RefreshProfile(ctx context.Context) (User, error) {
	rec, err := m.store.Current(ctx)
	if err != nil {
		m.storeFailure("read", err)
		return User{}, err
	}
	if rec == nil || !rec.Active(m.now()) {
		return User{}, ErrNoSession
	}

	gctx, cancel := requestTimeout(ctx, m.cfg.Gateway.RequestTimeout)
	defer cancel()

	user, err := m.gateway.CurrentUser(gctx, rec.Token)
	if err != nil {
		if KindOf(err) == KindAuthorizationExpired {
			m.logoutIfCurrent(ctx, rec.SessionID, LogoutUnauthorized)
		}
		return User{}, err
	}

	if _, err := m.store.SetUser(ctx, user); err != nil {
		m.storeFailure("set_user", err)
		return user, err
	}
	m.mu.Lock()
	if m.sessionID == rec.SessionID {
		u := user
		m.user = &u
	}
	m.mu.Unlock()
	return user, nil
}
