package goSession

import (
	"net/http"
	"strings"
)

// Transport wraps base (nil means the builder's transport) so that every request carries the
// session's bearer token and every 401 answer to a token-bearing request ends the session.
//
// Requests to exempt paths (login, register and Interceptor.ExemptPaths) and requests whose
// context is marked with [WithCredentialExchange] are forwarded untouched; their 401 answers
// are credential failures. The response is always returned to the caller unchanged, after the
// logout completed.
func (m *Manager) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = m.base
	}
	return &authTransport{m: m, base: base}
}

// HTTPClient returns a client whose transport is [Manager.Transport].
func (m *Manager) HTTPClient() *http.Client {
	return &http.Client{Transport: m.Transport(nil)}
}

type authTransport struct {
	m    *Manager
	base http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m := t.m
	ctx := req.Context()

	if isCredentialExchange(ctx) || m.isExempt(req.URL.Path) {
		return t.base.RoundTrip(req)
	}

	var sid string
	if req.Header.Get("Authorization") == "" {
		rec, err := m.store.Current(ctx)
		if err != nil {
			m.storeFailure("read", err)
		} else if m.live(rec) {
			sid = rec.SessionID
			req = req.Clone(ctx)
			req.Header.Set("Authorization", "Bearer "+rec.Token)
		}
	} else {
		sid = m.currentSessionID()
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		m.metrics.Inc(MetricUnauthorizedResponse)
		m.emitAudit(ctx, AuditUnauthorized, false, sid, nil, nil, map[string]string{"path": req.URL.Path})
		if sid != "" {
			m.logoutIfCurrent(ctx, sid, LogoutUnauthorized)
		}
	}
	return resp, nil
}

func exemptPathSet(cfg Config) map[string]struct{} {
	set := map[string]struct{}{
		cleanPath(cfg.Gateway.LoginPath):    {},
		cleanPath(cfg.Gateway.RegisterPath): {},
	}
	for _, p := range cfg.Interceptor.ExemptPaths {
		set[cleanPath(p)] = struct{}{}
	}
	return set
}

func (m *Manager) isExempt(path string) bool {
	_, ok := m.exempt[cleanPath(path)]
	return ok
}

func cleanPath(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "/"
	}
	return p
}
