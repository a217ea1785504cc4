package goSession

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/authtest"
	"github.com/MrEthical07/goSession/session"
)

const (
	testEmail    = "ada@example.com"
	testUsername = "ada"
	testPassword = "Analytical-Engine-1843!"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type logoutRecorder struct {
	mu     sync.Mutex
	events []LogoutEvent
}

func (r *logoutRecorder) hook(e LogoutEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *logoutRecorder) all() []LogoutEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LogoutEvent(nil), r.events...)
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) hook(_, to State, _ Status) {
	r.mu.Lock()
	r.states = append(r.states, to)
	r.mu.Unlock()
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

type harnessOptions struct {
	config func(*Config)
	auth   authtest.Config
	// realClock runs the manager and the service on the wall clock.
	realClock bool
	gateway   func(Gateway) Gateway
	audit     AuditSink
}

type harness struct {
	t       *testing.T
	clock   *testClock
	auth    *authtest.Server
	baseURL string
	backend session.Backend
	opts    harnessOptions
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	h := &harness{t: t, clock: newTestClock(), backend: session.NewMemoryBackend(), opts: opts}

	authCfg := opts.auth
	if !opts.realClock {
		authCfg.Now = h.clock.Now
	}
	h.auth, h.baseURL = authtest.Start(t, authCfg)
	if _, err := h.auth.AddAccount(authtest.Account{
		Email:    testEmail,
		Username: testUsername,
		FullName: "Ada Lovelace",
		Password: testPassword,
	}); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return h
}

func (h *harness) config() Config {
	cfg := DefaultConfig()
	cfg.Gateway.BaseURL = h.baseURL
	cfg.Monitor.Disabled = true
	if h.opts.config != nil {
		h.opts.config(&cfg)
	}
	return cfg
}

// client builds one more manager sharing the harness backend.
func (h *harness) client(logouts *logoutRecorder, states *stateRecorder) *Manager {
	h.t.Helper()
	cfg := h.config()

	b := New().WithConfig(cfg).WithBackend(h.backend)
	if !h.opts.realClock {
		b = b.WithClock(h.clock.Now)
	}
	if h.opts.gateway != nil {
		b = b.WithGateway(h.opts.gateway(NewHTTPGateway(cfg.Gateway, nil)))
	}
	if h.opts.audit != nil {
		b = b.WithAuditSink(h.opts.audit)
	}
	if logouts != nil {
		b = b.WithLogoutHook(logouts.hook)
	}
	if states != nil {
		b = b.WithStateHook(states.hook)
	}
	m, err := b.Build()
	if err != nil {
		h.t.Fatalf("Build failed: %v", err)
	}
	h.t.Cleanup(func() { _ = m.Close() })
	return m
}

func mustLogin(t *testing.T, m *Manager) LoginResult {
	t.Helper()
	res, err := m.Login(context.Background(), testUsername, testPassword, "")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.Outcome != LoginAuthenticated {
		t.Fatalf("expected authenticated outcome, got %v", res.Outcome)
	}
	return res
}

func currentRecord(t *testing.T, m *Manager) *session.Record {
	t.Helper()
	rec, err := m.Store().Current(context.Background())
	if err != nil {
		t.Fatalf("store read failed: %v", err)
	}
	return rec
}

// gatewayFunc overrides Login of an embedded gateway.
type gatewayFunc struct {
	Gateway
	login func(ctx context.Context, req LoginRequest) (string, error)
}

func (g *gatewayFunc) Login(ctx context.Context, req LoginRequest) (string, error) {
	return g.login(ctx, req)
}
