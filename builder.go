package goSession

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by goSession APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config

	backend    session.Backend
	redis      redis.UniversalClient
	gateway    Gateway
	httpClient *http.Client
	base       http.RoundTripper
	logger     *slog.Logger
	now        func() time.Time
	auditSink  AuditSink

	logoutHooks []LogoutHook
	stateHooks  []StateHook

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBackend sets the persisted store. It takes precedence over WithRedis.
func (b *Builder) WithBackend(backend session.Backend) *Builder {
	b.backend = backend
	return b
}

// WithRedis stores the session in Redis under Session.RedisPrefix and Session.Profile.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithGateway replaces the HTTP gateway built from Config.Gateway.
func (b *Builder) WithGateway(g Gateway) *Builder {
	b.gateway = g
	return b
}

// WithHTTPClient sets the client used by the default gateway.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithTransport sets the base RoundTripper wrapped by Manager.HTTPClient.
func (b *Builder) WithTransport(rt http.RoundTripper) *Builder {
	b.base = rt
	return b
}

// WithLogger sets the structured logger. A nil logger discards output.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides time.Now. The background monitor still sleeps on the wall clock.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithAuditSink sets where audit events go once Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogoutHook registers fn to run once per ended session.
func (b *Builder) WithLogoutHook(fn LogoutHook) *Builder {
	if fn != nil {
		b.logoutHooks = append(b.logoutHooks, fn)
	}
	return b
}

// WithStateHook registers fn to run on every state transition.
func (b *Builder) WithStateHook(fn StateHook) *Builder {
	if fn != nil {
		b.stateHooks = append(b.stateHooks, fn)
	}
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the latency buckets. Counters must be enabled too.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready [Manager]. A Builder can be used once.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend := b.backend
	if backend == nil && b.redis != nil {
		backend = session.NewRedisBackend(b.redis, cfg.Session.RedisPrefix, cfg.Session.Profile, cfg.Session.RetentionGrace)
	}
	if backend == nil {
		return nil, errors.New("session backend required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	gateway := b.gateway
	if gateway == nil {
		if cfg.Gateway.BaseURL == "" {
			return nil, errors.New("Gateway BaseURL required when no gateway is supplied")
		}
		gateway = NewHTTPGateway(cfg.Gateway, b.httpClient)
	}

	base := b.base
	if base == nil {
		base = http.DefaultTransport
	}

	m := &Manager{
		id:          uuid.NewString(),
		cfg:         cfg,
		store:       session.NewStore(backend, cfg.Session.Timeout, now),
		gateway:     gateway,
		base:        base,
		now:         now,
		metrics:     NewMetrics(cfg.Metrics),
		logoutHooks: append([]LogoutHook(nil), b.logoutHooks...),
		stateHooks:  append([]StateHook(nil), b.stateHooks...),
		wake:        make(chan struct{}, 1),
		exempt:      exemptPathSet(cfg),
	}
	m.logger = logger.With("component", "goSession", "profile", cfg.Session.Profile, "manager", m.id)
	m.audit = newAuditDispatcher(cfg.Audit, b.auditSink, auditOrigin{client: m.id, profile: cfg.Session.Profile}, m.logger)
	m.activity = newActivityTracker(m)

	b.built = true

	return m, nil
}
