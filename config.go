package goSession

import (
	"errors"
	"strings"
	"time"
)

// Config defines a public type used by goSession APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Session     SessionConfig
	Monitor     MonitorConfig
	Activity    ActivityConfig
	TwoFactor   TwoFactorConfig
	Gateway     GatewayConfig
	Interceptor InterceptorConfig
	Token       TokenConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the inactivity window and where the record lives.
type SessionConfig struct {
	// Timeout is the inactivity window: ExpiresAt = LastActivityAt + Timeout.
	Timeout time.Duration
	// WarningWindow is how long before expiry the Warning state starts.
	WarningWindow time.Duration
	// Profile namespaces the persisted record. Managers sharing a profile share one session.
	Profile string
	// RedisPrefix is the key prefix used by the Redis backend.
	RedisPrefix string
	// RetentionGrace keeps an expired record readable by late pollers.
	RetentionGrace time.Duration
}

/*
====================================
MONITOR CONFIG
====================================
*/

// Rounding selects how remaining time is converted to whole seconds while warning.
type Rounding int

const (
	// RoundFloor truncates remaining time to whole seconds.
	RoundFloor Rounding = iota
	// RoundCeil rounds remaining time up to whole seconds.
	RoundCeil
)

// ParseRounding parses "floor" or "ceil".
func ParseRounding(s string) (Rounding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "floor":
		return RoundFloor, nil
	case "ceil":
		return RoundCeil, nil
	default:
		return RoundFloor, errors.New("rounding must be floor or ceil")
	}
}

func (r Rounding) String() string {
	if r == RoundCeil {
		return "ceil"
	}
	return "floor"
}

// MonitorConfig controls how often the timeout monitor evaluates the session.
type MonitorConfig struct {
	// FastInterval is used when expiry is near (within WarningWindow + SlowInterval).
	FastInterval time.Duration
	// SlowInterval is used otherwise.
	SlowInterval time.Duration
	Rounding     Rounding
	// Disabled stops Login/Resume from starting the background monitor; Check still works.
	Disabled bool
}

/*
====================================
ACTIVITY CONFIG
====================================
*/

// ActivityConfig controls which signals count as activity and how often they reach the store.
type ActivityConfig struct {
	// Debounce is the minimum spacing between two touches. Zero touches on every signal.
	Debounce time.Duration
	// Signals lists the enabled kinds. Empty enables every kind.
	Signals []SignalKind
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

// TwoFactorConfig controls the in-memory second-factor challenge.
type TwoFactorConfig struct {
	// ChallengeTTL bounds how long a pending challenge is remembered.
	ChallengeTTL time.Duration
}

/*
====================================
GATEWAY CONFIG
====================================
*/

// GatewayConfig describes the remote authentication service.
type GatewayConfig struct {
	BaseURL            string
	RequestTimeout     time.Duration
	LoginPath          string
	RegisterPath       string
	CurrentUserPath    string
	ForgotPasswordPath string
	ResetPasswordPath  string
}

/*
====================================
INTERCEPTOR CONFIG
====================================
*/

// InterceptorConfig controls the unauthorized-response interceptor.
type InterceptorConfig struct {
	// ExemptPaths lists URL paths whose 401 answers are credential failures, not expired
	// authorization. Login and register paths are always exempt.
	ExemptPaths []string
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls client-side inspection of the bearer token.
type TokenConfig struct {
	// HonorExpiryClaim logs out when the token is a JWT whose exp claim has passed.
	HonorExpiryClaim bool
	// ExpiryLeeway tolerates clock skew when evaluating exp.
	ExpiryLeeway time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig defines a public type used by goSession APIs.
//
// With DropIfFull unset, an event waits at most BlockTimeout for queue room before it is
// dropped.
type AuditConfig struct {
	Enabled      bool
	BufferSize   int
	DropIfFull   bool
	BlockTimeout time.Duration
}

// MetricsConfig defines a public type used by goSession APIs.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			Timeout:        15 * time.Minute,
			WarningWindow:  2 * time.Minute,
			Profile:        "default",
			RedisPrefix:    "gs",
			RetentionGrace: time.Minute,
		},
		Monitor: MonitorConfig{
			FastInterval: time.Second,
			SlowInterval: 30 * time.Second,
			Rounding:     RoundFloor,
		},
		Activity: ActivityConfig{
			Debounce: 5 * time.Second,
		},
		TwoFactor: TwoFactorConfig{
			ChallengeTTL: 5 * time.Minute,
		},
		Gateway: GatewayConfig{
			BaseURL:            "http://localhost:8000",
			RequestTimeout:     10 * time.Second,
			LoginPath:          "/auth/login",
			RegisterPath:       "/auth/register",
			CurrentUserPath:    "/auth/me",
			ForgotPasswordPath: "/auth/forgot-password",
			ResetPasswordPath:  "/auth/reset-password",
		},
		Token: TokenConfig{
			ExpiryLeeway: 5 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:      false,
			BufferSize:   1024,
			DropIfFull:   true,
			BlockTimeout: defaultAuditBlockTimeout,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Activity.Signals = append([]SignalKind(nil), cfg.Activity.Signals...)
	out.Interceptor.ExemptPaths = append([]string(nil), cfg.Interceptor.ExemptPaths...)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	// Session
	if c.Session.Timeout <= 0 {
		return errors.New("Session Timeout must be > 0")
	}
	if c.Session.WarningWindow <= 0 {
		return errors.New("Session WarningWindow must be > 0")
	}
	if c.Session.WarningWindow >= c.Session.Timeout {
		return errors.New("Session WarningWindow must be < Timeout")
	}
	if strings.TrimSpace(c.Session.Profile) == "" {
		return errors.New("Session Profile is required")
	}
	if c.Session.RetentionGrace < 0 {
		return errors.New("Session RetentionGrace must be >= 0")
	}

	// Monitor
	if c.Monitor.FastInterval <= 0 {
		return errors.New("Monitor FastInterval must be > 0")
	}
	if c.Monitor.SlowInterval < c.Monitor.FastInterval {
		return errors.New("Monitor SlowInterval must be >= FastInterval")
	}
	if c.Monitor.FastInterval > time.Second {
		// The countdown is shown in whole seconds.
		return errors.New("Monitor FastInterval must be <= 1s")
	}
	switch c.Monitor.Rounding {
	case RoundFloor, RoundCeil:
	default:
		return errors.New("Monitor Rounding must be floor or ceil")
	}

	// Activity
	if c.Activity.Debounce < 0 {
		return errors.New("Activity Debounce must be >= 0")
	}
	if c.Activity.Debounce >= c.Session.Timeout-c.Session.WarningWindow {
		return errors.New("Activity Debounce must be < Timeout - WarningWindow")
	}
	for _, kind := range c.Activity.Signals {
		if !kind.valid() {
			return errors.New("Activity Signals contains an unknown kind")
		}
	}

	// Two-factor
	if c.TwoFactor.ChallengeTTL <= 0 {
		return errors.New("TwoFactor ChallengeTTL must be > 0")
	}

	// Gateway
	if c.Gateway.RequestTimeout < 0 {
		return errors.New("Gateway RequestTimeout must be >= 0")
	}
	for _, p := range []string{
		c.Gateway.LoginPath,
		c.Gateway.RegisterPath,
		c.Gateway.CurrentUserPath,
		c.Gateway.ForgotPasswordPath,
		c.Gateway.ResetPasswordPath,
	} {
		if !strings.HasPrefix(p, "/") {
			return errors.New("Gateway paths must start with /")
		}
	}

	// Token
	if c.Token.ExpiryLeeway < 0 {
		return errors.New("Token ExpiryLeeway must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.Enabled && !c.Audit.DropIfFull && c.Audit.BlockTimeout <= 0 {
		return errors.New("Audit BlockTimeout must be > 0 when DropIfFull is disabled")
	}

	return nil
}
