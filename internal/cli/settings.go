package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/session"
	"github.com/redis/go-redis/v9"
)

type settings struct {
	BaseURL   string
	Profile   string
	Store     string
	DB        string
	RedisAddr string
	Timeout   time.Duration
	Warning   time.Duration
	Debounce  time.Duration
	Rounding  goSession.Rounding
}

func (a *app) settings() (settings, error) {
	s := settings{
		BaseURL:   strings.TrimSpace(a.v.GetString("base-url")),
		Profile:   strings.TrimSpace(a.v.GetString("profile")),
		Store:     strings.ToLower(strings.TrimSpace(a.v.GetString("store"))),
		DB:        strings.TrimSpace(a.v.GetString("db")),
		RedisAddr: strings.TrimSpace(a.v.GetString("redis-addr")),
		Timeout:   a.v.GetDuration("timeout"),
		Warning:   a.v.GetDuration("warning"),
		Debounce:  a.v.GetDuration("debounce"),
	}
	r, err := goSession.ParseRounding(a.v.GetString("rounding"))
	if err != nil {
		return s, err
	}
	s.Rounding = r

	if s.RedisAddr != "" {
		s.Store = "redis"
	}
	switch s.Store {
	case "sqlite", "memory":
	case "redis":
		if s.RedisAddr == "" {
			return s, errors.New("--redis-addr is required for the redis store")
		}
	default:
		return s, fmt.Errorf("unknown store %q", s.Store)
	}
	if s.Store == "sqlite" && s.DB == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return s, fmt.Errorf("find config directory: %w", err)
		}
		s.DB = filepath.Join(dir, "gosession", "sessions.db")
	}
	return s, nil
}

func (s settings) config() goSession.Config {
	cfg := goSession.DefaultConfig()
	cfg.Gateway.BaseURL = s.BaseURL
	cfg.Session.Profile = s.Profile
	cfg.Session.Timeout = s.Timeout
	cfg.Session.WarningWindow = s.Warning
	cfg.Activity.Debounce = s.Debounce
	cfg.Monitor.Rounding = s.Rounding
	cfg.Monitor.Disabled = true
	return cfg
}

// manager opens the profile store and builds a manager on it. configure may add hooks or
// enable the monitor. The returned func closes the manager and then the store.
func (a *app) manager(ctx context.Context, configure func(*goSession.Config, *goSession.Builder)) (*goSession.Manager, func(), error) {
	s, err := a.settings()
	if err != nil {
		return nil, nil, err
	}
	cfg := s.config()

	b := goSession.New().WithLogger(a.logger)
	var closeStore func()

	switch s.Store {
	case "memory":
		b = b.WithBackend(session.NewMemoryBackend())
		closeStore = func() {}
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", s.RedisAddr, err)
		}
		b = b.WithRedis(client)
		closeStore = func() { _ = client.Close() }
	default:
		if err := os.MkdirAll(filepath.Dir(s.DB), 0o700); err != nil {
			return nil, nil, fmt.Errorf("create store directory: %w", err)
		}
		backend, err := session.OpenSQLiteBackend(ctx, s.DB, s.Profile)
		if err != nil {
			return nil, nil, err
		}
		b = b.WithBackend(backend)
		closeStore = func() { _ = backend.Close() }
	}

	if configure != nil {
		configure(&cfg, b)
	}
	m, err := b.WithConfig(cfg).Build()
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	a.logger.Debug("goSession: manager ready", "store", s.Store, "profile", s.Profile)
	return m, func() {
		_ = m.Close()
		closeStore()
	}, nil
}
