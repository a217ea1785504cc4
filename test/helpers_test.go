//go:build integration
// +build integration

package test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/authtest"
	"github.com/MrEthical07/goSession/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	email    = "grace@example.com"
	username = "grace"
	password = "Compiler-Pioneer-1952!"
)

// backendMode opens one backend per client. Clients of the same mode share a profile.
type backendMode struct {
	name string
	open func(t *testing.T) func(t *testing.T) session.Backend
}

// backendModes returns the persisted stores to run against.
// miniredis and SQLite are always available.
// Real Redis standalone is used when REDIS_ADDR is set (e.g. "127.0.0.1:6379").
func backendModes(t *testing.T) []backendMode {
	t.Helper()
	modes := []backendMode{
		{
			name: "memory",
			open: func(t *testing.T) func(t *testing.T) session.Backend {
				shared := session.NewMemoryBackend()
				return func(*testing.T) session.Backend { return shared }
			},
		},
		{
			name: "miniredis",
			open: func(t *testing.T) func(t *testing.T) session.Backend {
				t.Helper()
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				t.Cleanup(mr.Close)
				return redisOpener(mr.Addr(), "it-mini")
			},
		},
		{
			name: "sqlite",
			open: func(t *testing.T) func(t *testing.T) session.Backend {
				path := filepath.Join(t.TempDir(), "sessions.db")
				return func(t *testing.T) session.Backend {
					t.Helper()
					b, err := session.OpenSQLiteBackend(context.Background(), path, "default")
					if err != nil {
						t.Fatalf("open sqlite: %v", err)
					}
					t.Cleanup(func() { _ = b.Close() })
					return b
				}
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, backendMode{
			name: "standalone:" + addr,
			open: func(t *testing.T) func(t *testing.T) session.Backend {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				defer rdb.Close()
				if err := rdb.Ping(context.Background()).Err(); err != nil {
					t.Skipf("redis at %s unreachable: %v", addr, err)
				}
				prefix := "it-" + time.Now().Format("150405.000000")
				t.Cleanup(func() {
					c := redis.NewClient(&redis.Options{Addr: addr})
					_ = c.Del(context.Background(), prefix+":default").Err()
					_ = c.Close()
				})
				return redisOpener(addr, prefix)
			},
		})
	}
	return modes
}

// redisOpener gives every client its own connection, like separate processes would have.
func redisOpener(addr, prefix string) func(t *testing.T) session.Backend {
	return func(t *testing.T) session.Backend {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		t.Cleanup(func() { _ = rdb.Close() })
		return session.NewRedisBackend(rdb, prefix, "default", time.Minute)
	}
}

type env struct {
	auth    *authtest.Server
	baseURL string
	open    func(t *testing.T) session.Backend
}

func newEnv(t *testing.T, mode backendMode) *env {
	t.Helper()
	auth, baseURL := authtest.Start(t, authtest.Config{})
	if _, err := auth.AddAccount(authtest.Account{
		Email:    email,
		Username: username,
		FullName: "Grace Hopper",
		Password: password,
	}); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return &env{auth: auth, baseURL: baseURL, open: mode.open(t)}
}

type logouts chan goSession.LogoutEvent

func (l logouts) hook(e goSession.LogoutEvent) {
	select {
	case l <- e:
	default:
	}
}

func (l logouts) wait(t *testing.T) goSession.LogoutEvent {
	t.Helper()
	select {
	case e := <-l:
		return e
	case <-time.After(5 * time.Second):
		t.Fatalf("no logout notification")
		return goSession.LogoutEvent{}
	}
}

func (e *env) client(t *testing.T, tune func(*goSession.Config), hooks logouts) *goSession.Manager {
	t.Helper()
	cfg := goSession.DefaultConfig()
	cfg.Gateway.BaseURL = e.baseURL
	cfg.Monitor.Disabled = true
	if tune != nil {
		tune(&cfg)
	}
	b := goSession.New().WithConfig(cfg).WithBackend(e.open(t))
	if hooks != nil {
		b = b.WithLogoutHook(hooks.hook)
	}
	m, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func get(t *testing.T, m *goSession.Manager, url string) int {
	t.Helper()
	resp, err := m.HTTPClient().Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	resp.Body.Close()
	return resp.StatusCode
}
