package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	// Redis key expiry runs on the wall clock, so start from it.
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

type backendFactory struct {
	name string
	// open returns two backends that share the same persisted record.
	open func(t *testing.T) (Backend, Backend)
}

func backendFactories() []backendFactory {
	return []backendFactory{
		{
			name: "memory",
			open: func(t *testing.T) (Backend, Backend) {
				b := NewMemoryBackend()
				return b, b
			},
		},
		{
			name: "redis",
			open: func(t *testing.T) (Backend, Backend) {
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				t.Cleanup(mr.Close)
				c1 := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				c2 := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { _ = c1.Close(); _ = c2.Close() })
				return NewRedisBackend(c1, "gs", "alice", time.Minute), NewRedisBackend(c2, "gs", "alice", time.Minute)
			},
		},
		{
			name: "sqlite",
			open: func(t *testing.T) (Backend, Backend) {
				b, err := OpenSQLiteBackend(context.Background(), ":memory:", "alice")
				if err != nil {
					t.Fatalf("open sqlite: %v", err)
				}
				t.Cleanup(func() { _ = b.Close() })
				other, err := NewSQLiteBackend(context.Background(), b.db, "alice")
				if err != nil {
					t.Fatalf("second sqlite backend: %v", err)
				}
				return b, other
			},
		},
	}
}

func eachBackend(t *testing.T, fn func(t *testing.T, a, b Backend)) {
	t.Helper()
	for _, f := range backendFactories() {
		f := f
		t.Run(f.name, func(t *testing.T) {
			a, b := f.open(t)
			fn(t, a, b)
		})
	}
}

func TestStoreEstablishDerivesExpiry(t *testing.T) {
	eachBackend(t, func(t *testing.T, a, _ Backend) {
		ctx := context.Background()
		clock := newTestClock()
		s := NewStore(a, 15*time.Minute, clock.Now)

		rec, err := s.Establish(ctx, "tok-1", &User{ID: "1", Email: "a@example.com"})
		if err != nil {
			t.Fatalf("Establish: %v", err)
		}
		if rec.SessionID == "" {
			t.Fatalf("expected a session id")
		}
		if !rec.LastActivityAt.Equal(clock.Now()) {
			t.Fatalf("lastActivity = %v, want %v", rec.LastActivityAt, clock.Now())
		}
		if got := rec.ExpiresAt.Sub(rec.LastActivityAt); got != 15*time.Minute {
			t.Fatalf("expiresAt - lastActivity = %v", got)
		}

		cur, err := s.Current(ctx)
		if err != nil {
			t.Fatalf("Current: %v", err)
		}
		if cur == nil || cur.Token != "tok-1" || cur.User == nil || cur.User.Email != "a@example.com" {
			t.Fatalf("unexpected record %+v", cur)
		}
		if !cur.ExpiresAt.Equal(rec.ExpiresAt) {
			t.Fatalf("persisted expiresAt %v, want %v", cur.ExpiresAt, rec.ExpiresAt)
		}
		if !s.IsActive(ctx) {
			t.Fatalf("expected active session")
		}
	})
}

func TestStoreEstablishRejectsEmptyToken(t *testing.T) {
	s := NewStore(NewMemoryBackend(), time.Minute, nil)
	if _, err := s.Establish(context.Background(), "", nil); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
}

func TestStoreTouchExtendsHorizon(t *testing.T) {
	eachBackend(t, func(t *testing.T, a, _ Backend) {
		ctx := context.Background()
		clock := newTestClock()
		s := NewStore(a, 15*time.Minute, clock.Now)

		first, err := s.Establish(ctx, "tok", nil)
		if err != nil {
			t.Fatalf("Establish: %v", err)
		}
		clock.Advance(5 * time.Minute)

		ok, err := s.Touch(ctx)
		if err != nil || !ok {
			t.Fatalf("Touch = %v, %v", ok, err)
		}
		cur, _ := s.Current(ctx)
		if !cur.ExpiresAt.After(first.ExpiresAt) {
			t.Fatalf("expiresAt did not grow: %v <= %v", cur.ExpiresAt, first.ExpiresAt)
		}
		if !cur.LastActivityAt.Equal(clock.Now()) {
			t.Fatalf("lastActivity = %v, want %v", cur.LastActivityAt, clock.Now())
		}
	})
}

func TestStoreTouchWithoutSessionIsNoop(t *testing.T) {
	eachBackend(t, func(t *testing.T, a, _ Backend) {
		ctx := context.Background()
		s := NewStore(a, time.Minute, newTestClock().Now)

		ok, err := s.Touch(ctx)
		if err != nil || ok {
			t.Fatalf("Touch on empty store = %v, %v", ok, err)
		}
		if cur, _ := s.Current(ctx); cur != nil {
			t.Fatalf("touch created a record: %+v", cur)
		}
	})
}

func TestStoreTouchDoesNotRevivePastExpiry(t *testing.T) {
	eachBackend(t, func(t *testing.T, a, _ Backend) {
		ctx := context.Background()
		clock := newTestClock()
		s := NewStore(a, time.Minute, clock.Now)

		if _, err := s.Establish(ctx, "tok", nil); err != nil {
			t.Fatalf("Establish: %v", err)
		}
		clock.Advance(time.Minute)

		ok, err := s.Touch(ctx)
		if err != nil || ok {
			t.Fatalf("Touch past expiry = %v, %v", ok, err)
		}
		if s.IsActive(ctx) {
			t.Fatalf("session should not be active")
		}
	})
}

func TestStoreClearIsIdempotent(t *testing.T) {
	eachBackend(t, func(t *testing.T, a, _ Backend) {
		ctx := context.Background()
		s := NewStore(a, time.Minute, newTestClock().Now)
		if _, err := s.Establish(ctx, "tok", &User{ID: "1"}); err != nil {
			t.Fatalf("Establish: %v", err)
		}

		removed, err := s.Clear(ctx)
		if err != nil || !removed {
			t.Fatalf("first Clear = %v, %v", removed, err)
		}
		removed, err = s.Clear(ctx)
		if err != nil || removed {
			t.Fatalf("second Clear = %v, %v", removed, err)
		}
		if cur, _ := s.Current(ctx); cur != nil {
			t.Fatalf("record survived clear: %+v", cur)
		}
		if s.Cached() != nil {
			t.Fatalf("cache survived clear")
		}
	})
}

func TestStoreSetUserReplacesWhole(t *testing.T) {
	eachBackend(t, func(t *testing.T, a, _ Backend) {
		ctx := context.Background()
		s := NewStore(a, time.Minute, newTestClock().Now)

		if ok, err := s.SetUser(ctx, User{ID: "x"}); err != nil || ok {
			t.Fatalf("SetUser without session = %v, %v", ok, err)
		}

		if _, err := s.Establish(ctx, "tok", &User{ID: "1", Email: "a@example.com", Role: "analyst"}); err != nil {
			t.Fatalf("Establish: %v", err)
		}
		if ok, err := s.SetUser(ctx, User{ID: "1", Email: "b@example.com"}); err != nil || !ok {
			t.Fatalf("SetUser = %v, %v", ok, err)
		}
		cur, _ := s.Current(ctx)
		if cur.User == nil || cur.User.Email != "b@example.com" || cur.User.Role != "" {
			t.Fatalf("user not replaced whole: %+v", cur.User)
		}
	})
}

func TestStoreCrossClientReconcile(t *testing.T) {
	eachBackend(t, func(t *testing.T, a, b Backend) {
		ctx := context.Background()
		clock := newTestClock()
		tab1 := NewStore(a, 15*time.Minute, clock.Now)
		tab2 := NewStore(b, 15*time.Minute, clock.Now)

		if _, err := tab1.Establish(ctx, "tok", nil); err != nil {
			t.Fatalf("Establish: %v", err)
		}
		if !tab2.IsActive(ctx) {
			t.Fatalf("second client should observe the session")
		}

		clock.Advance(10 * time.Minute)
		if ok, err := tab2.Touch(ctx); err != nil || !ok {
			t.Fatalf("Touch from second client = %v, %v", ok, err)
		}
		cur, _ := tab1.Current(ctx)
		if !cur.LastActivityAt.Equal(clock.Now()) {
			t.Fatalf("first client did not see the touch: %v", cur.LastActivityAt)
		}

		if _, err := tab1.Clear(ctx); err != nil {
			t.Fatalf("Clear: %v", err)
		}
		if tab2.IsActive(ctx) {
			t.Fatalf("second client still active after clear")
		}
		if ok, _ := tab2.Touch(ctx); ok {
			t.Fatalf("touch after clear must not resurrect")
		}
	})
}

func TestStoreConditionalExtendRejectsOtherSession(t *testing.T) {
	eachBackend(t, func(t *testing.T, a, b Backend) {
		ctx := context.Background()
		clock := newTestClock()
		s := NewStore(a, time.Minute, clock.Now)

		old, err := s.Establish(ctx, "tok-old", nil)
		if err != nil {
			t.Fatalf("Establish: %v", err)
		}
		other := NewStore(b, time.Minute, clock.Now)
		if _, err := other.Establish(ctx, "tok-new", nil); err != nil {
			t.Fatalf("Establish other: %v", err)
		}

		now := clock.Now()
		ok, err := a.Extend(ctx, old.SessionID, now, now.Add(time.Hour), now)
		if err != nil || ok {
			t.Fatalf("Extend with stale sid = %v, %v", ok, err)
		}
		cur, _ := s.Current(ctx)
		if cur.Token != "tok-new" || cur.ExpiresAt.Sub(now) != time.Minute {
			t.Fatalf("stale extend leaked into new session: %+v", cur)
		}
	})
}

func TestStoreConcurrentTouchAndClear(t *testing.T) {
	eachBackend(t, func(t *testing.T, a, b Backend) {
		ctx := context.Background()
		clock := newTestClock()
		s1 := NewStore(a, time.Minute, clock.Now)
		s2 := NewStore(b, time.Minute, clock.Now)
		if _, err := s1.Establish(ctx, "tok", nil); err != nil {
			t.Fatalf("Establish: %v", err)
		}

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, _ = s2.Touch(ctx)
			}()
			go func() {
				defer wg.Done()
				_, _ = s1.Clear(ctx)
			}()
		}
		wg.Wait()

		if cur, err := s1.Current(ctx); err != nil || cur != nil {
			t.Fatalf("expected no record after concurrent clear, got %+v, %v", cur, err)
		}
	})
}

func TestRedisBackendDropsPartialRecord(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	b := NewRedisBackend(client, "gs", "alice", 0)
	mr.HSet(b.Key(), FieldToken, "tok", FieldExpiresAt, "99999999999999")

	rec, err := b.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec != nil {
		t.Fatalf("partial record should be absent, got %+v", rec)
	}
	if mr.Exists(b.Key()) {
		t.Fatalf("partial record was not removed")
	}
}

func TestRedisBackendKeepsRecordWrittenAfterCorruptRead(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	b := NewRedisBackend(client, "gs", "alice", 0)
	mr.HSet(b.Key(), FieldSessionID, "old", FieldToken, "tok", FieldExpiresAt, "garbage")
	snapshot := map[string]string{FieldSessionID: "old", FieldToken: "tok", FieldExpiresAt: "garbage"}

	// Another client logs in between the read and the heal.
	now := time.Now().Truncate(time.Millisecond)
	fresh := &Record{SessionID: "new", Token: "tok2", LastActivityAt: now, ExpiresAt: now.Add(time.Minute)}
	if err := b.Replace(ctx, fresh); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	dropped, err := b.dropCorrupt(ctx, snapshot)
	if err != nil {
		t.Fatalf("dropCorrupt: %v", err)
	}
	if dropped {
		t.Fatalf("record written after the corrupt read was deleted")
	}
	rec, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec == nil || rec.SessionID != "new" {
		t.Fatalf("expected the new record to survive, got %+v", rec)
	}

	mr.HSet(b.Key(), FieldExpiresAt, "garbage")
	if rec, err := b.Load(ctx); err != nil || rec != nil {
		t.Fatalf("corrupt record should load as absent, got %+v, %v", rec, err)
	}
	if mr.Exists(b.Key()) {
		t.Fatalf("corrupt record was not removed")
	}
}

func TestMemoryBackendWrapsContextErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewMemoryBackend()
	now := time.Now()
	if _, err := b.Load(ctx); !errors.Is(err, ErrBackendUnavailable) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Load: expected wrapped cancellation, got %v", err)
	}
	if err := b.Replace(ctx, &Record{SessionID: "s", Token: "t"}); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("Replace: expected ErrBackendUnavailable, got %v", err)
	}
	if _, err := b.Extend(ctx, "s", now, now.Add(time.Minute), now); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("Extend: expected ErrBackendUnavailable, got %v", err)
	}
	if _, err := b.ReplaceUser(ctx, "s", nil); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("ReplaceUser: expected ErrBackendUnavailable, got %v", err)
	}
	if _, err := b.Clear(ctx); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("Clear: expected ErrBackendUnavailable, got %v", err)
	}
}

func TestRedisBackendKeyRetention(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	b := NewRedisBackend(client, "gs", "alice", 30*time.Second)
	now := time.Now().Truncate(time.Millisecond)
	rec := &Record{SessionID: "sid", Token: "tok", LastActivityAt: now, ExpiresAt: now.Add(time.Minute)}
	if err := b.Replace(context.Background(), rec); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	ttl := mr.TTL(b.Key())
	if ttl <= time.Minute || ttl > 90*time.Second {
		t.Fatalf("unexpected key ttl %v", ttl)
	}
	for _, f := range []string{FieldSessionID, FieldToken, FieldExpiresAt, FieldLastActivity, FieldUser} {
		if mr.HGet(b.Key(), f) == "" {
			t.Fatalf("field %q missing from hash", f)
		}
	}
}

func TestRedisBackendUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	s := NewStore(NewRedisBackend(client, "gs", "alice", 0), time.Minute, nil)
	if _, err := s.Current(context.Background()); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	if s.IsActive(context.Background()) {
		t.Fatalf("unavailable backend must read as inactive")
	}
}

func TestSQLiteBackendDropsCorruptRow(t *testing.T) {
	ctx := context.Background()
	b, err := OpenSQLiteBackend(ctx, ":memory:", "alice")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()

	if _, err := b.db.ExecContext(ctx,
		`INSERT INTO session_records (profile, sid, token, expires_at, last_activity, "user") VALUES ('alice', 's', '', 1, 1, 'null')`,
	); err != nil {
		t.Fatalf("insert: %v", err)
	}
	rec, err := b.Load(ctx)
	if err != nil || rec != nil {
		t.Fatalf("Load corrupt row = %+v, %v", rec, err)
	}
	var n int
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_records`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("corrupt row not removed")
	}
}

func TestSQLiteBackendProfilesAreIsolated(t *testing.T) {
	ctx := context.Background()
	a, err := OpenSQLiteBackend(ctx, ":memory:", "alice")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()
	bob, err := NewSQLiteBackend(ctx, a.db, "bob")
	if err != nil {
		t.Fatalf("bob: %v", err)
	}

	s := NewStore(a, time.Minute, nil)
	if _, err := s.Establish(ctx, "tok", nil); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	if rec, err := bob.Load(ctx); err != nil || rec != nil {
		t.Fatalf("bob should have no session, got %+v, %v", rec, err)
	}
}
