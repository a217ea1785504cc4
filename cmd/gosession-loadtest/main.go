// Command gosession-loadtest measures session store throughput on Redis.
//
// Every profile is driven by several clients at once, the way browser tabs of one user
// share a session: reads reconcile, touches race on the conditional extend, and the final
// phase logs every profile out concurrently.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		profiles    = flag.Int("profiles", 10000, "number of session profiles to seed")
		clients     = flag.Int("clients", 4, "clients sharing each profile")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations in the read and touch phases")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "gs", "session key prefix")
		timeout     = flag.Duration("timeout", 15*time.Minute, "inactivity timeout of the seeded sessions")
	)
	flag.Parse()

	if *profiles <= 0 || *clients <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "profiles, clients, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	// stores[p][c] is client c of profile p.
	stores := make([][]*session.Store, *profiles)
	fmt.Printf("seeding %d profiles x %d clients...\n", *profiles, *clients)
	startSeed := time.Now()
	for p := range stores {
		backend := session.NewRedisBackend(client, *prefix, fmt.Sprintf("load-%d", p), time.Minute)
		stores[p] = make([]*session.Store, *clients)
		for c := range stores[p] {
			stores[p][c] = session.NewStore(backend, *timeout, nil)
		}
		user := &session.User{ID: fmt.Sprint(p), Username: fmt.Sprintf("user%d", p)}
		if _, err := stores[p][0].Establish(ctx, fmt.Sprintf("token-%d", p), user); err != nil {
			fmt.Fprintf(os.Stderr, "establish failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	results := []phaseResult{
		runPhase("read", *ops, *concurrency, func(r *rand.Rand, _ int) outcome {
			rec, err := pick(r, stores).Current(ctx)
			return classify(rec != nil, err)
		}),
		runPhase("touch", *ops, *concurrency, func(r *rand.Rand, _ int) outcome {
			return classify(pick(r, stores).Touch(ctx))
		}),
		// Every client of a profile logs out at once; exactly one per profile clears the record.
		runPhase("logout", len(stores)*(*clients), *concurrency, func(_ *rand.Rand, i int) outcome {
			p := i / *clients
			return classify(stores[p][i%*clients].Clear(ctx))
		}),
	}

	fmt.Println("---- results ----")
	for _, res := range results {
		res.print()
	}
}

func pick(r *rand.Rand, stores [][]*session.Store) *session.Store {
	clients := stores[r.Intn(len(stores))]
	return clients[r.Intn(len(clients))]
}

// outcome of one store operation. A no-op is a touch or clear that found no live record,
// which is expected when clients race on the same profile.
type outcome int

const (
	outcomeOK outcome = iota
	outcomeNoop
	outcomeError
)

func classify(applied bool, err error) outcome {
	switch {
	case err != nil:
		return outcomeError
	case !applied:
		return outcomeNoop
	default:
		return outcomeOK
	}
}

type phaseResult struct {
	name    string
	elapsed time.Duration
	counts  [3]int
	samples []time.Duration
}

// runPhase runs op ops times over concurrency workers. Each worker keeps its own samples.
func runPhase(name string, ops, concurrency int, op func(r *rand.Rand, i int) outcome) phaseResult {
	var (
		wg     sync.WaitGroup
		cursor atomic.Int64
	)
	workers := make([]phaseResult, concurrency)

	start := time.Now()
	for w := range workers {
		wg.Add(1)
		go func(own *phaseResult, seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for {
				i := int(cursor.Add(1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				own.counts[op(r, i)]++
				own.samples = append(own.samples, time.Since(t0))
			}
		}(&workers[w], time.Now().UnixNano()+int64(w)*7919)
	}
	wg.Wait()

	res := phaseResult{name: name, elapsed: time.Since(start), samples: make([]time.Duration, 0, ops)}
	for _, w := range workers {
		for k, n := range w.counts {
			res.counts[k] += n
		}
		res.samples = append(res.samples, w.samples...)
	}
	slices.Sort(res.samples)
	return res
}

// quantile returns the q-th quantile of the sorted samples.
func (p phaseResult) quantile(q float64) time.Duration {
	if len(p.samples) == 0 {
		return 0
	}
	return p.samples[int(float64(len(p.samples)-1)*q)]
}

func (p phaseResult) print() {
	rate := 0.0
	if p.elapsed > 0 {
		rate = float64(len(p.samples)) / p.elapsed.Seconds()
	}
	fmt.Printf("%-6s ops=%d ok=%d noop=%d errors=%d elapsed=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		p.name, len(p.samples),
		p.counts[outcomeOK], p.counts[outcomeNoop], p.counts[outcomeError],
		p.elapsed.Round(time.Millisecond), rate,
		p.quantile(0.50).Round(time.Microsecond),
		p.quantile(0.95).Round(time.Microsecond),
		p.quantile(0.99).Round(time.Microsecond),
	)
}
