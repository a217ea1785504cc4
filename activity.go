package goSession

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// ActivityTracker turns user-interaction signals into session extensions.
//
// Signals are debounced so that bursts (pointer moves, scrolling) reach the store at most
// once per Activity.Debounce. A signal only extends an active session; it never creates or
// revives one.
type ActivityTracker struct {
	m       *Manager
	enabled map[SignalKind]bool

	mu      sync.Mutex
	limiter *rate.Limiter
}

func newActivityTracker(m *Manager) *ActivityTracker {
	enabled := make(map[SignalKind]bool, len(AllSignals))
	kinds := m.cfg.Activity.Signals
	if len(kinds) == 0 {
		kinds = AllSignals
	}
	for _, k := range kinds {
		enabled[k] = true
	}
	t := &ActivityTracker{m: m, enabled: enabled}
	t.reset()
	return t
}

// reset forgets the debounce history so the first signal of a new session is never absorbed.
func (t *ActivityTracker) reset() {
	var l *rate.Limiter
	if d := t.m.cfg.Activity.Debounce; d > 0 {
		l = rate.NewLimiter(rate.Every(d), 1)
	}
	t.mu.Lock()
	t.limiter = l
	t.mu.Unlock()
}

// Enabled reports whether kind is tracked.
func (t *ActivityTracker) Enabled(kind SignalKind) bool {
	return t.enabled[kind]
}

// Signal records one interaction. It reports whether the session horizon was extended.
func (t *ActivityTracker) Signal(ctx context.Context, kind SignalKind) bool {
	if !t.enabled[kind] {
		return false
	}
	m := t.m
	if m.isClosed() {
		return false
	}

	m.mu.Lock()
	state := m.state
	m.mu.Unlock()
	authenticated := state.Authenticated()
	if !authenticated {
		return false
	}

	if !t.allow() {
		m.metrics.Inc(MetricActivityThrottled)
		return false
	}

	ok, err := m.store.Touch(ctx)
	if err != nil {
		m.storeFailure("touch", err)
		return false
	}
	if ok {
		m.metrics.Inc(MetricSessionTouched)
		if state == StateWarning {
			// Activity during the warning counts as continuing the session.
			m.Check(ctx)
		}
	}
	return ok
}

func (t *ActivityTracker) allow() bool {
	t.mu.Lock()
	l := t.limiter
	t.mu.Unlock()
	if l == nil {
		return true
	}
	return l.AllowN(t.m.now(), 1)
}
