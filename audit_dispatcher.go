package goSession

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const defaultAuditBlockTimeout = 2 * time.Second

// auditOrigin identifies the client that produced an event. Several clients may write to one
// shared sink, so every event carries it.
type auditOrigin struct {
	client  string
	profile string
}

func (o auditOrigin) stamp(ev *AuditEvent) {
	if ev.ClientID == "" {
		ev.ClientID = o.client
	}
	if ev.Profile == "" {
		ev.Profile = o.profile
	}
}

// auditDispatcher hands events to the sink on one goroutine. A stalled sink delays an
// emitter by at most blockFor, and not at all with dropFull.
type auditDispatcher struct {
	sink     AuditSink
	origin   auditOrigin
	dropFull bool
	blockFor time.Duration
	logger   *slog.Logger

	queue    chan AuditEvent
	stop     chan struct{}
	finished chan struct{}
	stopOnce sync.Once

	dropped atomic.Uint64
	// inBurst is set after a drop and cleared by the next delivery: one warning per burst.
	inBurst atomic.Bool
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, origin auditOrigin, logger *slog.Logger) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	blockFor := cfg.BlockTimeout
	if blockFor <= 0 {
		blockFor = defaultAuditBlockTimeout
	}

	d := &auditDispatcher{
		sink:     sink,
		origin:   origin,
		dropFull: cfg.DropIfFull,
		blockFor: blockFor,
		logger:   logger,
		queue:    make(chan AuditEvent, max(cfg.BufferSize, 1)),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *auditDispatcher) loop() {
	defer close(d.finished)

	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			// flush what was queued before Close
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *auditDispatcher) deliver(ev AuditEvent) {
	d.sink.Emit(context.Background(), ev)
	d.inBurst.Store(false)
}

func (d *auditDispatcher) stopped() bool {
	select {
	case <-d.stop:
		return true
	default:
		return false
	}
}

// Emit stamps and queues ev. With DropIfFull a full queue drops the event. Otherwise Emit
// waits for room and drops the event when blockFor passes or ctx ends first.
func (d *auditDispatcher) Emit(ctx context.Context, ev AuditEvent) {
	if d == nil || d.stopped() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.origin.stamp(&ev)

	if d.dropFull {
		select {
		case d.queue <- ev:
		default:
			d.drop(ev)
		}
		return
	}

	timer := time.NewTimer(d.blockFor)
	defer timer.Stop()
	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.drop(ev)
	case <-timer.C:
		d.drop(ev)
	case <-d.stop:
	}
}

func (d *auditDispatcher) drop(ev AuditEvent) {
	d.dropped.Add(1)
	if d.inBurst.CompareAndSwap(false, true) {
		d.logger.Warn("goSession: audit queue full, dropping events", "event_type", ev.EventType, "session_id", ev.SessionID)
	}
}

// Close flushes queued events and stops the worker. Safe to call more than once.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() { close(d.stop) })
	<-d.finished
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
