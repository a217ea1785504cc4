package otel

import (
	"context"
	"errors"
	"fmt"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is one client read by the callback. *goSession.Manager satisfies it.
type Source interface {
	ID() string
	State() goSession.State
	MetricsSnapshot() goSession.MetricsSnapshot
	AuditDropped() uint64
}

type histogramInstruments struct {
	id      goSession.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// observedSource pairs a client with its precomputed attributes.
type observedSource struct {
	src    Source
	client metric.MeasurementOption
	states []metric.MeasurementOption
}

// Exporter owns the callback registration.
type Exporter struct {
	sources      []observedSource
	counters     map[goSession.MetricID]metric.Int64ObservableCounter
	histograms   []histogramInstruments
	state        metric.Int64ObservableGauge
	auditDropped metric.Int64ObservableCounter
	registration metric.Registration
}

// NewExporter registers the goSession instruments on meter and observes every source in one
// callback. Each observation carries a "client" attribute with the source's ID.
func NewExporter(meter metric.Meter, sources ...Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if len(sources) == 0 {
		return nil, ErrNilSource
	}

	e := &Exporter{counters: make(map[goSession.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs))}
	for _, s := range sources {
		if s == nil {
			return nil, ErrNilSource
		}
		client := attribute.String(internaldefs.ClientLabel, s.ID())
		o := observedSource{src: s, client: metric.WithAttributes(client)}
		for _, st := range internaldefs.States {
			o.states = append(o.states, metric.WithAttributes(client, attribute.String(internaldefs.StateLabel, st.String())))
		}
		e.sources = append(e.sources, o)
	}

	observables, err := e.instruments(meter)
	if err != nil {
		return nil, err
	}

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) instruments(meter metric.Meter) ([]metric.Observable, error) {
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = ins
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h := histogramInstruments{id: def.ID}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative check-latency bucket count."))
			if err != nil {
				return nil, fmt.Errorf("create bucket gauge %s: %w", name, err)
			}
			h.buckets[i] = ins
			observables = append(observables, ins)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Check-latency sample count."))
		if err != nil {
			return nil, fmt.Errorf("create count gauge %s_count: %w", def.Name, err)
		}
		h.count = count
		observables = append(observables, count)
		e.histograms = append(e.histograms, h)
	}

	var err error
	if e.state, err = meter.Int64ObservableGauge(internaldefs.StateName, metric.WithDescription(internaldefs.StateHelp)); err != nil {
		return nil, fmt.Errorf("create state gauge: %w", err)
	}
	if e.auditDropped, err = meter.Int64ObservableCounter(internaldefs.AuditDroppedName, metric.WithDescription(internaldefs.AuditDroppedHelp)); err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	return append(observables, e.state, e.auditDropped), nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	for _, s := range e.sources {
		current := s.src.State()
		for i, st := range internaldefs.States {
			var v int64
			if st == current {
				v = 1
			}
			o.ObserveInt64(e.state, v, s.states[i])
		}
		o.ObserveInt64(e.auditDropped, int64(s.src.AuditDropped()), s.client)

		snapshot := s.src.MetricsSnapshot()
		for id, v := range snapshot.Counters {
			if ins, ok := e.counters[id]; ok {
				o.ObserveInt64(ins, int64(v), s.client)
			}
		}
		for _, h := range e.histograms {
			raw, ok := snapshot.Histograms[h.id]
			if !ok {
				continue
			}
			cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
			for i, v := range cumulative {
				o.ObserveInt64(h.buckets[i], int64(v), s.client)
			}
			o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]), s.client)
		}
	}
	return nil
}

// Close unregisters the callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
