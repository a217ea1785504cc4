package goSession

import (
	"sync/atomic"
	"time"
)

// MetricID defines a public type used by goSession APIs.
type MetricID uint16

const (
	// MetricLoginSuccess counts logins that established a session.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts logins rejected by validation or by the service.
	MetricLoginFailure
	// MetricLoginTwoFactorRequired counts logins answered with the second-factor sentinel.
	MetricLoginTwoFactorRequired
	// MetricLoginNetworkError counts logins that failed in transport.
	MetricLoginNetworkError
	// MetricLoginSuperseded counts login responses discarded because a newer attempt exists.
	MetricLoginSuperseded
	// MetricRegisterSuccess counts created accounts.
	MetricRegisterSuccess
	// MetricRegisterFailure counts rejected registrations.
	MetricRegisterFailure
	// MetricAutoLoginFailure counts registrations whose follow-up login failed.
	MetricAutoLoginFailure
	// MetricPasswordResetRequest counts forgot-password requests accepted by the service.
	MetricPasswordResetRequest
	// MetricPasswordResetSuccess counts completed password resets.
	MetricPasswordResetSuccess
	// MetricPasswordResetFailure counts rejected password resets.
	MetricPasswordResetFailure
	// MetricSessionEstablished counts records written by login.
	MetricSessionEstablished
	// MetricSessionAdopted counts records adopted from another client.
	MetricSessionAdopted
	// MetricSessionTouched counts activity extensions that reached the store.
	MetricSessionTouched
	// MetricActivityThrottled counts signals absorbed by the debounce.
	MetricActivityThrottled
	// MetricWarningShown counts Active to Warning transitions.
	MetricWarningShown
	// MetricSessionContinued counts explicit continue-session commands.
	MetricSessionContinued
	// MetricLogoutUser counts user-initiated logouts.
	MetricLogoutUser
	// MetricLogoutTimeout counts inactivity expiries.
	MetricLogoutTimeout
	// MetricLogoutUnauthorized counts logouts driven by authentication-denied answers.
	MetricLogoutUnauthorized
	// MetricLogoutExternal counts sessions ended by another client.
	MetricLogoutExternal
	// MetricLogoutDuplicate counts logout calls absorbed by an in-flight or finished logout.
	MetricLogoutDuplicate
	// MetricUnauthorizedResponse counts 401 answers seen by the interceptor.
	MetricUnauthorizedResponse
	// MetricStoreFailure counts backend errors.
	MetricStoreFailure
	// MetricCheckLatency is the latency histogram of one monitor evaluation.
	MetricCheckLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and the check-latency histogram.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot defines a public type used by goSession APIs.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a [Metrics]. A disabled instance ignores every update.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram of id. Only MetricCheckLatency has a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricCheckLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter (and the histogram when enabled).
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricCheckLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricCheckLatency].buckets[i])
		}
		s.Histograms[MetricCheckLatency] = buckets
	}

	return s
}

func logoutMetric(reason LogoutReason) MetricID {
	switch reason {
	case LogoutTimeout:
		return MetricLogoutTimeout
	case LogoutUnauthorized:
		return MetricLogoutUnauthorized
	case LogoutExternal:
		return MetricLogoutExternal
	default:
		return MetricLogoutUser
	}
}

// Check latency is dominated by one backend round-trip, so buckets are in milliseconds.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 1:
		return 0
	case ms <= 2:
		return 1
	case ms <= 5:
		return 2
	case ms <= 10:
		return 3
	case ms <= 25:
		return 4
	case ms <= 50:
		return 5
	case ms <= 100:
		return 6
	default:
		return 7
	}
}
