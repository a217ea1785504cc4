package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
)

type metricsSource struct {
	id      string
	state   goSession.State
	metrics *goSession.Metrics
	dropped uint64
}

func (s metricsSource) ID() string                                 { return s.id }
func (s metricsSource) State() goSession.State                     { return s.state }
func (s metricsSource) MetricsSnapshot() goSession.MetricsSnapshot { return s.metrics.Snapshot() }
func (s metricsSource) AuditDropped() uint64                       { return s.dropped }

func TestRenderEmptyWithoutSources(t *testing.T) {
	if got := NewExporter().Render(); got != "" {
		t.Fatalf("expected empty output, got:\n%s", got)
	}
	if got := NewExporter(nil).Render(); got != "" {
		t.Fatalf("nil sources must be skipped, got:\n%s", got)
	}
}

func TestRenderDisabledMetricsReportsOnlyState(t *testing.T) {
	src := metricsSource{id: "tab-a", state: goSession.StateActive, metrics: goSession.NewMetrics(goSession.MetricsConfig{})}
	out := NewExporter(src).Render()

	if !strings.Contains(out, `gosession_session_state{client="tab-a",state="active"} 1`) {
		t.Fatalf("expected state gauge, got:\n%s", out)
	}
	if strings.Contains(out, `gosession_login_success_total{`) {
		t.Fatalf("disabled metrics must not render counter samples:\n%s", out)
	}
}

func TestRenderCountersAndHistogram(t *testing.T) {
	m := goSession.NewMetrics(goSession.MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	for i := 0; i < 3; i++ {
		m.Inc(goSession.MetricLogoutTimeout)
	}
	m.Inc(goSession.MetricSessionAdopted)
	m.Observe(goSession.MetricCheckLatency, 500*time.Microsecond)
	m.Observe(goSession.MetricCheckLatency, 4*time.Millisecond)
	m.Observe(goSession.MetricCheckLatency, time.Second)

	out := NewExporter(metricsSource{id: "a", state: goSession.StateExpired, metrics: m, dropped: 2}).Render()
	for _, want := range []string{
		"# TYPE gosession_logout_timeout_total counter",
		`gosession_logout_timeout_total{client="a"} 3`,
		`gosession_session_adopted_total{client="a"} 1`,
		`gosession_login_success_total{client="a"} 0`,
		"# TYPE gosession_check_latency_seconds histogram",
		`gosession_check_latency_seconds_bucket{client="a",le="0.001"} 1`,
		`gosession_check_latency_seconds_bucket{client="a",le="0.005"} 2`,
		`gosession_check_latency_seconds_bucket{client="a",le="+Inf"} 3`,
		`gosession_check_latency_seconds_count{client="a"} 3`,
		`gosession_audit_dropped_total{client="a"} 2`,
		`gosession_session_state{client="a",state="expired"} 1`,
		`gosession_session_state{client="a",state="active"} 0`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRenderGroupsClientsByFamily(t *testing.T) {
	a := goSession.NewMetrics(goSession.MetricsConfig{Enabled: true})
	b := goSession.NewMetrics(goSession.MetricsConfig{Enabled: true})
	a.Inc(goSession.MetricLoginSuccess)
	b.Inc(goSession.MetricSessionAdopted)

	exp := NewExporter(metricsSource{id: "a", state: goSession.StateActive, metrics: a})
	exp.Add(metricsSource{id: `b"1`, state: goSession.StateWarning, metrics: b})
	out := exp.Render()

	if n := strings.Count(out, "# TYPE gosession_login_success_total counter"); n != 1 {
		t.Fatalf("expected one TYPE line per family, got %d", n)
	}
	for _, want := range []string{
		`gosession_login_success_total{client="a"} 1`,
		`gosession_login_success_total{client="b\"1"} 0`,
		`gosession_session_adopted_total{client="b\"1"} 1`,
		`gosession_session_state{client="b\"1",state="warning"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	m := goSession.NewMetrics(goSession.MetricsConfig{Enabled: true})
	m.Inc(goSession.MetricLoginSuccess)

	rec := httptest.NewRecorder()
	NewExporter(metricsSource{id: "a", metrics: m}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `gosession_login_success_total{client="a"} 1`) {
		t.Fatalf("unexpected response %d:\n%s", rec.Code, rec.Body.String())
	}
}

func BenchmarkRender(b *testing.B) {
	m := goSession.NewMetrics(goSession.MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Inc(goSession.MetricLoginSuccess)
	m.Observe(goSession.MetricCheckLatency, time.Millisecond)
	exp := NewExporter(metricsSource{id: "a", metrics: m}, metricsSource{id: "b", metrics: m})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
