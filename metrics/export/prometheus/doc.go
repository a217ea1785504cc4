// Package prometheus renders goSession metrics in the Prometheus text exposition format.
//
// [NewExporter] reads every registered client (usually a [goSession.Manager]) on each scrape.
// Each series has a client label. Counters are named gosession_*_total, the histogram is
// gosession_check_latency_seconds and gosession_session_state is a per-state 0/1 gauge.
//
// # What this package must NOT do
//
//   - Register with a global registry. Callers mount [Exporter.Handler].
//   - Mutate manager state.
package prometheus
