// Package otel publishes goSession metrics through an OpenTelemetry Meter.
//
// [NewExporter] registers one Int64ObservableCounter per counter, one Int64ObservableGauge
// per check-latency bucket and a gosession_session_state gauge. A single callback reads every
// client on each collection and tags its observations with a "client" attribute.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate manager state.
package otel
