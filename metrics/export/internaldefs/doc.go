// Package internaldefs holds the exported metric names shared by the Prometheus and
// OTel exporters, so both publish identical names and bucket bounds.
//
// # What this package must NOT do
//
//   - Import an exporter package.
//   - Perform I/O.
package internaldefs
