// Package internal contains helpers that are private to goSession.
//
// # Sub-packages
//
//   - rate: Redis fixed-window attempt counters used by the authtest service
//   - logging: slog construction for the command-line tools
//   - cli: the sessionctl command tree
//
// # What this package must NOT do
//
//   - Export types that appear in the public goSession API.
//   - Be imported by any package outside the goSession module.
package internal
