// Package rate provides Redis-backed fixed-window attempt counters.
//
// # Window semantics
//
// INCR + PEXPIRE on the first failure; the key disappears when the window ends and
// Reset deletes it early. Keys are "<prefix>:<subject>".
//
// # What this package must NOT do
//
//   - Decide what a subject is (callers pass normalized identifiers).
//   - Be imported outside the goSession module.
package rate
