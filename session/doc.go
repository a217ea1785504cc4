// Package session provides the persisted session record shared by every client of one
// profile, together with the cache-reconciling [Store] that owns it.
//
// # Persisted layout
//
// One record exists per profile. It always carries the same five fields: sid, token,
// expires_at, last_activity and user. Backends write the record whole (or not at all) so
// no observer can see a token without its expiry, or an expiry without its token. A
// record that is missing any field is treated as absent and removed on read.
//
// # Concurrency discipline
//
// There is no cross-client lock. Writers replace the record atomically or apply a
// conditional extend that re-checks the session id and expiry inside the backend. Readers
// reload the record from the backend on every access instead of trusting the cache, so a
// logout performed by another client is observed on the next read.
//
// # What this package must NOT do
//
//   - Import goSession (no upward imports).
//   - Decide when a session should end; the Manager drives logout.
//   - Talk to the authentication service.
package session
