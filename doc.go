// Package goSession manages the client side of an authenticated session: signing in
// (with an optional second factor), persisting the session so several clients sharing a
// profile see the same state, extending it on user activity, warning before it expires and
// logging out exactly once no matter how many triggers fire.
//
// A [Manager] is safe to call from multiple goroutines after initialization through
// [Builder.Build]. The monitor goroutine, the [ActivityTracker], the HTTP interceptor
// returned by [Manager.Transport] and user commands may all run concurrently.
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Manager], [Builder], [Config] and value types
// (Status, LoginResult, MetricsSnapshot). Persistence lives in the session package; the
// remote service is reached only through a [Gateway].
//
// # What this package must NOT do
//
//   - Hold a cross-client lock. Consistency comes from whole-record writes and conditional
//     extends in the backend.
//   - Treat a 401 answer to a login or registration as an expired session.
//   - Persist the second-factor challenge.
package goSession
