// Package middleware exposes HTTP middleware that enforces bearer-token authorization on
// top of a token verifier.
//
// # Guards
//
//   - [Guard]: rejects requests without a valid bearer token with 401.
//
// Guard reads the Authorization header, calls the [Verifier], and injects the verified
// claims into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Verifier calls. It does NOT decide whether a
// token is valid; that is delegated entirely to the Verifier.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to the Verifier).
//   - Keep session state.
package middleware
