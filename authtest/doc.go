// Package authtest is an in-memory authentication service speaking the HTTP contract the
// goSession gateway consumes: login with an optional TOTP second factor, registration with the
// password policy, the current-user profile, password reset by emailed code, and a protected
// /api/transactions resource.
//
// Accounts live in memory; passwords are bcrypt hashes; tokens are HS256 JWTs that can be
// revoked per token or per account to provoke 401 answers. When Config.Redis is set, failed
// logins are throttled per identifier.
//
// # What this package must NOT do
//
//   - Persist anything.
//   - Serve production traffic.
package authtest
