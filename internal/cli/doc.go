// Package cli implements the sessionctl command tree.
//
// Settings come from flags, GOSESSION_* environment variables and an optional config file,
// merged by viper. Each command builds a short-lived [goSession.Manager] over the profile
// store (SQLite by default, Redis with --redis-addr) and closes it on return, leaving the
// session in place for the next invocation or another client.
package cli
