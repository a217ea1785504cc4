// Package password implements the password policy of the authentication service and bcrypt
// hashing for the fake service in authtest.
//
// # Policy
//
// A password must be at least 12 characters and contain an upper-case letter, a lower-case
// letter, a digit and a special character. [Policy.Check] returns every violated rule so the
// caller can report them together.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other goSession package.
//   - Log plaintext passwords.
package password
