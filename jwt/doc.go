// Package jwt issues and verifies access tokens, and lets clients read the expiry claim of a
// token they hold without verifying its signature.
package jwt
