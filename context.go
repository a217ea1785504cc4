package goSession

import "context"

type credentialExchangeContextKey struct{}

// WithCredentialExchange marks requests sent with ctx as credential exchanges. A 401 answer to
// such a request is a credential failure and never ends the current session.
func WithCredentialExchange(ctx context.Context) context.Context {
	return context.WithValue(ctx, credentialExchangeContextKey{}, true)
}

func isCredentialExchange(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	marked, _ := ctx.Value(credentialExchangeContextKey{}).(bool)
	return marked
}
