package rate

import "errors"

var (
	// ErrRateLimited means the subject exhausted its attempts for the current window.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis command failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
