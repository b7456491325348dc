package rate

import "errors"

var (
	// ErrRateLimited reports an identifier or address over its failure budget.
	ErrRateLimited = errors.New("too many failed login attempts")
	// ErrRedisUnavailable reports a counter read or write that failed.
	ErrRedisUnavailable = errors.New("throttle store unavailable")
)
