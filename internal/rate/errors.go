package rate

import "errors"

// ErrRedisUnavailable wraps any Redis failure. Callers treat it as a
// denial (fail closed).
var ErrRedisUnavailable = errors.New("redis unavailable")
