// Package rate implements fixed-window counters with an explicit lockout
// state. The counter and the lock live in separate Redis keys; the
// transition between them happens inside a Lua script so concurrent
// attempts cannot observe a half-applied lock.
package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Policy describes one key class: how many attempts fit in the window and
// how long the lock holds once the threshold is reached.
type Policy struct {
	MaxAttempts int
	Window      time.Duration
	Lockout     time.Duration
}

// Decision is the outcome of a limiter call. When Locked is true,
// RetryAfter carries the remaining lock duration.
type Decision struct {
	Locked     bool
	RetryAfter time.Duration
	Count      int64
}

// recordFailureScript counts a failed attempt and installs the lock key
// in the same call when the threshold is reached. While locked, calls
// return the lock TTL without touching the counter.
// KEYS[1] = counter key, KEYS[2] = lock key
// ARGV[1] = window ms, ARGV[2] = max attempts, ARGV[3] = lockout ms
var recordFailureScript = redis.NewScript(`
local lock_ttl = redis.call('PTTL', KEYS[2])
if lock_ttl > 0 then
  return {1, lock_ttl}
end

local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end

if count >= tonumber(ARGV[2]) then
  redis.call('SET', KEYS[2], '1', 'PX', ARGV[3])
  redis.call('DEL', KEYS[1])
  return {1, tonumber(ARGV[3])}
end

return {0, count}
`)

// allowScript is the single-call check-and-increment used for request
// style limits (OTP issue/verify). The attempt is admitted and counted,
// or rejected with the lock TTL.
var allowScript = redis.NewScript(`
local lock_ttl = redis.call('PTTL', KEYS[2])
if lock_ttl > 0 then
  return {1, lock_ttl}
end

local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end

if count > tonumber(ARGV[2]) then
  redis.call('SET', KEYS[2], '1', 'PX', ARGV[3])
  redis.call('DEL', KEYS[1])
  return {1, tonumber(ARGV[3])}
end

return {0, count}
`)

// Limiter enforces attempt budgets for a named action over Redis.
type Limiter struct {
	redis redis.UniversalClient
}

func New(redisClient redis.UniversalClient) *Limiter {
	return &Limiter{redis: redisClient}
}

func counterKey(action, key string) string {
	return "arl:" + action + ":" + key
}

func lockKey(action, key string) string {
	return "arlk:" + action + ":" + key
}

// Check reports the lock state without consuming an attempt. Used before
// credential verification so locked identities are rejected up front.
func (l *Limiter) Check(ctx context.Context, action, key string) (Decision, error) {
	ttl, err := l.redis.PTTL(ctx, lockKey(action, key)).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl > 0 {
		return Decision{Locked: true, RetryAfter: ttl}, nil
	}
	return Decision{}, nil
}

// RecordFailure counts a failed attempt and returns the resulting state.
// The call that crosses the threshold atomically installs the lock.
func (l *Limiter) RecordFailure(ctx context.Context, action, key string, p Policy) (Decision, error) {
	return l.runScript(ctx, recordFailureScript, action, key, p)
}

// Allow admits and counts one attempt, or rejects it while locked. This
// is the check_and_increment shape: no separate read step exists for
// callers to race against.
func (l *Limiter) Allow(ctx context.Context, action, key string, p Policy) (Decision, error) {
	return l.runScript(ctx, allowScript, action, key, p)
}

// Reset clears the failure counter after a successful attempt. The lock
// key, if present, is left to expire on its own.
func (l *Limiter) Reset(ctx context.Context, action, key string) error {
	if err := l.redis.Del(ctx, counterKey(action, key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the current counter value. Missing keys return zero.
func (l *Limiter) Attempts(ctx context.Context, action, key string) (int64, error) {
	count, err := l.redis.Get(ctx, counterKey(action, key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}

func (l *Limiter) runScript(ctx context.Context, script *redis.Script, action, key string, p Policy) (Decision, error) {
	result, err := script.Run(
		ctx,
		l.redis,
		[]string{counterKey(action, key), lockKey(action, key)},
		p.Window.Milliseconds(),
		p.MaxAttempts,
		p.Lockout.Milliseconds(),
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) != 2 {
		return Decision{}, fmt.Errorf("%w: invalid limiter script response", ErrRedisUnavailable)
	}
	status, ok1 := parts[0].(int64)
	value, ok2 := parts[1].(int64)
	if !ok1 || !ok2 {
		return Decision{}, fmt.Errorf("%w: invalid limiter script values", ErrRedisUnavailable)
	}

	if status == 1 {
		return Decision{Locked: true, RetryAfter: time.Duration(value) * time.Millisecond}, nil
	}
	return Decision{Count: value}, nil
}
