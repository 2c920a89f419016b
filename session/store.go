// Package session persists revocable session records in Redis. Records
// are compact binary blobs with a fixed-offset header; every state
// transition (revoke, rotate) happens inside a Lua script so concurrent
// callers see either the old or the new record, never a mix.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when no record exists for the session ID.
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned when the record exists but its lifetime has passed.
	ErrExpired = errors.New("session expired")
	// ErrRevoked is returned when the record carries a revocation mark.
	ErrRevoked = errors.New("session revoked")
	// ErrRefreshMismatch is returned when a rotation presents a stale
	// refresh secret. The script revokes the session before returning.
	ErrRefreshMismatch = errors.New("refresh hash mismatch")
	// ErrRedisUnavailable wraps Redis failures; callers fail closed.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusRevoked  int64 = 2
	rotateStatusMismatch int64 = 3
	rotateStatusRotated  int64 = 4
)

const luaHelpers = `
local function read_be64(s, i)
  local v = 0
  for j = i, i + 7 do
    local b = string.byte(s, j)
    if not b then
      return nil
    end
    v = v * 256 + b
  end
  return v
end

local function be64(n)
  local b = {}
  for i = 8, 1, -1 do
    b[i] = n % 256
    n = math.floor(n / 256)
  end
  return string.char(b[1], b[2], b[3], b[4], b[5], b[6], b[7], b[8])
end

local function user_id_of(data)
  local len = string.byte(data, 58)
  if not len then
    return nil
  end
  return string.sub(data, 59, 58 + len)
end
`

// revokeScript marks the session revoked in place, keeping the remaining
// TTL so the record stays observable until it would have expired anyway.
// KEYS[1] = session key
// ARGV[1] = now unix, ARGV[2] = user index prefix, ARGV[3] = session ID
var revokeScript = redis.NewScript(luaHelpers + `
local data = redis.call('GET', KEYS[1])
if not data then
  return 0
end

local revoked_at = read_be64(data, 2)
if not revoked_at then
  return 0
end
if revoked_at ~= 0 then
  return 2
end

local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
  redis.call('DEL', KEYS[1])
  return 0
end

local updated = string.sub(data, 1, 1) .. be64(tonumber(ARGV[1])) .. string.sub(data, 10)
redis.call('SET', KEYS[1], updated, 'PX', ttl)

local user_id = user_id_of(data)
if user_id then
  redis.call('SREM', ARGV[2] .. user_id, ARGV[3])
end
return 1
`)

// revokeAllScript walks the user's session index and revokes every
// still-active record, returning the count.
// KEYS[1] = user index key
// ARGV[1] = session key prefix, ARGV[2] = now unix
var revokeAllScript = redis.NewScript(luaHelpers + `
local ids = redis.call('SMEMBERS', KEYS[1])
local revoked = 0

for _, sid in ipairs(ids) do
  local key = ARGV[1] .. sid
  local data = redis.call('GET', key)
  if data then
    local revoked_at = read_be64(data, 2)
    if revoked_at == 0 then
      local ttl = redis.call('PTTL', key)
      if ttl > 0 then
        local updated = string.sub(data, 1, 1) .. be64(tonumber(ARGV[2])) .. string.sub(data, 10)
        redis.call('SET', key, updated, 'PX', ttl)
        revoked = revoked + 1
      end
    end
  end
end

redis.call('DEL', KEYS[1])
return revoked
`)

// rotateScript is the refresh CAS. A stale secret does not just fail:
// the script revokes the session on the spot, which is what turns token
// reuse into a contained event instead of a live credential.
// KEYS[1] = session key
// ARGV[1] = provided hash, ARGV[2] = next hash, ARGV[3] = now unix,
// ARGV[4] = session ID, ARGV[5] = user index prefix
var rotateScript = redis.NewScript(luaHelpers + `
local data = redis.call('GET', KEYS[1])
if not data then
  return {0}
end

local revoked_at = read_be64(data, 2)
if not revoked_at then
  return {0}
end
if revoked_at ~= 0 then
  return {2}
end

local expires_at = read_be64(data, 18)
local now = tonumber(ARGV[3])
local ttl = redis.call('PTTL', KEYS[1])

if expires_at <= now or ttl <= 0 then
  redis.call('DEL', KEYS[1])
  local user_id = user_id_of(data)
  if user_id then
    redis.call('SREM', ARGV[5] .. user_id, ARGV[4])
  end
  return {1}
end

local stored = string.sub(data, 26, 57)
if stored ~= ARGV[1] then
  local updated = string.sub(data, 1, 1) .. be64(now) .. string.sub(data, 10)
  redis.call('SET', KEYS[1], updated, 'PX', ttl)
  local user_id = user_id_of(data)
  if user_id then
    redis.call('SREM', ARGV[5] .. user_id, ARGV[4])
  end
  return {3}
end

local updated = string.sub(data, 1, 25) .. ARGV[2] .. string.sub(data, 58)
redis.call('SET', KEYS[1], updated, 'PX', ttl)
return {4, updated}
`)

// Store is the Redis-backed session store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "asn"
	}
	return &Store{redis: redisClient, prefix: prefix}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

// Save persists the session and indexes it under the owning user. The
// TTL bounds the refresh lifetime; the record disappears on its own once
// the session could no longer be refreshed.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.SessionID)
		pipe.Expire(ctx, s.userKey(sess.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get returns the live session or the precise reason it is not live.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.SessionID = sessionID

	if sess.Revoked() {
		return nil, ErrRevoked
	}
	if time.Now().Unix() >= sess.ExpiresAt {
		return nil, ErrExpired
	}
	return sess, nil
}

// Revoke marks one session revoked. Returns true when this call made
// the transition; false when the session was already revoked or gone,
// so the operation is idempotent.
func (s *Store) Revoke(ctx context.Context, sessionID string) (bool, error) {
	status, err := revokeScript.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID)},
		time.Now().Unix(),
		s.userKey(""),
		sessionID,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return status == 1, nil
}

// RevokeAllForUser revokes every active session of the user and returns
// how many records were transitioned by this call.
func (s *Store) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	count, err := revokeAllScript.Run(
		ctx,
		s.redis,
		[]string{s.userKey(userID)},
		s.prefix+":",
		time.Now().Unix(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

// ActiveSessionIDs lists the indexed session IDs for a user.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// RotateRefreshHash atomically swaps the stored refresh hash when
// providedHash matches. On mismatch the session is revoked inside the
// script and ErrRefreshMismatch is returned.
func (s *Store) RotateRefreshHash(
	ctx context.Context,
	sessionID string,
	providedHash [32]byte,
	nextHash [32]byte,
) (*Session, error) {
	result, err := rotateScript.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID)},
		providedHash[:],
		nextHash[:],
		time.Now().Unix(),
		sessionID,
		s.userKey(""),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotate script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate script status", ErrRedisUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return nil, ErrNotFound
	case rotateStatusExpired:
		return nil, ErrExpired
	case rotateStatusRevoked:
		return nil, ErrRevoked
	case rotateStatusMismatch:
		return nil, ErrRefreshMismatch
	case rotateStatusRotated:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing rotated session payload", ErrRedisUnavailable)
		}
		var blob []byte
		switch v := parts[1].(type) {
		case string:
			blob = []byte(v)
		case []byte:
			blob = v
		default:
			return nil, fmt.Errorf("%w: invalid rotated session payload", ErrRedisUnavailable)
		}
		sess, decErr := Decode(blob)
		if decErr != nil {
			return nil, decErr
		}
		sess.SessionID = sessionID
		return sess, nil
	default:
		return nil, fmt.Errorf("%w: unknown rotate script status", ErrRedisUnavailable)
	}
}

// Ping reports Redis availability.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
