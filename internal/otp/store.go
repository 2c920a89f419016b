// Package otp stores one-time codes in Redis as hashed, attempt-capped
// records. A record is keyed by (purpose, user), so issuing a new code
// overwrites and thereby invalidates the previous one.
package otp

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const recordVersionV1 = 1

// Purpose discriminates code namespaces. A login code can never satisfy
// a verification check and vice versa.
type Purpose uint8

const (
	PurposeLogin Purpose = iota + 1
	PurposeVerification
)

func (p Purpose) String() string {
	switch p {
	case PurposeLogin:
		return "login"
	case PurposeVerification:
		return "verification"
	default:
		return "unknown"
	}
}

var (
	ErrCodeNotFound       = errors.New("otp code not found")
	ErrCodeExpired        = errors.New("otp code expired")
	ErrCodeMismatch       = errors.New("otp code mismatch")
	ErrCodeExhausted      = errors.New("otp attempts exhausted")
	ErrRedisUnavailable   = errors.New("otp redis unavailable")
	ErrPurposeMismatch    = errors.New("otp purpose mismatch")
	errRecordInvalidShape = errors.New("otp record invalid")
)

// consumeScript performs the full verification inside Redis: lookup,
// expiry check, purpose check, attempt accounting, hash compare, and
// delete-on-match. Failed compares rewrite the attempts field in place,
// preserving the remaining TTL; the compare that reaches the cap deletes
// the record so the code cannot be retried.
// KEYS[1] = record key
// ARGV[1] = provided hash (32 bytes)
// ARGV[2] = expected purpose (byte value)
// ARGV[3] = max attempts
// ARGV[4] = current unix timestamp
var consumeScript = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local providedHash = ARGV[1]
local expectedPurpose = tonumber(ARGV[2])
local maxAttempts = tonumber(ARGV[3])
local nowUnix = tonumber(ARGV[4])

-- record: version(1) purpose(1) attempts(2 BE) expiresAt(8 BE) userIDLen(2 BE) userID hash(32)
local version = string.byte(data, 1)
if version ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local purpose = string.byte(data, 2)

local attempts = string.byte(data, 3) * 256 + string.byte(data, 4)

local e0,e1,e2,e3,e4,e5,e6,e7 = string.byte(data, 5, 12)
local expiresAt = e0
for _, b in ipairs({e1,e2,e3,e4,e5,e6,e7}) do
  expiresAt = expiresAt * 256 + b
end

if nowUnix > expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

if purpose ~= expectedPurpose then
  redis.call('DEL', KEYS[1])
  return {err='purpose_mismatch'}
end

if attempts >= maxAttempts then
  redis.call('DEL', KEYS[1])
  return {err='attempts_exceeded'}
end

local userIDLen = string.byte(data, 13) * 256 + string.byte(data, 14)
local hashOffset = 15 + userIDLen
local storedHash = string.sub(data, hashOffset, hashOffset + 31)

if storedHash ~= providedHash then
  attempts = attempts + 1
  if attempts >= maxAttempts then
    redis.call('DEL', KEYS[1])
    return {err='attempts_exceeded'}
  end
  local a0 = math.floor(attempts / 256)
  local a1 = attempts % 256
  local newData = string.sub(data, 1, 2) .. string.char(a0, a1) .. string.sub(data, 5)
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs <= 0 then
    redis.call('DEL', KEYS[1])
    return {err='expired'}
  end
  redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
  return {err='mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// Record is the stored form of an issued code. Only the sha256 of the
// code is kept.
type Record struct {
	UserID    string
	CodeHash  [32]byte
	ExpiresAt int64
	Attempts  uint16
	Purpose   Purpose
}

type Store struct {
	redis  redis.UniversalClient
	prefix string
}

func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "aotp"
	}
	return &Store{redis: redisClient, prefix: prefix}
}

func (s *Store) key(purpose Purpose, userID string) string {
	return s.prefix + ":" + purpose.String() + ":" + userID
}

// Put stores a new code record, replacing any active code for the same
// (purpose, user) pair.
func (s *Store) Put(ctx context.Context, record *Record, ttl time.Duration) error {
	encoded, err := encodeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(record.Purpose, record.UserID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Consume verifies providedHash against the active code for the user and
// purpose. A match deletes the record (single use); a mismatch burns one
// attempt. All outcomes are decided inside one Lua call.
func (s *Store) Consume(
	ctx context.Context,
	purpose Purpose,
	userID string,
	providedHash [32]byte,
	maxAttempts int,
) (*Record, error) {
	result, err := consumeScript.Run(ctx, s.redis,
		[]string{s.key(purpose, userID)},
		string(providedHash[:]),
		int(purpose),
		maxAttempts,
		time.Now().Unix(),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return nil, ErrCodeNotFound
		case "expired":
			return nil, ErrCodeExpired
		case "purpose_mismatch":
			return nil, ErrPurposeMismatch
		case "attempts_exceeded":
			return nil, ErrCodeExhausted
		case "mismatch":
			return nil, ErrCodeMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrRedisUnavailable)
	}

	record, decErr := decodeRecord([]byte(data))
	if decErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, decErr)
	}

	// Lua string comparison is not constant-time; re-check in Go.
	if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
		return nil, ErrCodeMismatch
	}

	return record, nil
}

// Invalidate removes any active code without consuming it.
func (s *Store) Invalidate(ctx context.Context, purpose Purpose, userID string) error {
	if err := s.redis.Del(ctx, s.key(purpose, userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func encodeRecord(record *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordVersionV1)
	buf.WriteByte(byte(record.Purpose))

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.UserID) > 65535 {
		return nil, errors.New("otp record user id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, errRecordInvalidShape
	}

	purpose, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &Record{Purpose: Purpose(purpose)}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var userIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userIDLen); err != nil {
		return nil, err
	}
	userID := make([]byte, userIDLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	record.UserID = string(userID)

	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
