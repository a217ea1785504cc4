package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const extendScript = `
local sid = redis.call("HGET", KEYS[1], "sid")
if not sid or sid ~= ARGV[1] then
  return 0
end
local exp = tonumber(redis.call("HGET", KEYS[1], "expires_at") or "0")
if not exp or exp <= tonumber(ARGV[4]) then
  return 0
end
redis.call("HSET", KEYS[1], "last_activity", ARGV[2], "expires_at", ARGV[3])
redis.call("PEXPIREAT", KEYS[1], ARGV[5])
return 1
`

var extendLua = redis.NewScript(extendScript)

const replaceUserScript = `
local sid = redis.call("HGET", KEYS[1], "sid")
if not sid or sid ~= ARGV[1] then
  return 0
end
redis.call("HSET", KEYS[1], "user", ARGV[2])
return 1
`

var replaceUserLua = redis.NewScript(replaceUserScript)

// dropCorruptScript deletes the hash only while its identity fields still match the
// malformed snapshot, so a record written after the read survives.
const dropCorruptScript = `
local sid = redis.call("HGET", KEYS[1], "sid") or ""
local token = redis.call("HGET", KEYS[1], "token") or ""
if sid ~= ARGV[1] or token ~= ARGV[2] then
  return 0
end
redis.call("DEL", KEYS[1])
return 1
`

var dropCorruptLua = redis.NewScript(dropCorruptScript)

// RedisBackend stores the record of one profile as a Redis hash at "<prefix>:<profile>".
//
// The key outlives ExpiresAt by a retention grace so that clients polling late still observe
// an expired record rather than a vanished one.
type RedisBackend struct {
	redis redis.UniversalClient
	key   string
	grace time.Duration
}

// NewRedisBackend creates a [RedisBackend]. An empty prefix defaults to "gs".
func NewRedisBackend(client redis.UniversalClient, prefix, profile string, grace time.Duration) *RedisBackend {
	if prefix == "" {
		prefix = "gs"
	}
	if profile == "" {
		profile = "default"
	}
	if grace < 0 {
		grace = 0
	}
	return &RedisBackend{
		redis: client,
		key:   prefix + ":" + profile,
		grace: grace,
	}
}

// Key returns the Redis key holding the record.
func (b *RedisBackend) Key() string {
	return b.key
}

// Load implements [Backend]. A malformed hash is reported as absent and deleted, unless a
// new record replaced it after the read.
func (b *RedisBackend) Load(ctx context.Context) (*Record, error) {
	fields, err := b.redis.HGetAll(ctx, b.key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	rec, err := recordFromFields(fields)
	if err != nil {
		if _, dropErr := b.dropCorrupt(ctx, fields); dropErr != nil {
			return nil, dropErr
		}
		return nil, nil
	}
	return rec, nil
}

// dropCorrupt removes the hash read as fields unless it was rewritten in the meantime.
func (b *RedisBackend) dropCorrupt(ctx context.Context, fields map[string]string) (bool, error) {
	n, err := dropCorruptLua.Run(ctx, b.redis, []string{b.key}, fields[FieldSessionID], fields[FieldToken]).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return n == 1, nil
}

// Replace implements [Backend].
func (b *RedisBackend) Replace(ctx context.Context, rec *Record) error {
	user, err := encodeUser(rec.User)
	if err != nil {
		return err
	}

	_, err = b.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, b.key)
		pipe.HSet(ctx, b.key,
			FieldSessionID, rec.SessionID,
			FieldToken, rec.Token,
			FieldExpiresAt, rec.ExpiresAt.UnixMilli(),
			FieldLastActivity, rec.LastActivityAt.UnixMilli(),
			FieldUser, user,
		)
		pipe.PExpireAt(ctx, b.key, rec.ExpiresAt.Add(b.grace))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Extend implements [Backend].
func (b *RedisBackend) Extend(ctx context.Context, sid string, lastActivity, expiresAt, now time.Time) (bool, error) {
	res, err := extendLua.Run(ctx, b.redis, []string{b.key},
		sid,
		lastActivity.UnixMilli(),
		expiresAt.UnixMilli(),
		now.UnixMilli(),
		expiresAt.Add(b.grace).UnixMilli(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return res == 1, nil
}

// ReplaceUser implements [Backend].
func (b *RedisBackend) ReplaceUser(ctx context.Context, sid string, user *User) (bool, error) {
	raw, err := encodeUser(user)
	if err != nil {
		return false, err
	}
	res, err := replaceUserLua.Run(ctx, b.redis, []string{b.key}, sid, raw).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return res == 1, nil
}

// Clear implements [Backend].
func (b *RedisBackend) Clear(ctx context.Context) (bool, error) {
	n, err := b.redis.Del(ctx, b.key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return n > 0, nil
}

func recordFromFields(fields map[string]string) (*Record, error) {
	for _, name := range []string{FieldSessionID, FieldToken, FieldExpiresAt, FieldLastActivity, FieldUser} {
		if _, ok := fields[name]; !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrRecordCorrupt, name)
		}
	}
	if fields[FieldToken] == "" || fields[FieldSessionID] == "" {
		return nil, fmt.Errorf("%w: empty identity", ErrRecordCorrupt)
	}

	exp, err := strconv.ParseInt(fields[FieldExpiresAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRecordCorrupt, FieldExpiresAt, err)
	}
	last, err := strconv.ParseInt(fields[FieldLastActivity], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRecordCorrupt, FieldLastActivity, err)
	}
	user, err := decodeUser(fields[FieldUser])
	if err != nil {
		return nil, err
	}

	return &Record{
		SessionID:      fields[FieldSessionID],
		Token:          fields[FieldToken],
		User:           user,
		LastActivityAt: unixMilli(last),
		ExpiresAt:      unixMilli(exp),
	}, nil
}
