package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	swapStatusNotFound int64 = 0
	swapStatusExpired  int64 = 1
	swapStatusMismatch int64 = 2
	swapStatusRotated  int64 = 3
)

// KEYS: session hash, user index, expiry index.
// ARGV: id, max, session key prefix, last active ms, expires ms, ttl ms, fields...
const createSessionScript = `
local max = tonumber(ARGV[2])
local evicted = {}
local members = redis.call("ZRANGE", KEYS[2], 0, -1)
local live = {}
for _, sid in ipairs(members) do
  if sid ~= ARGV[1] then
    if redis.call("EXISTS", ARGV[3] .. sid) == 1 then
      table.insert(live, sid)
    else
      redis.call("ZREM", KEYS[2], sid)
      redis.call("ZREM", KEYS[3], sid)
    end
  end
end
if max > 0 then
  local excess = #live + 1 - max
  local i = 1
  while excess > 0 and i <= #live do
    local sid = live[i]
    redis.call("DEL", ARGV[3] .. sid)
    redis.call("ZREM", KEYS[2], sid)
    redis.call("ZREM", KEYS[3], sid)
    table.insert(evicted, sid)
    excess = excess - 1
    i = i + 1
  end
end
redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[1], unpack(ARGV, 7))
redis.call("PEXPIRE", KEYS[1], ARGV[6])
redis.call("ZADD", KEYS[2], ARGV[4], ARGV[1])
redis.call("ZADD", KEYS[3], ARGV[5], ARGV[1])
return evicted
`

var createSessionLua = redis.NewScript(createSessionScript)

// KEYS: session hash. ARGV: id, last active ms, user key prefix.
const touchSessionScript = `
local uid = redis.call("HGET", KEYS[1], "uid")
if not uid then
  return 0
end
redis.call("HSET", KEYS[1], "la", ARGV[2])
redis.call("ZADD", ARGV[3] .. uid, ARGV[2], ARGV[1])
return 1
`

var touchSessionLua = redis.NewScript(touchSessionScript)

// KEYS: session hash, expiry index.
// ARGV: id, expected hash, next hash, now ms, expires ms, ttl ms, user key prefix.
const swapRefreshScript = `
local data = redis.call("HMGET", KEYS[1], "uid", "rh", "ea")
if not data[1] then
  redis.call("ZREM", KEYS[2], ARGV[1])
  return 0
end
local user_key = ARGV[7] .. data[1]
local function drop()
  redis.call("DEL", KEYS[1])
  redis.call("ZREM", user_key, ARGV[1])
  redis.call("ZREM", KEYS[2], ARGV[1])
end
if tonumber(data[3]) <= tonumber(ARGV[4]) then
  drop()
  return 1
end
if data[2] ~= ARGV[2] then
  drop()
  return 2
end
redis.call("HSET", KEYS[1], "rh", ARGV[3], "la", ARGV[4], "ea", ARGV[5])
redis.call("PEXPIRE", KEYS[1], ARGV[6])
redis.call("ZADD", user_key, ARGV[4], ARGV[1])
redis.call("ZADD", KEYS[2], ARGV[5], ARGV[1])
return 3
`

var swapRefreshLua = redis.NewScript(swapRefreshScript)

// KEYS: session hash, expiry index. ARGV: id, user key prefix.
const deleteSessionScript = `
local uid = redis.call("HGET", KEYS[1], "uid")
redis.call("ZREM", KEYS[2], ARGV[1])
if not uid then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("ZREM", ARGV[2] .. uid, ARGV[1])
return 1
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// KEYS: user index, expiry index. ARGV: keep id, session key prefix.
const deleteUserSessionsScript = `
local members = redis.call("ZRANGE", KEYS[1], 0, -1)
local removed = 0
for _, sid in ipairs(members) do
  if sid ~= ARGV[1] then
    removed = removed + redis.call("DEL", ARGV[2] .. sid)
    redis.call("ZREM", KEYS[1], sid)
    redis.call("ZREM", KEYS[2], sid)
  end
end
return removed
`

var deleteUserSessionsLua = redis.NewScript(deleteUserSessionsScript)

// RedisRepository stores each session as a hash under {prefix}:s:{id}. A
// per-user sorted set scored by last activity drives eviction and listing,
// and a global sorted set scored by expiry drives sweeping.
type RedisRepository struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisRepository creates a [RedisRepository] under the given key prefix.
func NewRedisRepository(client redis.UniversalClient, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "authcore"
	}
	return &RedisRepository{redis: client, prefix: prefix}
}

func (r *RedisRepository) sessionPrefix() string { return r.prefix + ":s:" }
func (r *RedisRepository) userPrefix() string    { return r.prefix + ":u:" }
func (r *RedisRepository) key(id string) string  { return r.sessionPrefix() + id }
func (r *RedisRepository) userKey(uid string) string {
	return r.userPrefix() + uid
}
func (r *RedisRepository) expiryKey() string { return r.prefix + ":exp" }

// Create runs the insert and cap eviction as one script.
//
//	Performance: 1 round trip; O(n) in the user's session count.
func (r *RedisRepository) Create(ctx context.Context, s *Session, maxPerUser int) ([]string, error) {
	ttl := s.ExpiresAt.Sub(s.LastActive)
	if ttl < time.Second {
		ttl = time.Second
	}

	args := []interface{}{
		s.ID,
		maxPerUser,
		r.sessionPrefix(),
		s.LastActive.UnixMilli(),
		s.ExpiresAt.UnixMilli(),
		ttl.Milliseconds(),
	}
	args = append(args, encodeFields(s)...)

	res, err := createSessionLua.Run(ctx, r.redis,
		[]string{r.key(s.ID), r.userKey(s.UserID), r.expiryKey()},
		args...,
	).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if len(res) == 0 {
		return nil, nil
	}
	return res, nil
}

func (r *RedisRepository) Get(ctx context.Context, id string) (*Session, error) {
	fields, err := r.redis.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeFields(id, fields)
}

func (r *RedisRepository) Touch(ctx context.Context, id string, at time.Time) error {
	n, err := touchSessionLua.Run(ctx, r.redis,
		[]string{r.key(id)},
		id, at.UnixMilli(), r.userPrefix(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SwapRefreshHash is the atomic compare-and-swap used by refresh rotation.
//
//	Performance: 1 round trip.
func (r *RedisRepository) SwapRefreshHash(ctx context.Context, id string, expected, next [32]byte, at, expiresAt time.Time) error {
	ttl := expiresAt.Sub(at)
	if ttl < time.Second {
		ttl = time.Second
	}

	status, err := swapRefreshLua.Run(ctx, r.redis,
		[]string{r.key(id), r.expiryKey()},
		id,
		hashHex(expected),
		hashHex(next),
		at.UnixMilli(),
		expiresAt.UnixMilli(),
		ttl.Milliseconds(),
		r.userPrefix(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	switch status {
	case swapStatusRotated:
		return nil
	case swapStatusMismatch:
		return ErrRefreshMismatch
	case swapStatusNotFound, swapStatusExpired:
		return ErrNotFound
	default:
		return fmt.Errorf("%w: unexpected swap status %d", ErrStorageUnavailable, status)
	}
}

func (r *RedisRepository) Delete(ctx context.Context, id string) (bool, error) {
	n, err := deleteSessionLua.Run(ctx, r.redis,
		[]string{r.key(id), r.expiryKey()},
		id, r.userPrefix(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return n == 1, nil
}

func (r *RedisRepository) DeleteForUserExcept(ctx context.Context, userID, keepID string) (int, error) {
	n, err := deleteUserSessionsLua.Run(ctx, r.redis,
		[]string{r.userKey(userID), r.expiryKey()},
		keepID, r.sessionPrefix(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return int(n), nil
}

func (r *RedisRepository) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	userKey := r.userKey(userID)
	ids, err := r.redis.ZRevRange(ctx, userKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	sessions, stale, err := r.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(stale) > 0 {
		members := make([]interface{}, len(stale))
		for i, id := range stale {
			members[i] = id
		}
		if err := r.redis.ZRem(ctx, userKey, members...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
	}
	return sessions, nil
}

func (r *RedisRepository) List(ctx context.Context) ([]*Session, error) {
	ids, err := r.redis.ZRange(ctx, r.expiryKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	sessions, _, err := r.fetch(ctx, ids)
	return sessions, err
}

func (r *RedisRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	ids, err := r.redis.ZRangeByScore(ctx, r.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.UnixMilli()),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	removed := 0
	for _, id := range ids {
		ok, err := r.Delete(ctx, id)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// Ping checks connectivity.
func (r *RedisRepository) Ping(ctx context.Context) error {
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (r *RedisRepository) fetch(ctx context.Context, ids []string) ([]*Session, []string, error) {
	if len(ids) == 0 {
		return []*Session{}, nil, nil
	}

	pipe := r.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	sessions := make([]*Session, 0, len(ids))
	var stale []string
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if len(fields) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		s, err := decodeFields(ids[i], fields)
		if err != nil {
			stale = append(stale, ids[i])
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, stale, nil
}
