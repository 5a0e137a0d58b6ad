package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits"
)

// RedisBackend implements Backend on Redis. All read-modify-write operations
// run as Lua scripts so they are atomic across every instance sharing the
// server.
type RedisBackend struct {
	client    goredis.UniversalClient
	keyPrefix string
}

var _ Backend = (*RedisBackend)(nil)

// RedisOption configures RedisBackend.
type RedisOption func(*RedisBackend)

// WithKeyPrefix prepends prefix to every key (default "").
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisBackend) { r.keyPrefix = prefix }
}

// NewRedisBackend creates a backend on an existing client.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func NewRedisBackend(client goredis.UniversalClient, opts ...RedisOption) *RedisBackend {
	r := &RedisBackend{client: client}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// incrScript increments a counter and attaches the expiry when the key has
// none, which is only the case right after creation.
// KEYS[1] = counter key
// ARGV[1] = ttl (milliseconds)
var incrScript = goredis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if redis.call('PTTL', KEYS[1]) == -1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// incrIfBelowScript increments a counter only while it is below a limit.
// KEYS[1] = counter key
// ARGV[1] = limit
// ARGV[2] = ttl (milliseconds)
//
// Returns {value, 1} when incremented, {value, 0} when refused.
var incrIfBelowScript = goredis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if cur >= tonumber(ARGV[1]) then
  return {cur, 0}
end
local n = redis.call('INCR', KEYS[1])
if redis.call('PTTL', KEYS[1]) == -1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {n, 1}
`)

// decrScript decrements a counter with a floor of zero.
// KEYS[1] = counter key
var decrScript = goredis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if cur <= 0 then
  return 0
end
return redis.call('DECR', KEYS[1])
`)

// bucketScript refills a token bucket for the elapsed time and optionally
// takes one token.
// KEYS[1] = bucket hash key (fields: tokens, last_refill)
// ARGV[1] = capacity
// ARGV[2] = refill rate (tokens per second)
// ARGV[3] = now (unix milliseconds)
// ARGV[4] = ttl (milliseconds)
// ARGV[5] = take ("1" or "0")
//
// Returns {granted, wait_ms, tokens}. tokens is a string because Lua numbers
// are truncated to integers in replies.
var bucketScript = goredis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local state = redis.call('HMGET', KEYS[1], 'tokens', 'last_refill')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
  tokens = capacity
  last = now
end
if now > last then
  tokens = math.min(capacity, tokens + (now - last) / 1000 * rate)
  last = now
end
if ARGV[5] ~= '1' then
  return {0, 0, tostring(tokens)}
end
local granted = 0
local wait = 0
if tokens >= 1 then
  tokens = tokens - 1
  granted = 1
elseif rate > 0 then
  wait = math.ceil((1 - tokens) / rate * 1000)
end
redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'last_refill', tostring(last))
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {granted, wait, tostring(tokens)}
`)

// Get returns the current value of a counter.
func (r *RedisBackend) Get(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Get(ctx, r.key(key)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, &limits.StoreError{Op: "get", Key: key, Err: err}
	}
	return n, nil
}

// Incr atomically increments a counter, setting its expiry on creation.
func (r *RedisBackend) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := incrScript.Run(ctx, r.client, []string{r.key(key)}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, &limits.StoreError{Op: "incr", Key: key, Err: err}
	}
	return n, nil
}

// IncrIfBelow increments a counter only while it is below limit.
func (r *RedisBackend) IncrIfBelow(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	vals, err := incrIfBelowScript.Run(ctx, r.client, []string{r.key(key)}, limit, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, false, &limits.StoreError{Op: "incr_if_below", Key: key, Err: err}
	}
	if len(vals) != 2 {
		return 0, false, &limits.StoreError{Op: "incr_if_below", Key: key, Err: fmt.Errorf("unexpected reply length %d", len(vals))}
	}
	return vals[0], vals[1] == 1, nil
}

// Decr decrements a counter with a floor of zero.
func (r *RedisBackend) Decr(ctx context.Context, key string) (int64, error) {
	n, err := decrScript.Run(ctx, r.client, []string{r.key(key)}).Int64()
	if err != nil {
		return 0, &limits.StoreError{Op: "decr", Key: key, Err: err}
	}
	return n, nil
}

// Delete removes a counter.
func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return &limits.StoreError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// TakeToken refills and takes from the bucket at key in one script call.
func (r *RedisBackend) TakeToken(ctx context.Context, key string, params BucketParams, now time.Time) (BucketResult, error) {
	granted, wait, tokens, err := r.runBucket(ctx, key, params, now, true)
	if err != nil {
		return BucketResult{}, &limits.StoreError{Op: "take_token", Key: key, Err: err}
	}
	return BucketResult{
		Granted:    granted,
		Tokens:     tokens,
		RetryAfter: time.Duration(wait) * time.Millisecond,
	}, nil
}

// PeekTokens returns the refilled token count without consuming.
func (r *RedisBackend) PeekTokens(ctx context.Context, key string, params BucketParams, now time.Time) (float64, error) {
	_, _, tokens, err := r.runBucket(ctx, key, params, now, false)
	if err != nil {
		return 0, &limits.StoreError{Op: "peek_tokens", Key: key, Err: err}
	}
	return tokens, nil
}

// Cleanup is a no-op; Redis expires keys natively.
func (r *RedisBackend) Cleanup(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

// Ping checks connectivity.
func (r *RedisBackend) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return &limits.StoreError{Op: "ping", Err: err}
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}

func (r *RedisBackend) key(k string) string {
	return r.keyPrefix + k
}

func (r *RedisBackend) runBucket(ctx context.Context, key string, params BucketParams, now time.Time, take bool) (bool, int64, float64, error) {
	takeArg := "0"
	if take {
		takeArg = "1"
	}

	res, err := bucketScript.Run(ctx, r.client, []string{r.key(key)},
		strconv.FormatFloat(params.Capacity, 'f', -1, 64),
		strconv.FormatFloat(params.RefillRate, 'f', -1, 64),
		now.UnixMilli(),
		params.IdleTTL().Milliseconds(),
		takeArg,
	).Slice()
	if err != nil {
		return false, 0, 0, err
	}
	if len(res) != 3 {
		return false, 0, 0, fmt.Errorf("unexpected reply length %d", len(res))
	}

	granted, _ := res[0].(int64)
	wait, _ := res[1].(int64)
	tokensStr, _ := res[2].(string)
	tokens, err := strconv.ParseFloat(tokensStr, 64)
	if err != nil {
		return false, 0, 0, fmt.Errorf("parse tokens %q: %w", tokensStr, err)
	}

	return granted == 1, wait, tokens, nil
}
