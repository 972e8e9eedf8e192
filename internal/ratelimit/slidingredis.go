package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingScript works in milliseconds so scores stay exact as Lua numbers.
// It trims the window, admits the event only when there is room,
// and returns the count after the decision plus the oldest score so the
// caller can tell when a slot frees up. Rejected selections are not
// recorded, so a client that keeps retrying is not locked out forever.
var slidingScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local admitted = 0
if count < max then
	redis.call('ZADD', key, now, ARGV[4])
	count = count + 1
	admitted = 1
end
redis.call('PEXPIRE', key, window)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local first = now
if oldest[2] then first = tonumber(oldest[2]) end
return {admitted, count, tostring(first)}
`)

// Limiter is a sliding window limiter over Redis sorted sets. It guards the
// quote selections of one session, each of which costs an upstream
// calculation.
type Limiter struct {
	Client redis.Cmdable
	Prefix string
	Now    func() time.Time
}

// Allow admits one event for key when fewer than limit were admitted in the
// trailing window. reset is when the oldest admitted event leaves the window.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, limit int) (allowed bool, remaining int, reset time.Time, err error) {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	if l.Client == nil || limit <= 0 || window <= 0 {
		return true, limit, now.Add(window), nil
	}

	res, err := slidingScript.Run(ctx, l.Client, []string{l.Prefix + key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString()).Slice()
	if err != nil {
		return false, 0, now.Add(window), err
	}
	admitted, _ := res[0].(int64)
	count, _ := res[1].(int64)
	oldest := now.UnixMilli()
	if s, ok := res[2].(string); ok {
		if f, perr := strconv.ParseFloat(s, 64); perr == nil {
			oldest = int64(f)
		}
	}
	return admitted == 1, max(limit-int(count), 0), time.UnixMilli(oldest).Add(window), nil
}
