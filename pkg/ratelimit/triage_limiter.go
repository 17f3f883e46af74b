// Package ratelimit provides a sliding window limiter shared through Redis.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SlidingWindowLimiter allows at most limit events per key within window.
// Without Redis it keeps the window in process memory.
type SlidingWindowLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration

	mu    sync.Mutex
	local map[string][]time.Time
	now   func() time.Time
}

func NewSlidingWindowLimiter(redisClient *redis.Client, limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		redis:  redisClient,
		limit:  limit,
		window: window,
		local:  make(map[string][]time.Time),
		now:    time.Now,
	}
}

func (l *SlidingWindowLimiter) Limit() int { return l.limit }

var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local max_requests = tonumber(ARGV[3])
local window_ms = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)

if count < max_requests then
	redis.call('ZADD', key, now, now .. '-' .. math.random())
	redis.call('PEXPIRE', key, window_ms * 2)
	return 1
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #oldest > 0 then
	return -(oldest[2] + window_ms - now)
end
return 0
`)

// Allow records one event for key and reports whether it fits. When it does
// not, the returned duration is how long until the oldest event expires.
// A Redis failure admits the request.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if l.limit <= 0 {
		return true, 0
	}
	if l.redis == nil {
		return l.allowLocal(key)
	}

	now := l.now()
	result, err := slidingWindow.Run(ctx, l.redis, []string{fmt.Sprintf("ratelimit:%s", key)},
		now.UnixMilli(),
		now.Add(-l.window).UnixMilli(),
		l.limit,
		l.window.Milliseconds(),
	).Int64()
	if err != nil {
		return true, 0
	}

	switch {
	case result == 1:
		return true, 0
	case result < 0:
		return false, time.Duration(-result) * time.Millisecond
	default:
		return false, l.window
	}
}

func (l *SlidingWindowLimiter) allowLocal(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	events := l.local[key]
	kept := events[:0]
	for _, t := range events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.limit {
		l.local[key] = kept
		return false, kept[0].Add(l.window).Sub(now)
	}
	l.local[key] = append(kept, now)
	return true, 0
}
