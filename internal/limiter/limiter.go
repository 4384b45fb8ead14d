// Package limiter throttles message submissions per client key.
package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more request from key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// DefaultIdle is how long an unused in-memory bucket is kept.
const DefaultIdle = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Memory keeps one token bucket per key in process memory.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
}

// NewMemory allows rps requests per second per key with bursts of up to burst.
func NewMemory(rps float64, burst int) *Memory {
	if burst < 1 {
		burst = 1
	}
	return &Memory{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(rps),
		burst:   burst,
		idle:    DefaultIdle,
		now:     time.Now,
	}
}

func (m *Memory) Allow(ctx context.Context, key string) (bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(m.limit, m.burst)}
		m.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1), nil
}

// Cleanup drops buckets unused for longer than the idle period and returns
// how many were removed.
func (m *Memory) Cleanup() int {
	cutoff := m.now().Add(-m.idle)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, b := range m.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(m.buckets, key)
			removed++
		}
	}
	return removed
}

// Run calls Cleanup every interval until ctx is done.
func (m *Memory) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cleanup()
		}
	}
}

// tokenBucketScript refills and takes one token atomically.
// KEYS[1] bucket key; ARGV capacity, refill rate per second, now in seconds.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local bucket = redis.call('HMGET', key, 'tokens', 'updated_at')
local tokens = tonumber(bucket[1])
local updated_at = tonumber(bucket[2])
if tokens == nil or updated_at == nil then
    tokens = capacity
    updated_at = now
end

tokens = math.min(capacity, tokens + math.max(0, now - updated_at) * rate)

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call('HSET', key, 'tokens', tokens, 'updated_at', now)
redis.call('EXPIRE', key, math.ceil(capacity / rate) + 60)
return allowed
`)

// Redis keeps the token buckets in Redis so that several server processes
// share one limit.
type Redis struct {
	client redis.UniversalClient
	prefix string
	rps    float64
	burst  int
	now    func() time.Time
}

func NewRedis(client redis.UniversalClient, rps float64, burst int) *Redis {
	if burst < 1 {
		burst = 1
	}
	return &Redis{
		client: client,
		prefix: "webchat:rate:",
		rps:    rps,
		burst:  burst,
		now:    time.Now,
	}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(r.now().UnixNano()) / 1e9
	allowed, err := tokenBucketScript.Run(ctx, r.client, []string{r.prefix + key}, r.burst, r.rps, now).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	return allowed == 1, nil
}
