package middleware

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/leadflow/pkg/logger"
	pkgredis "github.com/prohmpiriya/leadflow/pkg/redis"
	"github.com/prohmpiriya/leadflow/pkg/response"
	"go.uber.org/zap"
)

// RateLimitConfig configures a per-key token bucket
type RateLimitConfig struct {
	RequestsPerMinute int
	BurstSize         int
	// Entry TTL for idle buckets
	EntryTTL time.Duration
	// Key prefix for Redis
	KeyPrefix string
}

// LoginRateLimitConfig is tuned for credential endpoints
func LoginRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		BurstSize:         5,
		EntryTTL:          10 * time.Minute,
		KeyPrefix:         "ratelimit:login:",
	}
}

// Limiter decides whether a caller may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Config() RateLimitConfig
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// LocalRateLimiter is an in-memory token bucket keyed by caller
type LocalRateLimiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewLocalRateLimiter creates a limiter and starts its janitor
func NewLocalRateLimiter(cfg RateLimitConfig) *LocalRateLimiter {
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 10 * time.Minute
	}
	rl := &LocalRateLimiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go rl.janitor()
	return rl
}

func (rl *LocalRateLimiter) Config() RateLimitConfig { return rl.cfg }

// Allow takes one token for key
func (rl *LocalRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(rl.cfg.BurstSize), lastUpdate: now}
		rl.buckets[key] = b
	}

	refill := now.Sub(b.lastUpdate).Minutes() * float64(rl.cfg.RequestsPerMinute)
	b.tokens = minFloat(float64(rl.cfg.BurstSize), b.tokens+refill)
	b.lastUpdate = now

	if b.tokens >= 1 {
		b.tokens--
		return true, nil
	}
	return false, nil
}

func (rl *LocalRateLimiter) janitor() {
	ticker := time.NewTicker(rl.cfg.EntryTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := rl.now().Add(-rl.cfg.EntryTTL)
			for k, b := range rl.buckets {
				if b.lastUpdate.Before(cutoff) {
					delete(rl.buckets, k)
				}
			}
			rl.mu.Unlock()
		case <-rl.stop:
			return
		}
	}
}

// Stop stops the janitor goroutine
func (rl *LocalRateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

// tokenBucketScript refills and takes one token atomically.
// ARGV: rate per second, burst, now in seconds, ttl in seconds
const tokenBucketScript = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call("HMGET", key, "tokens", "last_update")
local tokens = tonumber(data[1]) or burst
local last_update = tonumber(data[2]) or now

local elapsed = math.max(0, now - last_update)
tokens = math.min(burst, tokens + elapsed * rate)

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call("HSET", key, "tokens", tostring(tokens), "last_update", tostring(now))
redis.call("EXPIRE", key, ttl)
return allowed
`

// RedisRateLimiter shares buckets across instances through Redis
type RedisRateLimiter struct {
	cfg    RateLimitConfig
	client pkgredis.Scripter
	now    func() time.Time
}

// NewRedisRateLimiter creates a limiter backed by client
func NewRedisRateLimiter(client pkgredis.Scripter, cfg RateLimitConfig) *RedisRateLimiter {
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 10 * time.Minute
	}
	return &RedisRateLimiter{cfg: cfg, client: client, now: time.Now}
}

func (rl *RedisRateLimiter) Config() RateLimitConfig { return rl.cfg }

// Allow takes one token for key from the shared bucket
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(rl.now().UnixNano()) / 1e9
	ttl := int64(rl.cfg.EntryTTL / time.Second)
	if ttl < 1 {
		ttl = 1
	}

	res, err := rl.client.Eval(ctx, tokenBucketScript,
		[]string{rl.cfg.KeyPrefix + key},
		float64(rl.cfg.RequestsPerMinute)/60,
		rl.cfg.BurstSize,
		now,
		ttl,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	return res == 1, nil
}

// RateLimitByIP rejects callers that exhaust their bucket with 429.
// Limiter errors fail open.
func RateLimitByIP(rl Limiter) gin.HandlerFunc {
	cfg := rl.Config()
	return func(c *gin.Context) {
		allowed, err := rl.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.WithContext(c.Request.Context()).Warn("Rate limiter unavailable, allowing request", zap.Error(err))
			allowed = true
		}
		if allowed {
			c.Next()
			return
		}
		retry := 60 / max(cfg.RequestsPerMinute, 1)
		c.Header("Retry-After", strconv.Itoa(max(retry, 1)))
		response.Abort(c, response.TooManyRequests("Too many login attempts, please try again later"))
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
