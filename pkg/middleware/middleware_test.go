package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	pkgredis "github.com/prohmpiriya/leadflow/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		url    string
		want   string
	}{
		{"bearer header", "Bearer abc.def", "/x", "abc.def"},
		{"query fallback", "", "/x?token=qqq", "qqq"},
		{"header wins over query", "Bearer hhh", "/x?token=qqq", "hhh"},
		{"non bearer header", "Basic Zm9v", "/x?token=qqq", ""},
		{"nothing", "", "/x", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, ExtractToken(c))
		})
	}
}

func TestIdentityRoundTrip(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	SetIdentity(c, &Identity{SessionID: "s", Email: "e@x.com", Role: "client", TenantID: "acme"})

	role, ok := GetRole(c)
	assert.True(t, ok)
	assert.Equal(t, "client", role)
	tid, _ := GetTenantID(c)
	assert.Equal(t, "acme", tid)
	sid, _ := GetSessionID(c)
	assert.Equal(t, "s", sid)
}

func TestCORS(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://app.example.com"}

	r := gin.New()
	r.Use(CORS(cfg))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("allowed origin preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
		req.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), HeaderAdminKey)
	})

	t.Run("foreign origin gets no headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestLocalRateLimiter(t *testing.T) {
	ctx := context.Background()
	rl := NewLocalRateLimiter(RateLimitConfig{RequestsPerMinute: 60, BurstSize: 2, EntryTTL: time.Hour})
	defer rl.Stop()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	allow := func(key string) bool {
		ok, err := rl.Allow(ctx, key)
		require.NoError(t, err)
		return ok
	}

	assert.True(t, allow("1.1.1.1"))
	assert.True(t, allow("1.1.1.1"))
	assert.False(t, allow("1.1.1.1"))
	assert.True(t, allow("2.2.2.2"), "buckets are per key")

	now = now.Add(time.Second)
	assert.True(t, allow("1.1.1.1"), "one token refills per second at 60/min")
	assert.False(t, allow("1.1.1.1"))

	rl.Stop()
	rl.Stop()
}

func newRedisLimiter(t *testing.T, cfg RateLimitConfig) (*miniredis.Miniredis, *RedisRateLimiter, *time.Time) {
	mr := miniredis.RunT(t)
	client := pkgredis.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRedisRateLimiter(client, cfg)
	rl.now = func() time.Time { return now }
	return mr, rl, &now
}

func TestRedisRateLimiter(t *testing.T) {
	ctx := context.Background()
	mr, rl, now := newRedisLimiter(t, RateLimitConfig{RequestsPerMinute: 60, BurstSize: 2, EntryTTL: time.Minute, KeyPrefix: "rl:"})

	allow := func(key string) bool {
		ok, err := rl.Allow(ctx, key)
		require.NoError(t, err)
		return ok
	}

	assert.True(t, allow("1.1.1.1"))
	assert.True(t, allow("1.1.1.1"))
	assert.False(t, allow("1.1.1.1"))
	assert.True(t, allow("2.2.2.2"), "buckets are per key")
	assert.Equal(t, time.Minute, mr.TTL("rl:1.1.1.1"))

	*now = now.Add(time.Second)
	assert.True(t, allow("1.1.1.1"), "one token refills per second at 60/min")
	assert.False(t, allow("1.1.1.1"))
}

func TestRedisRateLimiter_SharedAcrossInstances(t *testing.T) {
	ctx := context.Background()
	mr, first, now := newRedisLimiter(t, RateLimitConfig{RequestsPerMinute: 1, BurstSize: 1, KeyPrefix: "rl:"})

	client := pkgredis.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	defer client.Close()
	second := NewRedisRateLimiter(client, first.Config())
	second.now = func() time.Time { return *now }

	ok, err := first.Allow(ctx, "1.1.1.1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Allow(ctx, "1.1.1.1")
	require.NoError(t, err)
	assert.False(t, ok, "the second instance sees the drained bucket")
}

func TestRateLimitByIP_FailsOpenWhenRedisIsDown(t *testing.T) {
	mr, rl, _ := newRedisLimiter(t, RateLimitConfig{RequestsPerMinute: 1, BurstSize: 1})
	mr.Close()

	r := gin.New()
	r.POST("/login", RateLimitByIP(rl), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimitByIP(t *testing.T) {
	rl := NewLocalRateLimiter(RateLimitConfig{RequestsPerMinute: 1, BurstSize: 1})
	defer rl.Stop()

	r := gin.New()
	r.POST("/login", RateLimitByIP(rl), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}
