package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonathan/job-matcher/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frozen pins the limiter clock so refills only happen when a test advances it.
func frozen(l *Limiter) *time.Time {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return &now
}

func TestLimiter_Allow(t *testing.T) {
	limiter := NewLimiter(&Config{Enabled: true, DefaultLimit: 10, DefaultWindow: time.Minute})
	defer limiter.Stop()
	frozen(limiter)

	for i := range 10 {
		allowed, info := limiter.Allow("127.0.0.1", "/workflows/abc", "GET")
		require.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 10, info.Limit)
		assert.Equal(t, 9-i, info.Remaining)
	}

	allowed, info := limiter.Allow("127.0.0.1", "/workflows/abc", "GET")
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.InDelta(t, float64(6*time.Second), float64(info.RetryAfter), float64(time.Millisecond))
	assert.True(t, info.ResetTime.After(limiter.now()))

	// Other clients have their own bucket.
	allowed, _ = limiter.Allow("10.0.0.1", "/workflows/abc", "GET")
	assert.True(t, allowed)
}

func TestLimiter_Refill(t *testing.T) {
	limiter := NewLimiter(&Config{Enabled: true, DefaultLimit: 2, DefaultWindow: 2 * time.Second})
	defer limiter.Stop()
	now := frozen(limiter)

	for range 2 {
		allowed, _ := limiter.Allow("c", "/x", "GET")
		require.True(t, allowed)
	}
	allowed, _ := limiter.Allow("c", "/x", "GET")
	require.False(t, allowed)

	*now = now.Add(time.Second)
	allowed, _ = limiter.Allow("c", "/x", "GET")
	assert.True(t, allowed)
	allowed, _ = limiter.Allow("c", "/x", "GET")
	assert.False(t, allowed)
}

func TestLimiter_Disabled(t *testing.T) {
	limiter := NewLimiter(&Config{Enabled: false})
	defer limiter.Stop()

	for range 100 {
		allowed, info := limiter.Allow("c", "/workflows", "POST")
		require.True(t, allowed)
		assert.Zero(t, info.Limit)
	}
}

func TestLimiter_EndpointSpecific(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  100,
		DefaultWindow: time.Minute,
		EndpointConfigs: []EndpointConfig{
			{Path: "/workflows", Method: "POST", Limit: 10, Window: time.Hour, Burst: 2},
		},
	})
	defer limiter.Stop()
	frozen(limiter)

	for range 2 {
		allowed, _ := limiter.Allow("c", "/workflows", "POST")
		require.True(t, allowed)
	}
	allowed, info := limiter.Allow("c", "/workflows", "POST")
	assert.False(t, allowed)
	assert.Equal(t, 10, info.Limit)

	// Reads fall back to the default limit.
	allowed, info = limiter.Allow("c", "/workflows", "GET")
	assert.True(t, allowed)
	assert.Equal(t, 100, info.Limit)
}

func TestLimiter_UnlimitedRoutes(t *testing.T) {
	limiter := NewLimiter(&Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Hour})
	defer limiter.Stop()
	frozen(limiter)

	for range 5 {
		allowed, _ := limiter.Allow("c", "/health", "GET")
		require.True(t, allowed)
		allowed, _ = limiter.Allow("engine", "/internal/stages/parse_cv", "POST")
		require.True(t, allowed)
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	limiter := NewLimiter(&Config{Enabled: true, DefaultLimit: 100, DefaultWindow: time.Minute})
	defer limiter.Stop()
	frozen(limiter)

	var wg sync.WaitGroup
	var allowedCount atomic.Int32
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if allowed, _ := limiter.Allow("127.0.0.1", "/test", "GET"); allowed {
				allowedCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(100), allowedCount.Load())
}

func TestLimiter_EvictIdle(t *testing.T) {
	limiter := NewLimiter(&Config{Enabled: true, DefaultLimit: 10, DefaultWindow: time.Minute, IdleTTL: time.Minute})
	defer limiter.Stop()
	now := frozen(limiter)

	limiter.Allow("old", "/x", "GET")
	*now = now.Add(2 * time.Minute)
	limiter.Allow("fresh", "/x", "GET")

	limiter.evictIdle()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.Len(t, limiter.buckets, 1)
	assert.Contains(t, limiter.buckets, "fresh:/x:GET")
}

func TestLimiter_StopTwice(t *testing.T) {
	limiter := NewLimiter(nil)
	limiter.Stop()
	assert.NotPanics(t, limiter.Stop)
}

func TestFromServerConfig(t *testing.T) {
	cfg := FromServerConfig(config.ServerConfig{RateLimit: 0.2, RateBurst: 3})
	require.True(t, cfg.Enabled)
	ep := MatchEndpoint("/workflows", "POST", cfg.EndpointConfigs)
	require.NotNil(t, ep)
	assert.Equal(t, 12, ep.Limit)
	assert.Equal(t, time.Minute, ep.Window)
	assert.Equal(t, 3, ep.Burst)

	assert.False(t, FromServerConfig(config.ServerConfig{}).Enabled)
}

func TestMatchEndpoint(t *testing.T) {
	configs := []EndpointConfig{
		{Path: "/workflows", Method: "POST", Limit: 1},
		{Path: "/workflows/", Method: "POST", Limit: 2},
	}
	tests := []struct {
		name   string
		path   string
		method string
		want   int
		isNil  bool
	}{
		{name: "exact", path: "/workflows", method: "POST", want: 1},
		{name: "prefix", path: "/workflows/123/cancel", method: "POST", want: 2},
		{name: "method mismatch", path: "/workflows", method: "GET", isNil: true},
		{name: "health", path: "/health", method: "GET", want: 0},
		{name: "internal", path: "/internal/stages/search_jobs", method: "POST", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchEndpoint(tt.path, tt.method, configs)
			if tt.isNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Limit)
		})
	}
}
