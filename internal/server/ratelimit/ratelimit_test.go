package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is advanced manually by tests
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(cfg *Config) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewLimiter(cfg)
	l.now = clock.now
	return l, clock
}

func TestTokenBucket_Take(t *testing.T) {
	start := time.Now()
	bucket := newTokenBucket(10, 1.0, start)

	for i := 0; i < 10; i++ {
		allowed, _, _, _ := bucket.take(start)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, remaining, reset, wait := bucket.take(start)
	assert.False(t, allowed, "11th request should be denied")
	assert.Equal(t, 0, remaining)
	assert.Equal(t, start.Add(10*time.Second), reset)
	assert.Equal(t, time.Second, wait)

	// One token refills after a second
	allowed, _, _, _ = bucket.take(start.Add(time.Second))
	assert.True(t, allowed)
	allowed, _, _, _ = bucket.take(start.Add(time.Second))
	assert.False(t, allowed)
}

func TestTokenBucket_NeverExceedsCapacity(t *testing.T) {
	start := time.Now()
	bucket := newTokenBucket(3, 1.0, start)

	_, remaining, reset, _ := bucket.take(start.Add(time.Hour))
	assert.Equal(t, 2, remaining)
	assert.True(t, reset.After(start.Add(time.Hour)))
}

func TestLimiter_Allow(t *testing.T) {
	limiter, clock := newTestLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  10,
		DefaultWindow: time.Minute,
	})

	for i := 0; i < 10; i++ {
		allowed, info := limiter.Allow("127.0.0.1", "/lab/save-iteration-data", "POST")
		require.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 10, info.Limit)
		assert.Equal(t, 9-i, info.Remaining)
	}

	allowed, info := limiter.Allow("127.0.0.1", "/lab/save-iteration-data", "POST")
	assert.False(t, allowed)
	assert.InDelta(t, 6.0, info.RetryAfter.Seconds(), 0.001)

	// Other clients and endpoints have their own buckets
	allowed, _ = limiter.Allow("10.0.0.2", "/lab/save-iteration-data", "POST")
	assert.True(t, allowed)
	allowed, _ = limiter.Allow("127.0.0.1", "/lab/log-progress", "POST")
	assert.True(t, allowed)

	clock.advance(7 * time.Second)
	allowed, _ = limiter.Allow("127.0.0.1", "/lab/save-iteration-data", "POST")
	assert.True(t, allowed)
}

func TestLimiter_EndpointConfigs(t *testing.T) {
	limiter, _ := newTestLimiter(&Config{
		Enabled:         true,
		DefaultLimit:    1000,
		DefaultWindow:   time.Minute,
		EndpointConfigs: DefaultEndpointConfigs(),
	})

	for i := 0; i < 5; i++ {
		allowed, _ := limiter.Allow("1.2.3.4", "/api/admin/login", "POST")
		require.True(t, allowed)
	}
	allowed, info := limiter.Allow("1.2.3.4", "/api/admin/login", "POST")
	assert.False(t, allowed, "login burst is 5")
	assert.Equal(t, 10, info.Limit)

	// Prefix rules share a bucket across matching paths
	for i := 0; i < 10; i++ {
		path := fmt.Sprintf("/api/admin/prompts/%s/revert", []string{"control", "regeneration"}[i%2])
		allowed, _ := limiter.Allow("1.2.3.4", path, "POST")
		require.True(t, allowed)
	}
	allowed, _ = limiter.Allow("1.2.3.4", "/api/admin/prompts/control/revert", "POST")
	assert.False(t, allowed)
}

func TestLimiter_HealthUnlimited(t *testing.T) {
	limiter, _ := newTestLimiter(&Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Hour})

	for i := 0; i < 50; i++ {
		allowed, info := limiter.Allow("127.0.0.1", "/health", "GET")
		require.True(t, allowed)
		assert.Zero(t, info.Limit)
	}
	assert.Zero(t, limiter.Len())
}

func TestLimiter_Lists(t *testing.T) {
	limiter, _ := newTestLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Hour,
		Whitelist:     map[string]bool{"10.0.0.1": true},
		Blacklist:     map[string]bool{"10.0.0.66": true},
	})

	for i := 0; i < 5; i++ {
		allowed, _ := limiter.Allow("10.0.0.1", "/lab/x", "POST")
		assert.True(t, allowed)
	}
	allowed, _ := limiter.Allow("10.0.0.66", "/lab/x", "POST")
	assert.False(t, allowed)
}

func TestLimiter_Disabled(t *testing.T) {
	limiter, _ := newTestLimiter(&Config{Enabled: false})
	for i := 0; i < 100; i++ {
		allowed, _ := limiter.Allow("127.0.0.1", "/api/admin/login", "POST")
		require.True(t, allowed)
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	limiter, _ := newTestLimiter(&Config{Enabled: true, DefaultLimit: 100, DefaultWindow: time.Hour})

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := limiter.Allow("127.0.0.1", "/lab/x", "POST"); ok {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, allowedCount)
}

func TestMatchEndpoint(t *testing.T) {
	configs := []EndpointConfig{
		{Path: "/api/admin/prompts", Method: "POST", Limit: 1},
		{Path: "/api/admin/prompts/", Method: "PUT", Limit: 2},
	}

	assert.Equal(t, 1, MatchEndpoint("/api/admin/prompts", "POST", configs).Limit)
	assert.Equal(t, 2, MatchEndpoint("/api/admin/prompts/control", "PUT", configs).Limit)
	assert.Nil(t, MatchEndpoint("/api/admin/prompts/control", "POST", configs))
	assert.Nil(t, MatchEndpoint("/api/admin/prompts", "GET", configs))
	assert.Zero(t, MatchEndpoint("/health", "GET", configs).Limit)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "")
	t.Setenv("RATE_LIMIT_DEFAULT_LIMIT", "42")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.1, 10.0.0.2")
	cfg := LoadConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 42, cfg.DefaultLimit)
	assert.Equal(t, time.Minute, cfg.DefaultWindow)
	assert.True(t, cfg.Whitelist["10.0.0.2"])
	assert.NotEmpty(t, cfg.EndpointConfigs)

	t.Setenv("RATE_LIMIT_ENABLED", "false")
	assert.False(t, LoadConfig().Enabled)
}
