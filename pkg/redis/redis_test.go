package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-metrics/pkg/config"
)

func TestNewClient_Disabled(t *testing.T) {
	client, err := New(context.Background(), config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Close())

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
}

func TestNewClient_Unreachable(t *testing.T) {
	_, err := New(context.Background(), config.RedisConfig{
		Enabled: true,
		Host:    "127.0.0.1",
		Port:    "1", // nothing listens here
	})
	assert.Error(t, err)
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(Disabled(), "test")
	cfg := SourceRateLimit("yahoo", 4)

	allowed, remaining, err := limiter.Allow(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, cfg.Limit, remaining)
	assert.NoError(t, limiter.Wait(context.Background(), cfg))
}

func TestSourceRateLimit(t *testing.T) {
	tests := []struct {
		rps  float64
		want int
	}{
		{4, 4},
		{2.5, 3},
		{0, 1},
		{-1, 1},
	}
	for _, tt := range tests {
		cfg := SourceRateLimit("yahoo", tt.rps)
		assert.Equal(t, tt.want, cfg.Limit, "rps=%v", tt.rps)
		assert.Equal(t, time.Second, cfg.Window)
		assert.Equal(t, "yahoo", cfg.Key)
	}
}

func TestCache_Disabled(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(Disabled(), "test")
	assert.False(t, cache.Enabled())

	require.NoError(t, cache.Set(ctx, "key", "value", time.Minute))

	var result string
	found, err := cache.Get(ctx, "key", &result)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, cache.Delete(ctx, "key"))
}

func TestCacheKeys(t *testing.T) {
	start := time.Date(2014, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "prices:AAPL:20140102:20240614", PricesKey("AAPL", start, end))
	assert.Equal(t, "dividends:AAPL:20240614", DividendsKey("AAPL", end))
	assert.Equal(t, "test:cache:k", NewCache(Disabled(), "test").fullKey("k"))
}
