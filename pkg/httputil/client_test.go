package httputil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-metrics/pkg/config"
	"github.com/wonny/aegis-metrics/pkg/logger"
	"github.com/wonny/aegis-metrics/pkg/redis"
)

func TestNew(t *testing.T) {
	client := New(config.SourceConfig{Timeout: 5 * time.Second, RequestsPerSecond: 4}, logger.Nop())

	require.NotNil(t, client.httpClient)
	assert.Equal(t, 5*time.Second, client.httpClient.Timeout)
	require.NotNil(t, client.limiter)
	assert.Equal(t, 4, client.limiter.Burst())

	noLimit := New(config.SourceConfig{}, nil)
	assert.Nil(t, noLimit.limiter)
	assert.Equal(t, 30*time.Second, noLimit.httpClient.Timeout)
}

func TestGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := New(config.SourceConfig{}, logger.Nop())

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte(`{"status":"ok"}`))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(strings.Repeat("x", 500)))
		}
	}))
	defer server.Close()

	client := New(config.SourceConfig{}, logger.Nop())
	ctx := context.Background()

	body, err := client.GetBody(ctx, server.URL+"/ok")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	body, err = client.GetBody(ctx, server.URL+"/missing")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Len(t, body, 500)
	assert.LessOrEqual(t, len(se.Body), 203)
}

func TestNoInternalRetry(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(config.SourceConfig{}, logger.Nop())
	_, err := client.GetBody(context.Background(), server.URL)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.True(t, IsRetryableError(se.StatusCode))
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestRateLimit_CancelledContext(t *testing.T) {
	client := New(config.SourceConfig{RequestsPerSecond: 0.001}, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	// first token is available immediately, the second would take ~16 minutes
	require.NoError(t, client.limiter.Wait(ctx))
	cancel()

	_, err := client.Get(ctx, "http://127.0.0.1:1")
	assert.Error(t, err)
}

func TestSharedRateLimiter_Disabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`ok`))
	}))
	defer server.Close()

	client := New(config.SourceConfig{}, logger.Nop()).
		WithRateLimiter(redis.NewRateLimiter(redis.Disabled(), "test"), redis.SourceRateLimit("yahoo", 2))

	body, err := client.GetBody(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		statusCode int
		want       bool
	}{
		{200, false},
		{400, false},
		{401, false},
		{404, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.statusCode), func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.statusCode))
		})
	}
}
