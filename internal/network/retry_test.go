// internal/network/retry_test.go
package network

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	policy := &RetryPolicy{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		BackoffFactor:  2,
	}

	assert.Equal(t, 100*time.Millisecond, policy.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, policy.Backoff(2))
	assert.Equal(t, 400*time.Millisecond, policy.Backoff(3))
	assert.Equal(t, time.Second, policy.Backoff(10), "backoff is capped at MaxBackoff")
}

func TestRetryPolicy_BackoffJitterBounds(t *testing.T) {
	policy := &RetryPolicy{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		BackoffFactor:  2,
		Jitter:         true,
	}

	for i := 0; i < 50; i++ {
		d := policy.Backoff(2)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 200*time.Millisecond)
	}
}

func TestRetryPolicy_BackoffWithoutMax(t *testing.T) {
	policy := &RetryPolicy{InitialBackoff: 50 * time.Millisecond, BackoffFactor: 2}
	assert.Equal(t, 50*time.Millisecond, policy.Backoff(3))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2015, 10, 21, 7, 28, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		limit time.Duration
		want  time.Duration
	}{
		{"empty", "", time.Minute, 0},
		{"seconds", "3", time.Minute, 3 * time.Second},
		{"seconds with spaces", " 3 ", time.Minute, 3 * time.Second},
		{"seconds capped", "120", 10 * time.Second, 10 * time.Second},
		{"negative seconds", "-4", time.Minute, 0},
		{"http date", "Wed, 21 Oct 2015 07:28:05 GMT", time.Minute, 5 * time.Second},
		{"http date capped", "Wed, 21 Oct 2015 08:28:00 GMT", 10 * time.Second, 10 * time.Second},
		{"http date in the past", "Wed, 21 Oct 2015 07:27:00 GMT", time.Minute, 0},
		{"rfc850 date", "Wednesday, 21-Oct-15 07:28:30 GMT", time.Minute, 30 * time.Second},
		{"garbage", "soon", time.Minute, 0},
		{"overflowing seconds", "99999999999999999", time.Minute, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRetryAfter(tt.value, tt.limit, now))
		})
	}
}

func TestRetryTransport_RetriesWaitOnLimiter(t *testing.T) {
	var calls atomic.Int32
	next := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		code := http.StatusServiceUnavailable
		if calls.Add(1) > 2 {
			code = http.StatusOK
		}
		return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader("")), Header: http.Header{}, Request: req}, nil
	})

	limiter := rate.NewLimiter(rate.Every(50*time.Millisecond), 1)
	// The caller spends the burst token on the first attempt.
	require.NoError(t, limiter.Wait(context.Background()))

	policy := NewDefaultRetryPolicy()
	policy.Jitter = false
	policy.InitialBackoff = time.Millisecond
	policy.MaxBackoff = time.Millisecond
	policy.Limiter = limiter

	rt := &retryTransport{next: next, policy: policy, logger: zap.NewNop(), sleep: sleepContext}
	req, err := http.NewRequest(http.MethodGet, "http://icons.test/Attack_icon.png", nil)
	require.NoError(t, err)

	start := time.Now()
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
	// Two retries, each needing a fresh token at 20/s.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestRetryTransport_LimiterRespectsContext(t *testing.T) {
	next := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusServiceUnavailable, Body: io.NopCloser(strings.NewReader("")), Header: http.Header{}, Request: req}, nil
	})
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	require.True(t, limiter.Allow())

	policy := NewDefaultRetryPolicy()
	policy.InitialBackoff = time.Millisecond
	policy.MaxBackoff = time.Millisecond
	policy.Limiter = limiter
	rt := &retryTransport{next: next, policy: policy, logger: zap.NewNop(), sleep: sleepContext}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://icons.test/Magic_icon.png", nil)
	require.NoError(t, err)

	_, err = rt.RoundTrip(req)
	assert.Error(t, err)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestIsIdempotent(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		req, _ := http.NewRequest(method, "http://example.com", nil)
		assert.True(t, isIdempotent(req), method)
	}
	for _, method := range []string{http.MethodPost, http.MethodPatch} {
		req, _ := http.NewRequest(method, "http://example.com", nil)
		assert.False(t, isIdempotent(req), method)
	}
}
