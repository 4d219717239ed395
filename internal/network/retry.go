// internal/network/retry.go
package network

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RetryPolicy configures how the client retries transient failures.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// BackoffFactor is the multiplier between consecutive backoffs.
	BackoffFactor float64
	// Jitter randomizes each backoff to between half and all of its value.
	Jitter               bool
	RetryableStatusCodes map[int]bool
	// Limiter, when set, is waited on before every retry so retries count
	// against the same request budget as first attempts.
	Limiter *rate.Limiter
}

// NewDefaultRetryPolicy returns a policy with a few jittered exponential retries.
func NewDefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
		RetryableStatusCodes: map[int]bool{
			http.StatusTooManyRequests:     true,
			http.StatusInternalServerError: true,
			http.StatusBadGateway:          true,
			http.StatusServiceUnavailable:  true,
			http.StatusGatewayTimeout:      true,
		},
	}
}

// Backoff returns the wait before the given 1-based retry.
func (p *RetryPolicy) Backoff(retry int) time.Duration {
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	backoff := float64(p.InitialBackoff) * math.Pow(factor, float64(retry-1))

	if backoff > float64(p.MaxBackoff) || backoff <= 0 {
		if p.MaxBackoff > 0 {
			backoff = float64(p.MaxBackoff)
		} else {
			return p.InitialBackoff
		}
	}

	d := time.Duration(backoff)
	if p.Jitter && d > 0 {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()*0.5))
	}
	return d
}

// retryTransport re-issues idempotent requests that failed transiently.
type retryTransport struct {
	next   http.RoundTripper
	policy *RetryPolicy
	logger *zap.Logger
	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func (rt *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if rt.policy == nil || rt.policy.MaxRetries <= 0 || !isIdempotent(req) {
		return rt.next.RoundTrip(req)
	}

	ctx := req.Context()
	for attempt := 0; ; attempt++ {
		attemptReq := req
		if attempt > 0 {
			var err error
			if attemptReq, err = rewind(req); err != nil {
				return nil, err
			}
			if rt.policy.Limiter != nil {
				if err := rt.policy.Limiter.Wait(ctx); err != nil {
					return nil, err
				}
			}
		}

		resp, err := rt.next.RoundTrip(attemptReq)
		retry, retryAfter := rt.shouldRetry(ctx, resp, err, attempt)
		if !retry {
			return resp, err
		}

		wait := retryAfter
		if wait <= 0 {
			wait = rt.policy.Backoff(attempt + 1)
		}

		fields := []zap.Field{
			zap.String("url", req.URL.String()),
			zap.Int("retry", attempt+1),
			zap.Duration("backoff", wait),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		} else {
			fields = append(fields, zap.Int("status", resp.StatusCode))
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			_ = resp.Body.Close()
		}
		rt.logger.Debug("Retrying request", fields...)

		if err := rt.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// shouldRetry decides whether the attempt that just completed is retried.
// attempt is 0-based.
func (rt *retryTransport) shouldRetry(ctx context.Context, resp *http.Response, err error, attempt int) (bool, time.Duration) {
	if attempt >= rt.policy.MaxRetries || ctx.Err() != nil {
		return false, 0
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, 0
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true, 0
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return true, 0
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return true, 0
		}
		return false, 0
	}

	if !rt.policy.RetryableStatusCodes[resp.StatusCode] {
		return false, 0
	}
	return true, parseRetryAfter(resp.Header.Get("Retry-After"), rt.policy.MaxBackoff, time.Now())
}

// parseRetryAfter reads either form of Retry-After (delay-seconds or an
// HTTP-date relative to now) and caps the result at limit. Zero means the
// header is absent, invalid or already in the past.
func parseRetryAfter(value string, limit time.Duration, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	var d time.Duration
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		if int64(seconds) > math.MaxInt64/int64(time.Second) {
			d = time.Duration(math.MaxInt64)
		} else {
			d = time.Duration(seconds) * time.Second
		}
	} else if date, err := http.ParseTime(value); err == nil {
		d = date.Sub(now)
		if d <= 0 {
			return 0
		}
	} else {
		return 0
	}

	if limit > 0 && d > limit {
		d = limit
	}
	return d
}

func isIdempotent(req *http.Request) bool {
	switch req.Method {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// rewind returns a copy of req with a fresh body for another attempt.
func rewind(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, errors.New("request body cannot be replayed for retry")
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return clone, nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
