package crawler

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"slices"
	"time"

	"github.com/ternarybob/arbor"
)

// RetryPolicy retries transient fetch failures with exponential backoff and jitter
type RetryPolicy struct {
	MaxAttempts          int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	BackoffMultiplier    float64
	RetryableStatusCodes []int
}

// NewRetryPolicy returns the default policy: 3 attempts, 500ms doubling up to 5s
func NewRetryPolicy(maxAttempts int) *RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &RetryPolicy{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		RetryableStatusCodes: []int{
			408, // Request Timeout
			429, // Too Many Requests
			500,
			502,
			503,
			504,
		},
	}
}

// Retryable reports whether a response status or transport error deserves another attempt
func (p *RetryPolicy) Retryable(statusCode int, err error) bool {
	if statusCode > 0 && slices.Contains(p.RetryableStatusCodes, statusCode) {
		return true
	}
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Backoff returns the wait before the attempt following attempt (zero based), with ±25% jitter
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}
	backoff += backoff * 0.25 * (rand.Float64()*2 - 1)
	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}
	return time.Duration(backoff)
}

// Do calls fn until it succeeds, fails permanently, attempts run out, or ctx ends.
// fn returns the HTTP status it observed (0 when none) and an error.
func (p *RetryPolicy) Do(ctx context.Context, logger arbor.ILogger, fn func(attempt int) (int, error)) (int, error) {
	var (
		statusCode int
		lastErr    error
	)

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		statusCode, lastErr = fn(attempt)
		if lastErr == nil {
			return statusCode, nil
		}
		if !p.Retryable(statusCode, lastErr) || attempt == p.MaxAttempts-1 {
			break
		}

		backoff := p.Backoff(attempt)
		logger.Debug().
			Int("attempt", attempt+1).
			Int("status_code", statusCode).
			Err(lastErr).
			Dur("backoff", backoff).
			Msg("Retrying after backoff")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return statusCode, ctx.Err()
		case <-timer.C:
		}
	}

	return statusCode, lastErr
}
