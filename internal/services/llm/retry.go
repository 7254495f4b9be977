package llm

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// RetryConfig retries rate limited provider calls. Classification runs inside a
// pipeline fetch unit, so the defaults stay well under the fetch timeout.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

const (
	DefaultMaxRetries        = 2
	DefaultInitialBackoff    = 2 * time.Second
	DefaultMaxBackoff        = 10 * time.Second
	DefaultBackoffMultiplier = 1.5
)

func NewDefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        DefaultMaxRetries,
		InitialBackoff:    DefaultInitialBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		BackoffMultiplier: DefaultBackoffMultiplier,
	}
}

// IsRateLimitError matches 429 responses and quota exhaustion messages
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "rate_limit_error") ||
		strings.Contains(errStr, "quota")
}

// retryDelayRegex matches "Please retry in Xs" or "retryDelay:Xs" patterns
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// ExtractRetryDelay parses a provider-suggested retry delay; zero when absent
func ExtractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}

	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}

	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// CalculateBackoff grows from the API delay (or InitialBackoff) and caps at MaxBackoff
func (c *RetryConfig) CalculateBackoff(attempt int, apiDelay time.Duration) time.Duration {
	base := c.InitialBackoff
	if apiDelay > 0 {
		base = apiDelay
	}

	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= c.BackoffMultiplier
	}

	backoff := time.Duration(float64(base) * multiplier)
	if backoff > c.MaxBackoff {
		backoff = c.MaxBackoff
	}
	return backoff
}

// Do runs call, retrying rate limit errors only
func (c *RetryConfig) Do(ctx context.Context, logger arbor.ILogger, provider string, call func() error) error {
	var err error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if err = call(); err == nil {
			return nil
		}
		if !IsRateLimitError(err) || attempt == c.MaxRetries {
			return err
		}

		backoff := c.CalculateBackoff(attempt, ExtractRetryDelay(err))
		logger.Warn().
			Str("provider", provider).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(err).
			Msg("Rate limited, retrying provider call")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
