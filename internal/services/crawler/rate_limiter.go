package crawler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ternarybob/covera/internal/common"
)

// RateLimiter spaces requests to the same domain by a minimum delay.
// Each domain gets its own token bucket with a burst of one.
type RateLimiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.Mutex
	defaultDelay time.Duration
}

// NewRateLimiter creates a limiter; a non-positive delay disables limiting
func NewRateLimiter(defaultDelay time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultDelay: defaultDelay,
	}
}

// Wait blocks until a request to rawURL's domain is allowed or ctx is done
func (rl *RateLimiter) Wait(ctx context.Context, rawURL string) error {
	if rl.defaultDelay <= 0 {
		return nil
	}
	domain := common.DomainOf(rawURL)
	if domain == "" {
		return nil
	}
	return rl.limiterFor(domain).Wait(ctx)
}

// SetDomainDelay overrides the delay for one domain
func (rl *RateLimiter) SetDomainDelay(domain string, delay time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiters[domain] = rate.NewLimiter(rate.Every(delay), 1)
}

// GetDomainDelay returns the effective delay for a domain
func (rl *RateLimiter) GetDomainDelay(domain string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.limiters[domain]
	if !ok || limiter.Limit() == 0 {
		return rl.defaultDelay
	}
	return time.Duration(float64(time.Second) / float64(limiter.Limit()))
}

func (rl *RateLimiter) limiterFor(domain string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.limiters[domain]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(rl.defaultDelay), 1)
		rl.limiters[domain] = limiter
	}
	return limiter
}
