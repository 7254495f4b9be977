package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_SpacesSameDomain(t *testing.T) {
	rl := NewRateLimiter(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, rl.Wait(ctx, "https://shop.ae/a"))
	require.NoError(t, rl.Wait(ctx, "https://shop.ae/b"))
	require.NoError(t, rl.Wait(ctx, "https://shop.ae/c"))
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestRateLimiter_DomainsAreIndependent(t *testing.T) {
	rl := NewRateLimiter(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, rl.Wait(ctx, "https://a.ae/x"))
	require.NoError(t, rl.Wait(ctx, "https://b.ae/x"))
}

func TestRateLimiter_WaitHonoursContext(t *testing.T) {
	rl := NewRateLimiter(time.Hour)
	require.NoError(t, rl.Wait(context.Background(), "https://a.ae/x"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx, "https://a.ae/y"))
}

func TestRateLimiter_DomainDelay(t *testing.T) {
	rl := NewRateLimiter(time.Second)
	assert.Equal(t, time.Second, rl.GetDomainDelay("a.ae"))

	rl.SetDomainDelay("a.ae", 200*time.Millisecond)
	assert.Equal(t, 200*time.Millisecond, rl.GetDomainDelay("a.ae"))
}

func TestRateLimiter_ZeroDelayDisables(t *testing.T) {
	rl := NewRateLimiter(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, rl.Wait(ctx, "https://a.ae/x"))
}
