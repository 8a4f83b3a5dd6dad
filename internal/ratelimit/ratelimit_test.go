package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedDelayWaits(t *testing.T) {
	limiter := NewFixedDelay(30 * time.Millisecond)

	start := time.Now()
	require.NoError(t, limiter.Wait(context.Background()))
	require.NoError(t, limiter.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestFixedDelayZero(t *testing.T) {
	limiter := NewFixedDelay(0)
	assert.NoError(t, limiter.Wait(context.Background()))
}

func TestFixedDelayCancelled(t *testing.T) {
	limiter := NewFixedDelay(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := limiter.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSimpleRateLimiterSpacing(t *testing.T) {
	limiter := NewSimpleRateLimiter(25*time.Millisecond, 40*time.Millisecond)

	require.NoError(t, limiter.Wait(context.Background()))
	start := time.Now()
	require.NoError(t, limiter.Wait(context.Background()))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestNew(t *testing.T) {
	_, fixed := New(time.Second, 0).(*FixedDelay)
	assert.True(t, fixed)

	_, jittered := New(time.Second, time.Second).(*SimpleRateLimiter)
	assert.True(t, jittered)
}
