package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"portfolio_bridge/internal/models"
)

func TestLimiter_BurstOverCeilingIsDelayedNotDropped(t *testing.T) {
	window := 300 * time.Millisecond
	l := New(Config{Limit: 20, Window: window}, zaptest.NewLogger(t))

	start := time.Now()
	elapsed := make([]time.Duration, 25)
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, l.Wait(context.Background(), models.ProviderRobinhood))
			elapsed[i] = time.Since(start)
		}(i)
	}
	wg.Wait()

	prompt, delayed := 0, 0
	for _, d := range elapsed {
		if d < window/2 {
			prompt++
		} else {
			assert.GreaterOrEqual(t, d, window-10*time.Millisecond)
			delayed++
		}
	}
	assert.Equal(t, 20, prompt)
	assert.Equal(t, 5, delayed)
}

func TestLimiter_ProvidersAreIndependent(t *testing.T) {
	l := New(Config{Limit: 1, Window: time.Hour}, nil)

	require.NoError(t, l.Wait(context.Background(), models.ProviderRobinhood))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, l.Wait(ctx, models.ProviderWebull))
	assert.ErrorIs(t, l.Wait(ctx, models.ProviderRobinhood), context.DeadlineExceeded)
}

func TestLimiter_CounterRestartsAfterWindow(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	l := New(Config{Limit: 2, Window: time.Minute}, nil)
	l.now = func() time.Time { return now }

	_, ok := l.reserve(models.ProviderNordnet)
	assert.True(t, ok)
	_, ok = l.reserve(models.ProviderNordnet)
	assert.True(t, ok)

	wait, ok := l.reserve(models.ProviderNordnet)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, wait)
	assert.Equal(t, 0, l.Remaining(models.ProviderNordnet))

	now = now.Add(45 * time.Second)
	wait, ok = l.reserve(models.ProviderNordnet)
	assert.False(t, ok)
	assert.Equal(t, 15*time.Second, wait)

	now = now.Add(15 * time.Second)
	_, ok = l.reserve(models.ProviderNordnet)
	assert.True(t, ok)
	assert.Equal(t, 1, l.Remaining(models.ProviderNordnet))
}

func TestLimiter_Reset(t *testing.T) {
	l := New(Config{Limit: 1, Window: time.Hour}, nil)
	require.NoError(t, l.Wait(context.Background(), models.ProviderWebull))
	assert.Equal(t, 0, l.Remaining(models.ProviderWebull))

	l.Reset(models.ProviderWebull)
	assert.Equal(t, 1, l.Remaining(models.ProviderWebull))
}

func TestNew_Defaults(t *testing.T) {
	l := New(Config{}, nil)
	assert.Equal(t, DefaultConfig, l.config)
}
