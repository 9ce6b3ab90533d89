package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"portfolio_bridge/internal/models"
)

type fakeSnapshotter struct {
	invalidations atomic.Int32
	summaries     atomic.Int32
	err           error
}

func (f *fakeSnapshotter) InvalidateCache() { f.invalidations.Add(1) }

func (f *fakeSnapshotter) Summary(ctx context.Context) (*models.PortfolioSummary, error) {
	f.summaries.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("snapshot without deadline")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.PortfolioSummary{TotalValue: 100, ProvidersConnected: 1}, nil
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New("every now and then", &fakeSnapshotter{}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid snapshot schedule")
}

func TestNew_AcceptsDescriptors(t *testing.T) {
	for _, spec := range []string{"@every 30m", "@daily", "*/15 * * * *"} {
		_, err := New(spec, &fakeSnapshotter{}, zaptest.NewLogger(t))
		assert.NoError(t, err, spec)
	}
}

func TestRun_InvalidatesBeforeSummary(t *testing.T) {
	snap := &fakeSnapshotter{}
	s, err := New("@daily", snap, zaptest.NewLogger(t))
	require.NoError(t, err)

	s.run()

	assert.EqualValues(t, 1, snap.invalidations.Load())
	assert.EqualValues(t, 1, snap.summaries.Load())
}

func TestRun_ErrorIsLogged(t *testing.T) {
	snap := &fakeSnapshotter{err: errors.New("upstream down")}
	s, err := New("@daily", snap, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.NotPanics(t, s.run)
	assert.EqualValues(t, 1, snap.summaries.Load())
}

func TestStartStop(t *testing.T) {
	snap := &fakeSnapshotter{}
	s, err := New("@every 1s", snap, zaptest.NewLogger(t))
	require.NoError(t, err)

	s.Start()
	assert.Eventually(t, func() bool { return snap.summaries.Load() > 0 }, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	after := snap.summaries.Load()
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, after, snap.summaries.Load())
}
