// Package scheduler runs the background portfolio snapshot job.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"portfolio_bridge/internal/logging"
	"portfolio_bridge/internal/models"
)

const snapshotTimeout = 2 * time.Minute

// Snapshotter recomputes the summary, recording today's history point.
type Snapshotter interface {
	InvalidateCache()
	Summary(ctx context.Context) (*models.PortfolioSummary, error)
}

// zapCronLogger adapts zap to cron's Printf logger.
type zapCronLogger struct {
	logger *zap.Logger
}

func (l *zapCronLogger) Printf(format string, args ...interface{}) {
	l.logger.Sugar().Debugf(format, args...)
}

// Scheduler runs Snapshotter on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	snap     Snapshotter
	schedule string
	logger   *zap.Logger
}

// New registers the snapshot job. schedule accepts standard five-field
// specs and descriptors such as "@every 30m" or "@daily".
func New(schedule string, snap Snapshotter, logger *zap.Logger) (*Scheduler, error) {
	logger = logging.OrNop(logger).Named("scheduler")
	cronLogger := cron.PrintfLogger(&zapCronLogger{logger: logger})

	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		snap:     snap,
		schedule: schedule,
		logger:   logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid snapshot schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("snapshot job scheduled", zap.String("schedule", s.schedule))
}

// Stop prevents new runs and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("snapshot job still running at shutdown")
	}
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	start := time.Now()
	s.snap.InvalidateCache()
	summary, err := s.snap.Summary(ctx)
	if err != nil {
		s.logger.Error("portfolio snapshot failed", zap.Error(err))
		return
	}
	s.logger.Info("portfolio snapshot recorded",
		zap.Float64("total_value", summary.TotalValue),
		zap.Int("providers", summary.ProvidersConnected),
		zap.Duration("duration", time.Since(start)),
	)
}
