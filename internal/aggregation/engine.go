// Package aggregation merges provider data into one portfolio view and keeps
// daily snapshots of it.
package aggregation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"portfolio_bridge/internal/logging"
	"portfolio_bridge/internal/metrics"
	"portfolio_bridge/internal/models"
)

const (
	defaultSummaryTTL   = 5 * time.Minute
	defaultWatchlistTTL = 2 * time.Minute

	// computeTimeout bounds a shared summary or watchlist computation, which
	// does not follow any single caller's cancellation.
	computeTimeout = 3 * time.Minute
)

// Source is the provider data the engine aggregates.
type Source interface {
	PositionsOrEmpty(ctx context.Context, p models.Provider) ([]models.Position, error)
	WatchlistOrEmpty(ctx context.Context, p models.Provider) ([]models.WatchlistItem, error)
	AddToWatchlist(ctx context.Context, p models.Provider, symbol string) error
	RemoveFromWatchlist(ctx context.Context, p models.Provider, symbol string) error
}

// SessionLister reports which providers hold an unexpired session.
type SessionLister interface {
	ActiveProviders() []models.Provider
}

// SyncRecorder records per-provider fetch outcomes.
type SyncRecorder interface {
	Start(provider models.Provider, syncType string) (int64, error)
	Complete(id int64, positionsSynced int) error
	Fail(id int64, errorMsg string) error
}

// Options tunes the engine's caches.
type Options struct {
	SummaryTTL   time.Duration
	WatchlistTTL time.Duration
}

type cachedWatchlist struct {
	items     []models.WatchlistItem
	fetchedAt time.Time
}

// Engine produces summaries, merged positions, the consolidated watchlist and
// historical series.
type Engine struct {
	source   Source
	sessions SessionLister
	history  *HistoryStore
	syncs    SyncRecorder
	logger   *zap.Logger
	now      func() time.Time

	summaryTTL   time.Duration
	watchlistTTL time.Duration

	mu        sync.Mutex
	summary   *models.PortfolioSummary
	watchlist *cachedWatchlist
	epoch     uint64 // bumped by InvalidateCache

	group singleflight.Group
}

// NewEngine creates an engine. history and syncs may be nil; without a
// history store no snapshots are kept.
func NewEngine(source Source, sessions SessionLister, history *HistoryStore, syncs SyncRecorder, opts Options, logger *zap.Logger) *Engine {
	if opts.SummaryTTL <= 0 {
		opts.SummaryTTL = defaultSummaryTTL
	}
	if opts.WatchlistTTL <= 0 {
		opts.WatchlistTTL = defaultWatchlistTTL
	}
	return &Engine{
		source:       source,
		sessions:     sessions,
		history:      history,
		syncs:        syncs,
		logger:       logging.OrNop(logger).Named("aggregation"),
		now:          time.Now,
		summaryTTL:   opts.SummaryTTL,
		watchlistTTL: opts.WatchlistTTL,
	}
}

// Summary returns the cached summary while it is younger than the TTL,
// otherwise recomputes it and records today's historical point.
func (e *Engine) Summary(ctx context.Context) (*models.PortfolioSummary, error) {
	e.mu.Lock()
	if s := e.summary; s != nil && e.now().Sub(s.ComputedAt) < e.summaryTTL {
		e.mu.Unlock()
		metrics.RecordCache("summary", true)
		return s, nil
	}
	e.mu.Unlock()
	metrics.RecordCache("summary", false)

	v, err := e.share(ctx, "summary", e.computeSummary)
	if err != nil {
		return nil, err
	}
	return v.(*models.PortfolioSummary), nil
}

// share runs compute once for all concurrent callers of key. The computation
// runs detached from any single caller's cancellation and receives the cache
// epoch it started in; each caller stops waiting when its own ctx is done.
func (e *Engine) share(ctx context.Context, key string, compute func(ctx context.Context, epoch uint64) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := e.group.DoChan(key, func() (any, error) {
		e.mu.Lock()
		epoch := e.epoch
		e.mu.Unlock()

		computeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), computeTimeout)
		defer cancel()
		return compute(computeCtx, epoch)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) computeSummary(ctx context.Context, epoch uint64) (any, error) {
	sources, err := e.fetchPositions(ctx)
	if err != nil {
		return nil, err
	}

	now := e.now()
	summary := Summarize(MergePositions(sources), len(sources), now)

	e.mu.Lock()
	if e.epoch == epoch {
		e.summary = summary
	}
	e.mu.Unlock()
	metrics.PortfolioValueGauge.Set(summary.TotalValue)

	// With nothing fetched the totals are zero, which says nothing about the portfolio.
	if len(sources) > 0 && e.history != nil {
		point := models.HistoricalDataPoint{
			Date:             now.Format(dateLayout),
			TotalValue:       summary.TotalValue,
			DayChange:        summary.DayChange,
			DayChangePercent: summary.DayChangePercent,
		}
		if err := e.history.Upsert(point); err != nil {
			e.logger.Warn("storing historical point", zap.String("date", point.Date), zap.Error(err))
		}
	}

	e.logger.Info("summary computed",
		zap.Int("providers", summary.ProvidersConnected),
		zap.Int("positions", summary.PositionsCount),
		zap.Float64("total_value", summary.TotalValue))
	return summary, nil
}

// DetailedPositions returns the merged positions without caching.
func (e *Engine) DetailedPositions(ctx context.Context) ([]models.AggregatedPosition, error) {
	sources, err := e.fetchPositions(ctx)
	if err != nil {
		return nil, err
	}
	return MergePositions(sources), nil
}

// ConsolidatedWatchlist returns every provider's watchlist deduplicated by symbol.
func (e *Engine) ConsolidatedWatchlist(ctx context.Context) ([]models.WatchlistItem, error) {
	e.mu.Lock()
	if w := e.watchlist; w != nil && e.now().Sub(w.fetchedAt) < e.watchlistTTL {
		e.mu.Unlock()
		metrics.RecordCache("watchlist", true)
		return w.items, nil
	}
	e.mu.Unlock()
	metrics.RecordCache("watchlist", false)

	v, err := e.share(ctx, "watchlist", e.computeWatchlist)
	if err != nil {
		return nil, err
	}
	return v.([]models.WatchlistItem), nil
}

func (e *Engine) computeWatchlist(ctx context.Context, epoch uint64) (any, error) {
	providers := e.sessions.ActiveProviders()
	lists := make([][]models.WatchlistItem, len(providers))

	var g errgroup.Group
	for i, p := range providers {
		g.Go(func() error {
			items, err := e.source.WatchlistOrEmpty(ctx, p)
			if err != nil {
				e.skip(p, models.OpWatchlist, err)
				return nil
			}
			lists[i] = items
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byProvider := make(map[models.Provider][]models.WatchlistItem, len(providers))
	for i, p := range providers {
		byProvider[p] = lists[i]
	}
	items := DedupeWatchlist(byProvider, providers)

	e.mu.Lock()
	if e.epoch == epoch {
		e.watchlist = &cachedWatchlist{items: items, fetchedAt: e.now()}
	}
	e.mu.Unlock()
	return items, nil
}

// History returns the stored snapshots for period.
func (e *Engine) History(period string) (*models.HistorySeries, error) {
	points, err := e.points()
	if err != nil {
		return nil, err
	}
	return Window(points, period, e.now())
}

// PerformanceMetrics summarises daily returns over the last year.
func (e *Engine) PerformanceMetrics() (*models.PerformanceMetrics, error) {
	points, err := e.points()
	if err != nil {
		return nil, err
	}
	return Performance(points, e.now()), nil
}

func (e *Engine) points() ([]models.HistoricalDataPoint, error) {
	if e.history == nil {
		return nil, nil
	}
	return e.history.Points()
}

// InvalidateCache drops cached summary and watchlist results. Computations
// already running finish for their callers but are neither cached nor joined
// by later reads.
func (e *Engine) InvalidateCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.epoch++
	e.summary = nil
	e.watchlist = nil
	e.group.Forget("summary")
	e.group.Forget("watchlist")
}

// AddToWatchlist adds symbol at provider p and invalidates the caches.
func (e *Engine) AddToWatchlist(ctx context.Context, p models.Provider, symbol string) error {
	defer e.InvalidateCache()
	return e.source.AddToWatchlist(ctx, p, symbol)
}

// RemoveFromWatchlist removes symbol at provider p and invalidates the caches.
func (e *Engine) RemoveFromWatchlist(ctx context.Context, p models.Provider, symbol string) error {
	defer e.InvalidateCache()
	return e.source.RemoveFromWatchlist(ctx, p, symbol)
}

// fetchPositions collects positions from every active provider. A provider
// whose fetch fails is left out of the result.
func (e *Engine) fetchPositions(ctx context.Context) ([]ProviderPositions, error) {
	providers := e.sessions.ActiveProviders()
	results := make([]*ProviderPositions, len(providers))

	var g errgroup.Group
	for i, p := range providers {
		g.Go(func() error {
			syncID := e.startSync(p)
			positions, err := e.source.PositionsOrEmpty(ctx, p)
			if err != nil {
				e.skip(p, models.OpPositions, err)
				e.failSync(syncID, err)
				return nil
			}
			e.completeSync(syncID, len(positions))
			results[i] = &ProviderPositions{Provider: p, Positions: positions}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]ProviderPositions, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (e *Engine) skip(p models.Provider, op models.Operation, err error) {
	metrics.AggregationProviderFailuresTotal.WithLabelValues(string(p), string(op)).Inc()
	e.logger.Warn("provider omitted from aggregation",
		zap.String("provider", string(p)),
		zap.String("operation", string(op)),
		zap.Error(err))
}

func (e *Engine) startSync(p models.Provider) int64 {
	if e.syncs == nil {
		return 0
	}
	id, err := e.syncs.Start(p, string(models.OpPositions))
	if err != nil {
		e.logger.Debug("recording sync start", zap.String("provider", string(p)), zap.Error(err))
		return 0
	}
	return id
}

func (e *Engine) completeSync(id int64, n int) {
	if id == 0 {
		return
	}
	if err := e.syncs.Complete(id, n); err != nil {
		e.logger.Debug("recording sync completion", zap.Int64("sync_id", id), zap.Error(err))
	}
}

func (e *Engine) failSync(id int64, cause error) {
	if id == 0 {
		return
	}
	if err := e.syncs.Fail(id, cause.Error()); err != nil {
		e.logger.Debug("recording sync failure", zap.Int64("sync_id", id), zap.Error(err))
	}
}
