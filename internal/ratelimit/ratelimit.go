// Package ratelimit implements the per-provider fixed-window limiter applied
// to every outbound provider call.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"portfolio_bridge/internal/logging"
	"portfolio_bridge/internal/metrics"
	"portfolio_bridge/internal/models"
)

// Config defines rate limiter configuration.
type Config struct {
	// Limit is the maximum number of requests per window.
	Limit int

	// Window is the fixed window length.
	Window time.Duration
}

// DefaultConfig allows 20 requests per 60 seconds.
var DefaultConfig = Config{Limit: 20, Window: 60 * time.Second}

type window struct {
	start time.Time
	count int
}

// Limiter is a fixed-window counter per provider. Callers over the ceiling
// are delayed until the window resets; no request is ever rejected.
type Limiter struct {
	config Config
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	windows map[models.Provider]*window
}

// New creates a limiter. Non-positive fields fall back to DefaultConfig.
func New(config Config, logger *zap.Logger) *Limiter {
	if config.Limit <= 0 {
		config.Limit = DefaultConfig.Limit
	}
	if config.Window <= 0 {
		config.Window = DefaultConfig.Window
	}
	return &Limiter{
		config:  config,
		logger:  logging.OrNop(logger).Named("ratelimit"),
		now:     time.Now,
		windows: make(map[models.Provider]*window),
	}
}

// Wait blocks until a request for p fits in the current window, or ctx ends.
func (l *Limiter) Wait(ctx context.Context, p models.Provider) error {
	delayed := false
	for {
		wait, ok := l.reserve(p)
		if ok {
			return nil
		}

		if !delayed {
			delayed = true
			metrics.RateLimitDelaysTotal.WithLabelValues(string(p)).Inc()
			l.logger.Debug("rate limit reached, delaying", zap.String("provider", string(p)), zap.Duration("wait", wait))
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve takes a slot in p's window, or reports how long until it resets.
func (l *Limiter) reserve(p models.Provider) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[p]
	if !ok || now.Sub(w.start) >= l.config.Window {
		w = &window{start: now}
		l.windows[p] = w
	}

	if w.count < l.config.Limit {
		w.count++
		return 0, true
	}
	return w.start.Add(l.config.Window).Sub(now), false
}

// Remaining returns the number of requests p can issue before being delayed.
func (l *Limiter) Remaining(p models.Provider) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[p]
	if !ok || l.now().Sub(w.start) >= l.config.Window {
		return l.config.Limit
	}
	return l.config.Limit - w.count
}

// Reset clears p's window.
func (l *Limiter) Reset(p models.Provider) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, p)
}
