// Package heartbeat keeps provider sessions alive and detects lost connectivity.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"portfolio_bridge/internal/logging"
	"portfolio_bridge/internal/metrics"
	"portfolio_bridge/internal/models"
)

const checkTimeout = 60 * time.Second

// Checker validates sessions and checks provider connectivity.
type Checker interface {
	ValidateSession(ctx context.Context, p models.Provider) (*models.Session, error)
	CheckConnection(ctx context.Context, p models.Provider) error
}

// SessionLister reports which providers hold an unexpired session.
type SessionLister interface {
	ActiveProviders() []models.Provider
}

// Config controls one provider's heartbeat.
type Config struct {
	Interval      time.Duration `json:"interval"`
	RetryAttempts int           `json:"retry_attempts"`
}

// DefaultConfig checks every 15 minutes and gives up after 3 failures.
var DefaultConfig = Config{Interval: 15 * time.Minute, RetryAttempts: 3}

// Callbacks are invoked outside the monitor's lock.
type Callbacks struct {
	OnSessionExpired func(p models.Provider, err error)
	OnConnectionLost func(p models.Provider, err error)
}

// State is a provider's heartbeat state.
type State string

const (
	StateStopped State = "stopped"
	StateActive  State = "active"
	StatePaused  State = "paused"
)

// ProviderStatus describes one provider's heartbeat.
type ProviderStatus struct {
	Provider models.Provider `json:"provider"`
	State    State           `json:"state"`
	Retries  int             `json:"retries"`
	Interval time.Duration   `json:"interval"`
}

// RefreshResult is one provider's outcome from RefreshAll.
type RefreshResult struct {
	Provider models.Provider `json:"provider"`
	Success  bool            `json:"success"`
	Error    string          `json:"error,omitempty"`
}

type tracker struct {
	config  Config
	retries int
	active  bool          // started and not terminated by expiry/loss
	stop    chan struct{} // closes the running timer; nil while no timer runs
	gen     int
}

// Monitor runs one repeating check per provider.
type Monitor struct {
	checker   Checker
	sessions  SessionLister
	callbacks Callbacks
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	trackers map[models.Provider]*tracker
	paused   bool
	gen      int
}

// New creates a monitor in the stopped state.
func New(checker Checker, sessions SessionLister, callbacks Callbacks, logger *zap.Logger) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		checker:   checker,
		sessions:  sessions,
		callbacks: callbacks,
		logger:    logging.OrNop(logger).Named("heartbeat"),
		ctx:       ctx,
		cancel:    cancel,
		trackers:  make(map[models.Provider]*tracker),
	}
}

// Start (re)schedules p's heartbeat, canceling any prior timer and resetting
// its retry counter. Zero config fields take DefaultConfig values.
func (m *Monitor) Start(p models.Provider, config Config) {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig.Interval
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = DefaultConfig.RetryAttempts
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.trackers[p]; ok {
		m.stopTimerLocked(t)
	}
	m.gen++
	t := &tracker{config: config, active: true, gen: m.gen}
	m.trackers[p] = t
	if !m.paused {
		m.startTimerLocked(p, t)
	}

	m.logger.Info("heartbeat started", zap.String("provider", string(p)), zap.Duration("interval", config.Interval))
}

// Stop cancels p's heartbeat. A check already in flight is not aborted but
// its result is discarded.
func (m *Monitor) Stop(p models.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.trackers[p]; ok {
		m.stopTimerLocked(t)
		delete(m.trackers, p)
	}
}

// StopAll cancels every heartbeat.
func (m *Monitor) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for p, t := range m.trackers {
		m.stopTimerLocked(t)
		delete(m.trackers, p)
	}
}

// Close stops every heartbeat and cancels in-flight checks.
func (m *Monitor) Close() {
	m.StopAll()
	m.cancel()
}

// SetForeground reacts to the host app's lifecycle. Backgrounding cancels all
// timers but keeps retry counters. Foregrounding restarts every previously
// active timer and immediately checks every active session; it returns once
// those checks finish.
func (m *Monitor) SetForeground(foreground bool) {
	m.mu.Lock()
	if !foreground {
		m.paused = true
		for _, t := range m.trackers {
			m.stopTimerLocked(t)
		}
		m.mu.Unlock()
		m.logger.Info("heartbeats paused")
		return
	}

	m.paused = false
	for p, t := range m.trackers {
		if t.active && t.stop == nil {
			m.startTimerLocked(p, t)
		}
	}
	m.mu.Unlock()
	m.logger.Info("heartbeats resumed")

	var g errgroup.Group
	for _, p := range m.sessions.ActiveProviders() {
		g.Go(func() error {
			m.checkNow(p)
			return nil
		})
	}
	_ = g.Wait()
}

// RefreshAll validates or refreshes every active session without touching timers.
func (m *Monitor) RefreshAll(ctx context.Context) []RefreshResult {
	providers := m.sessions.ActiveProviders()
	results := make([]RefreshResult, len(providers))

	var g errgroup.Group
	for i, p := range providers {
		g.Go(func() error {
			res := RefreshResult{Provider: p, Success: true}
			if _, err := m.checker.ValidateSession(ctx, p); err != nil {
				res.Success = false
				res.Error = err.Error()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// State reports p's heartbeat state.
func (m *Monitor) State(p models.Provider) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked(m.trackers[p])
}

// Status lists every tracked provider in canonical order.
func (m *Monitor) Status() []ProviderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []ProviderStatus{}
	for _, p := range models.Providers {
		t, ok := m.trackers[p]
		if !ok {
			continue
		}
		out = append(out, ProviderStatus{
			Provider: p,
			State:    m.stateLocked(t),
			Retries:  t.retries,
			Interval: t.config.Interval,
		})
	}
	return out
}

func (m *Monitor) stateLocked(t *tracker) State {
	switch {
	case t == nil || !t.active:
		return StateStopped
	case m.paused:
		return StatePaused
	default:
		return StateActive
	}
}

func (m *Monitor) startTimerLocked(p models.Provider, t *tracker) {
	stop := make(chan struct{})
	t.stop = stop
	go m.run(p, t.gen, t.config.Interval, stop)
}

func (m *Monitor) stopTimerLocked(t *tracker) {
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

func (m *Monitor) run(p models.Provider, gen int, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		select {
		case <-stop:
			return
		default:
		}
		m.tick(p, gen)
	}
}

// lookupLocked returns p's tracker if it still belongs to generation gen and
// has not already reached a terminal outcome.
func (m *Monitor) lookupLocked(p models.Provider, gen int) *tracker {
	t, ok := m.trackers[p]
	if !ok || t.gen != gen || !t.active {
		return nil
	}
	return t
}

// checkNow runs an out-of-band check. Untracked providers only get session
// validation since they have no retry budget.
func (m *Monitor) checkNow(p models.Provider) {
	m.mu.Lock()
	t, ok := m.trackers[p]
	gen := 0
	if ok && t.active {
		gen = t.gen
	}
	m.mu.Unlock()

	if gen != 0 {
		m.tick(p, gen)
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, checkTimeout)
	defer cancel()
	if _, err := m.checker.ValidateSession(ctx, p); err != nil {
		metrics.HeartbeatChecksTotal.WithLabelValues(string(p), "session_expired").Inc()
		m.logger.Warn("session expired", zap.String("provider", string(p)), zap.Error(err))
		if m.callbacks.OnSessionExpired != nil {
			m.callbacks.OnSessionExpired(p, err)
		}
	}
}

func (m *Monitor) tick(p models.Provider, gen int) {
	ctx, cancel := context.WithTimeout(m.ctx, checkTimeout)
	defer cancel()
	log := m.logger.With(zap.String("provider", string(p)))

	if _, err := m.checker.ValidateSession(ctx, p); err != nil {
		m.mu.Lock()
		t := m.lookupLocked(p, gen)
		if t == nil {
			m.mu.Unlock()
			return
		}
		m.stopTimerLocked(t)
		t.active = false
		m.mu.Unlock()

		metrics.HeartbeatChecksTotal.WithLabelValues(string(p), "session_expired").Inc()
		log.Warn("session expired, heartbeat stopped", zap.Error(err))
		if m.callbacks.OnSessionExpired != nil {
			m.callbacks.OnSessionExpired(p, err)
		}
		return
	}

	err := m.checker.CheckConnection(ctx, p)

	m.mu.Lock()
	t := m.lookupLocked(p, gen)
	if t == nil {
		m.mu.Unlock()
		return
	}
	if err == nil {
		t.retries = 0
		m.mu.Unlock()
		metrics.HeartbeatChecksTotal.WithLabelValues(string(p), "ok").Inc()
		log.Debug("heartbeat ok")
		return
	}

	t.retries++
	retries, limit := t.retries, t.config.RetryAttempts
	lost := retries >= limit
	if lost {
		m.stopTimerLocked(t)
		t.active = false
	}
	m.mu.Unlock()

	if !lost {
		metrics.HeartbeatChecksTotal.WithLabelValues(string(p), "failed").Inc()
		log.Warn("connection check failed", zap.Int("retries", retries), zap.Int("limit", limit), zap.Error(err))
		return
	}

	metrics.HeartbeatChecksTotal.WithLabelValues(string(p), "connection_lost").Inc()
	log.Error("connection lost, heartbeat stopped", zap.Int("retries", retries), zap.Error(err))
	if m.callbacks.OnConnectionLost != nil {
		m.callbacks.OnConnectionLost(p, err)
	}
}
