// Package handlers provides the JSON HTTP API for the portfolio bridge.
package handlers

import (
	"go.uber.org/zap"

	"portfolio_bridge/internal/aggregation"
	"portfolio_bridge/internal/broker"
	"portfolio_bridge/internal/client"
	"portfolio_bridge/internal/heartbeat"
	"portfolio_bridge/internal/repository"
	"portfolio_bridge/internal/session"
)

// Dependencies holds all handler dependencies.
// This reduces constructor parameter lists and simplifies dependency injection.
type Dependencies struct {
	Logger *zap.Logger

	// Repositories
	SyncHistoryRepo *repository.SyncHistoryRepository

	// Services
	Registry    *broker.Registry
	Store       *session.Store
	Extractor   *session.Extractor
	Client      *client.Client
	Heartbeat   *heartbeat.Monitor
	Aggregation *aggregation.Engine

	// HeartbeatDefaults fills fields a start request leaves out.
	HeartbeatDefaults heartbeat.Config
}

// NewDependencies creates an empty Dependencies container.
// Use the builder pattern to set required dependencies.
func NewDependencies() *Dependencies {
	return &Dependencies{Logger: zap.NewNop(), HeartbeatDefaults: heartbeat.DefaultConfig}
}

// WithLogger sets the logger.
func (d *Dependencies) WithLogger(l *zap.Logger) *Dependencies {
	d.Logger = l
	return d
}

// WithSyncHistoryRepo sets the sync history repository.
func (d *Dependencies) WithSyncHistoryRepo(r *repository.SyncHistoryRepository) *Dependencies {
	d.SyncHistoryRepo = r
	return d
}

// WithRegistry sets the adapter registry.
func (d *Dependencies) WithRegistry(r *broker.Registry) *Dependencies {
	d.Registry = r
	return d
}

// WithSessions sets the session store and extractor.
func (d *Dependencies) WithSessions(s *session.Store, e *session.Extractor) *Dependencies {
	d.Store = s
	d.Extractor = e
	return d
}

// WithClient sets the request client.
func (d *Dependencies) WithClient(c *client.Client) *Dependencies {
	d.Client = c
	return d
}

// WithHeartbeat sets the heartbeat monitor and its default config.
func (d *Dependencies) WithHeartbeat(m *heartbeat.Monitor, defaults heartbeat.Config) *Dependencies {
	d.Heartbeat = m
	d.HeartbeatDefaults = defaults
	return d
}

// WithAggregation sets the aggregation engine.
func (d *Dependencies) WithAggregation(e *aggregation.Engine) *Dependencies {
	d.Aggregation = e
	return d
}
