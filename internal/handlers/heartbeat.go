package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "portfolio_bridge/internal/errors"
	"portfolio_bridge/internal/heartbeat"
)

// HeartbeatHandler controls session keep-alive.
type HeartbeatHandler struct {
	monitor  *heartbeat.Monitor
	defaults heartbeat.Config
	logger   *zap.Logger
}

// NewHeartbeatHandler creates a new HeartbeatHandler.
func NewHeartbeatHandler(deps *Dependencies) *HeartbeatHandler {
	return &HeartbeatHandler{monitor: deps.Heartbeat, defaults: deps.HeartbeatDefaults, logger: deps.Logger}
}

type startRequest struct {
	Interval      string `json:"interval"` // Go duration, e.g. "15m"
	RetryAttempts int    `json:"retry_attempts"`
}

// Status lists every tracked provider's heartbeat.
func (h *HeartbeatHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Status())
}

// Start (re)starts a provider's heartbeat.
func (h *HeartbeatHandler) Start(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	config := h.defaults
	if req.Interval != "" {
		d, err := time.ParseDuration(req.Interval)
		if err != nil || d < time.Second {
			writeError(w, h.logger, apperrors.ValidationField("interval", "interval must be a duration of at least 1s"))
			return
		}
		config.Interval = d
	}
	if req.RetryAttempts < 0 {
		writeError(w, h.logger, apperrors.ValidationField("retry_attempts", "retry_attempts must not be negative"))
		return
	}
	if req.RetryAttempts > 0 {
		config.RetryAttempts = req.RetryAttempts
	}

	h.monitor.Start(p, config)
	writeJSON(w, http.StatusOK, map[string]any{"provider": p, "state": h.monitor.State(p)})
}

// Stop cancels a provider's heartbeat.
func (h *HeartbeatHandler) Stop(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.monitor.Stop(p)
	w.WriteHeader(http.StatusNoContent)
}

// RefreshAll validates or refreshes every active session.
func (h *HeartbeatHandler) RefreshAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.RefreshAll(r.Context()))
}

type lifecycleRequest struct {
	Foreground *bool `json:"foreground"`
}

// Lifecycle receives the host app's foreground/background signal.
func (h *HeartbeatHandler) Lifecycle(w http.ResponseWriter, r *http.Request) {
	var req lifecycleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Foreground == nil {
		writeError(w, h.logger, apperrors.ValidationField("foreground", "foreground is required"))
		return
	}

	h.monitor.SetForeground(*req.Foreground)
	writeJSON(w, http.StatusOK, h.monitor.Status())
}
