package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"portfolio_bridge/internal/aggregation"
	apperrors "portfolio_bridge/internal/errors"
	"portfolio_bridge/internal/models"
	"portfolio_bridge/internal/repository"
)

const defaultSyncHistoryLimit = 50

// PortfolioHandler serves the aggregated portfolio views.
type PortfolioHandler struct {
	engine   *aggregation.Engine
	syncRepo *repository.SyncHistoryRepository
	logger   *zap.Logger
}

// NewPortfolioHandler creates a new PortfolioHandler.
func NewPortfolioHandler(deps *Dependencies) *PortfolioHandler {
	return &PortfolioHandler{
		engine:   deps.Aggregation,
		syncRepo: deps.SyncHistoryRepo,
		logger:   deps.Logger,
	}
}

// Summary returns the cross-provider portfolio summary.
func (h *PortfolioHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.Summary(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Positions returns merged positions with per-provider detail.
func (h *PortfolioHandler) Positions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.engine.DetailedPositions(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

// Watchlist returns the consolidated watchlist.
func (h *PortfolioHandler) Watchlist(w http.ResponseWriter, r *http.Request) {
	items, err := h.engine.ConsolidatedWatchlist(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// AddToWatchlist adds a symbol at one provider.
func (h *PortfolioHandler) AddToWatchlist(w http.ResponseWriter, r *http.Request) {
	p, symbol, ok := providerAndSymbol(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.engine.AddToWatchlist(r.Context(), p, symbol); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "added", "symbol": symbol})
}

// RemoveFromWatchlist removes a symbol at one provider.
func (h *PortfolioHandler) RemoveFromWatchlist(w http.ResponseWriter, r *http.Request) {
	p, symbol, ok := providerAndSymbol(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.engine.RemoveFromWatchlist(r.Context(), p, symbol); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "symbol": symbol})
}

// History returns stored snapshots for ?period= (default 1M).
func (h *PortfolioHandler) History(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "1M"
	}
	series, err := h.engine.History(period)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

// Performance returns daily return statistics.
func (h *PortfolioHandler) Performance(w http.ResponseWriter, r *http.Request) {
	m, err := h.engine.PerformanceMetrics()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// SyncHistory lists recent provider fetch outcomes, optionally for one ?provider=.
func (h *PortfolioHandler) SyncHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultSyncHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, h.logger, apperrors.ValidationField("limit", "limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	var (
		history []*models.SyncHistory
		err     error
	)
	if raw := r.URL.Query().Get("provider"); raw != "" {
		p := models.Provider(raw)
		if !p.Valid() {
			writeError(w, h.logger, apperrors.NotFound("provider "+raw))
			return
		}
		history, err = h.syncRepo.GetByProvider(p, limit)
	} else {
		history, err = h.syncRepo.GetRecent(limit)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if history == nil {
		history = []*models.SyncHistory{}
	}
	writeJSON(w, http.StatusOK, history)
}
