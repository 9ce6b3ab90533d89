package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"portfolio_bridge/internal/client"
)

// MarketHandler proxies per-provider market data.
type MarketHandler struct {
	client *client.Client
	logger *zap.Logger
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(deps *Dependencies) *MarketHandler {
	return &MarketHandler{client: deps.Client, logger: deps.Logger}
}

// Quote returns the latest quote.
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	p, symbol, ok := providerAndSymbol(w, r, h.logger)
	if !ok {
		return
	}
	quote, err := h.client.Quote(r.Context(), p, symbol)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// Candles returns historical bars for ?interval= and ?span=.
func (h *MarketHandler) Candles(w http.ResponseWriter, r *http.Request) {
	p, symbol, ok := providerAndSymbol(w, r, h.logger)
	if !ok {
		return
	}
	q := r.URL.Query()
	candles, err := h.client.Candles(r.Context(), p, symbol, q.Get("interval"), q.Get("span"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, candles)
}

// News returns recent headlines.
func (h *MarketHandler) News(w http.ResponseWriter, r *http.Request) {
	p, symbol, ok := providerAndSymbol(w, r, h.logger)
	if !ok {
		return
	}
	news, err := h.client.News(r.Context(), p, symbol)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, news)
}
