// Package models contains the domain models for the portfolio bridge.
package models

import (
	"maps"
	"time"
)

// Provider identifies one external brokerage platform.
type Provider string

const (
	ProviderRobinhood Provider = "robinhood"
	ProviderWebull    Provider = "webull"
	ProviderNordnet   Provider = "nordnet"
)

// Providers lists every supported provider in a stable order.
var Providers = []Provider{ProviderRobinhood, ProviderWebull, ProviderNordnet}

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

// Session holds the authentication artifacts captured from a provider's web login.
type Session struct {
	Provider     Provider          `json:"provider"`
	Cookies      string            `json:"cookies"`
	Tokens       map[string]string `json:"tokens"`
	ExpiresAt    time.Time         `json:"expires_at"`
	UserID       string            `json:"user_id,omitempty"`
	RefreshToken string            `json:"refresh_token,omitempty"`
}

// IsActive returns true while the session has not reached its expiry.
func (s *Session) IsActive(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

// NeedsRefresh returns true if the session expires within the given buffer.
func (s *Session) NeedsRefresh(now time.Time, buffer time.Duration) bool {
	return !s.ExpiresAt.After(now.Add(buffer))
}

// HasTokens reports whether any auth token was captured.
func (s *Session) HasTokens() bool {
	return len(s.Tokens) > 0
}

// Token returns the first non-empty token found under the given names.
func (s *Session) Token(names ...string) string {
	for _, n := range names {
		if v := s.Tokens[n]; v != "" {
			return v
		}
	}
	return ""
}

// Clone returns a deep copy so callers can't mutate store state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Tokens = maps.Clone(s.Tokens)
	if c.Tokens == nil {
		c.Tokens = map[string]string{}
	}
	return &c
}

// SessionStatus is the externally visible state of a stored session.
type SessionStatus struct {
	Provider  Provider  `json:"provider"`
	ExpiresAt time.Time `json:"expires_at"`
	Active    bool      `json:"active"`
	HasTokens bool      `json:"has_tokens"`
}

// Operation is a logical request kind understood by every provider adapter.
type Operation string

const (
	OpQuote               Operation = "quote"
	OpCandles             Operation = "candles"
	OpNews                Operation = "news"
	OpPositions           Operation = "positions"
	OpWatchlist           Operation = "watchlist"
	OpAddToWatchlist      Operation = "addToWatchlist"
	OpRemoveFromWatchlist Operation = "removeFromWatchlist"
	OpConnectionCheck     Operation = "connectionCheck"

	// OpRefresh is the session refresh call issued by the request client.
	OpRefresh Operation = "refresh"
)

// Position is one provider's holding of a symbol.
type Position struct {
	Symbol               string  `json:"symbol"`
	Quantity             float64 `json:"quantity"`
	AverageCost          float64 `json:"average_cost"`
	CurrentPrice         float64 `json:"current_price"`
	MarketValue          float64 `json:"market_value"`
	UnrealizedPnL        float64 `json:"unrealized_pnl"`
	UnrealizedPnLPercent float64 `json:"unrealized_pnl_percent"`
}

// ProviderContribution is a single provider's share of an aggregated position.
type ProviderContribution struct {
	Provider     Provider `json:"provider"`
	Quantity     float64  `json:"quantity"`
	AverageCost  float64  `json:"average_cost"`
	CurrentPrice float64  `json:"current_price"`
	MarketValue  float64  `json:"market_value"`
}

// AggregatedPosition merges every provider's holding of one symbol.
type AggregatedPosition struct {
	Symbol               string                 `json:"symbol"`
	TotalQuantity        float64                `json:"total_quantity"`
	TotalCost            float64                `json:"total_cost"`
	TotalMarketValue     float64                `json:"total_market_value"`
	AveragePrice         float64                `json:"average_price"`
	UnrealizedPnL        float64                `json:"unrealized_pnl"`
	UnrealizedPnLPercent float64                `json:"unrealized_pnl_percent"`
	Providers            []ProviderContribution `json:"providers"`
}

// PortfolioSummary is the cross-provider headline view.
//
// DayChange is the sum of unrealized P&L, not a day-over-day delta.
type PortfolioSummary struct {
	TotalValue           float64             `json:"total_value"`
	TotalCost            float64             `json:"total_cost"`
	TotalGainLoss        float64             `json:"total_gain_loss"`
	TotalGainLossPercent float64             `json:"total_gain_loss_percent"`
	DayChange            float64             `json:"day_change"`
	DayChangePercent     float64             `json:"day_change_percent"`
	TopGainer            *AggregatedPosition `json:"top_gainer"`
	TopLoser             *AggregatedPosition `json:"top_loser"`
	PositionsCount       int                 `json:"positions_count"`
	ProvidersConnected   int                 `json:"providers_connected"`
	ComputedAt           time.Time           `json:"computed_at"`
}

// HistoricalDataPoint is one calendar day's portfolio snapshot.
type HistoricalDataPoint struct {
	Date             string  `json:"date"` // YYYY-MM-DD
	TotalValue       float64 `json:"total_value"`
	DayChange        float64 `json:"day_change"`
	DayChangePercent float64 `json:"day_change_percent"`
}

// HistorySeries is a window over the stored snapshots.
type HistorySeries struct {
	Period        string                `json:"period"`
	Points        []HistoricalDataPoint `json:"points"`
	StartValue    float64               `json:"start_value"`
	EndValue      float64               `json:"end_value"`
	TotalReturn   float64               `json:"total_return"`
	ReturnPercent float64               `json:"return_percent"`
}

// PerformanceMetrics summarises daily returns over the last year.
type PerformanceMetrics struct {
	BestDay           *DailyReturn `json:"best_day"`
	WorstDay          *DailyReturn `json:"worst_day"`
	AverageReturn     float64      `json:"average_return"`
	Volatility        float64      `json:"volatility"`
	RiskAdjustedRatio float64      `json:"risk_adjusted_ratio"`
	Days              int          `json:"days"`
}

// DailyReturn is the percent change from the previous stored day.
type DailyReturn struct {
	Date          string  `json:"date"`
	ReturnPercent float64 `json:"return_percent"`
}

// WatchlistItem is one watched symbol.
type WatchlistItem struct {
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name"`
	Price         float64  `json:"price"`
	Change        float64  `json:"change"`
	ChangePercent float64  `json:"change_percent"`
	Provider      Provider `json:"provider,omitempty"`
}

// Quote is the latest price for a symbol.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	PreviousClose float64   `json:"previous_close"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Candle is one OHLCV bar.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// NewsItem is a headline related to a symbol.
type NewsItem struct {
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	Summary     string    `json:"summary,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// SyncHistory records the outcome of one provider fetch during aggregation.
type SyncHistory struct {
	ID              int64      `json:"id"`
	Provider        Provider   `json:"provider"`
	SyncType        string     `json:"sync_type"` // "positions", "watchlist"
	Status          string     `json:"status"`    // "started", "success", "error"
	PositionsSynced int        `json:"positions_synced"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationMs      int64      `json:"duration_ms,omitempty"`
}
