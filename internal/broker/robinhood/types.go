package robinhood

import (
	"time"

	"portfolio_bridge/internal/broker"
)

// quoteResponse is the body of GET /quotes/{symbol}/.
type quoteResponse struct {
	Symbol         string               `json:"symbol"`
	LastTradePrice broker.FlexibleFloat `json:"last_trade_price"`
	PreviousClose  broker.FlexibleFloat `json:"previous_close"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// historicalsResponse is the body of GET /quotes/historicals/{symbol}/.
type historicalsResponse struct {
	Symbol      string        `json:"symbol"`
	Historicals *[]historical `json:"historicals"`
}

type historical struct {
	BeginsAt   time.Time            `json:"begins_at"`
	OpenPrice  broker.FlexibleFloat `json:"open_price"`
	ClosePrice broker.FlexibleFloat `json:"close_price"`
	HighPrice  broker.FlexibleFloat `json:"high_price"`
	LowPrice   broker.FlexibleFloat `json:"low_price"`
	Volume     broker.FlexibleFloat `json:"volume"`
}

// resultsEnvelope wraps every paginated list endpoint.
type resultsEnvelope[T any] struct {
	Next    string `json:"next"`
	Results *[]T   `json:"results"`
}

type newsItem struct {
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	Summary     string    `json:"summary"`
	PublishedAt time.Time `json:"published_at"`
}

// position is one row of GET /positions/?nonzero=true.
// Prices arrive as decimal strings.
type position struct {
	Symbol          string               `json:"symbol"`
	Quantity        broker.FlexibleFloat `json:"quantity"`
	AverageBuyPrice broker.FlexibleFloat `json:"average_buy_price"`
	LastTradePrice  broker.FlexibleFloat `json:"last_trade_price"`
}

type watchlistItem struct {
	Symbol         string               `json:"symbol"`
	Name           string               `json:"name"`
	LastTradePrice broker.FlexibleFloat `json:"last_trade_price"`
	PreviousClose  broker.FlexibleFloat `json:"previous_close"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}
