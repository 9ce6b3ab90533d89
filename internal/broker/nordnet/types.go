// Package nordnet implements the Nordnet adapter: cookie-only sessions with the
// XSRF cookie echoed in a header, bare JSON arrays and {value,currency} amounts.
package nordnet

import (
	"encoding/json"

	"portfolio_bridge/internal/broker"
)

// Account represents a Nordnet account.
type Account struct {
	AccID     json.Number `json:"accid"`
	AccNO     json.Number `json:"accno"`
	Type      string      `json:"type"`
	Default   bool        `json:"default"`
	Alias     string      `json:"alias"`
	IsBlocked bool        `json:"is_blocked"`
}

// Instrument represents instrument details from the Nordnet API.
type Instrument struct {
	InstrumentID   int64      `json:"instrument_id"`
	IsinCode       string     `json:"isin_code"`
	Symbol         string     `json:"symbol"`
	Name           string     `json:"name"`
	Currency       string     `json:"currency"`
	InstrumentType string     `json:"instrument_type"`
	PriceInfo      *PriceInfo `json:"price_info,omitempty"`
}

// PriceInfo is the price block attached to instruments in quote and watchlist responses.
// Each price arrives as {"price": 123.4} or a bare number.
type PriceInfo struct {
	Last         broker.FlexibleFloat `json:"last"`
	ClosingPrice broker.FlexibleFloat `json:"closing_price"`
	Diff         broker.FlexibleFloat `json:"diff"`
	DiffPct      broker.FlexibleFloat `json:"diff_pct"`
	Time         int64                `json:"time"` // epoch millis
}

// Amount represents a value with currency from the Nordnet API.
type Amount struct {
	Value    broker.FlexibleFloat `json:"value"`
	Currency string               `json:"currency"`
}

// Position represents a position/holding in an account.
// The Nordnet API returns positions with nested instrument and amount objects.
type Position struct {
	AccNo          int64                `json:"accno"`
	Instrument     Instrument           `json:"instrument"`
	Qty            broker.FlexibleFloat `json:"qty"`
	MarketValueAcc Amount               `json:"market_value_acc"`
	MarketValue    Amount               `json:"market_value"`
	AcqPriceAcc    Amount               `json:"acq_price_acc"`
	AcqPrice       Amount               `json:"acq_price"`
	MorningPrice   Amount               `json:"morning_price"`
}

// PriceSeries is one instrument's historical price block.
type PriceSeries struct {
	InstrumentID int64     `json:"instrument_id"`
	Prices       []PricePt `json:"prices"`
}

// PricePt is a single OHLCV bar; Last is the close.
type PricePt struct {
	Time   int64                `json:"time"` // epoch millis
	Open   broker.FlexibleFloat `json:"open"`
	High   broker.FlexibleFloat `json:"high"`
	Low    broker.FlexibleFloat `json:"low"`
	Last   broker.FlexibleFloat `json:"last"`
	Volume broker.FlexibleFloat `json:"volume"`
}

// NewsItem is a row of the news feed.
type NewsItem struct {
	NewsID    int64  `json:"news_id"`
	Headline  string `json:"headline"`
	Source    string `json:"source"`
	URL       string `json:"url"`
	Preamble  string `json:"preamble"`
	Timestamp int64  `json:"timestamp"` // epoch millis
}

// Watchlist groups instruments the user follows.
type Watchlist struct {
	WatchlistID json.Number  `json:"watchlist_id"`
	Name        string       `json:"name"`
	Instruments []Instrument `json:"instruments"`
}
