package webull

import (
	"encoding/json"

	"portfolio_bridge/internal/broker"
)

// envelope wraps every Webull gateway response.
type envelope struct {
	Code    string          `json:"code"`
	Msg     string          `json:"msg"`
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type quote struct {
	Symbol    string               `json:"symbol"`
	Close     broker.FlexibleFloat `json:"close"`
	PreClose  broker.FlexibleFloat `json:"preClose"`
	TradeTime int64                `json:"tradeTime"` // epoch millis
}

// chartSeries holds bars as CSV rows: "time,open,close,high,low,preClose,volume".
type chartSeries struct {
	Symbol string   `json:"symbol"`
	Data   []string `json:"data"`
}

type news struct {
	Title      string `json:"title"`
	SourceName string `json:"sourceName"`
	NewsURL    string `json:"newsUrl"`
	Summary    string `json:"summary"`
	NewsTime   int64  `json:"newsTime"` // epoch millis
}

type ticker struct {
	Symbol      string               `json:"symbol"`
	Name        string               `json:"name"`
	Close       broker.FlexibleFloat `json:"close"`
	Change      broker.FlexibleFloat `json:"change"`
	ChangeRatio broker.FlexibleFloat `json:"changeRatio"` // fraction, 0.0123 = 1.23%
}

type assetSummary struct {
	Positions *[]position `json:"positions"`
}

type position struct {
	Ticker      ticker               `json:"ticker"`
	Position    broker.FlexibleFloat `json:"position"`
	CostPrice   broker.FlexibleFloat `json:"costPrice"`
	LastPrice   broker.FlexibleFloat `json:"lastPrice"`
	MarketValue broker.FlexibleFloat `json:"marketValue"`
}

type watchlist struct {
	Name       string   `json:"name"`
	TickerList []ticker `json:"tickerList"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}
