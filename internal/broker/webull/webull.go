// Package webull implements the Webull adapter: access_token/did headers and a
// "data" envelope whose payload nests at different depths per endpoint.
package webull

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"portfolio_bridge/internal/broker"
	apperrors "portfolio_bridge/internal/errors"
	"portfolio_bridge/internal/models"
)

const (
	// DefaultBaseURL is the production gateway host.
	DefaultBaseURL = "https://ustrade.webullfinance.com"

	loginURL   = "https://www.webull.com/login"
	appVersion = "4.9.5"
)

var (
	accessTokenKeys = []string{"access_token", "accessToken"}
	deviceIDKeys    = []string{"did", "device_id"}
	tokenKeys       = []string{"access_token", "accessToken", "did", "device_id", "refreshToken"}

	loginPatterns = []string{"/center", "/account", "/trade", "/watch", "/paper"}
	loginExcludes = []string{"/login", "/register"}

	// chart type and bar count per interval
	chartTypes = map[string]string{"5minute": "m5", "hour": "h1", "day": "d1", "week": "w1"}
	spanCounts = map[string]int{"day": 78, "week": 5, "month": 22, "3month": 66, "year": 250, "5year": 260}

	errMissingData = errors.New("missing data")
)

// Adapter translates logical operations into Webull gateway calls.
type Adapter struct {
	baseURL string
}

// New creates an adapter. An empty baseURL selects the production host.
func New(baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{baseURL: strings.TrimRight(baseURL, "/")}
}

// Provider implements broker.Adapter.
func (a *Adapter) Provider() models.Provider { return models.ProviderWebull }

// LoginURL implements broker.Adapter.
func (a *Adapter) LoginURL() string { return loginURL }

// TokenKeys implements broker.Adapter.
func (a *Adapter) TokenKeys() []string { return tokenKeys }

// IsLoginSuccess implements broker.Adapter.
func (a *Adapter) IsLoginSuccess(currentURL string) bool {
	return broker.MatchesPath(currentURL, "webull.com", loginPatterns, loginExcludes)
}

// BuildRequest implements broker.Adapter.
func (a *Adapter) BuildRequest(ctx context.Context, op models.Operation, params broker.Params, session *models.Session) (*http.Request, error) {
	symbol := strings.ToUpper(params.Symbol)
	if symbol == "" && broker.NeedsSymbol(op) {
		return nil, apperrors.ValidationField("symbol", "symbol is required")
	}

	method := http.MethodGet
	var path string
	var body any
	q := url.Values{}

	switch op {
	case models.OpQuote:
		path = "/api/quote/ticker/realtime"
		q.Set("symbol", symbol)
	case models.OpCandles:
		chartType, ok := chartTypes[params.Interval]
		if !ok {
			chartType = "d1"
		}
		count, ok := spanCounts[params.Span]
		if !ok {
			count = spanCounts["year"]
		}
		path = "/api/quote/charts/query"
		q.Set("symbol", symbol)
		q.Set("type", chartType)
		q.Set("count", strconv.Itoa(count))
	case models.OpNews:
		path = "/api/information/news/tickerNews"
		q.Set("symbol", symbol)
		q.Set("pageSize", "20")
	case models.OpPositions:
		path = "/api/trading/v1/account/positions"
	case models.OpWatchlist:
		path = "/api/wlas/watchlist/query"
	case models.OpAddToWatchlist:
		method = http.MethodPost
		path = "/api/wlas/watchlist/add"
		body = map[string]string{"symbol": symbol}
	case models.OpRemoveFromWatchlist:
		method = http.MethodPost
		path = "/api/wlas/watchlist/remove"
		body = map[string]string{"symbol": symbol}
	case models.OpConnectionCheck:
		path = "/api/user/v1/profile"
	default:
		return nil, apperrors.Unsupported(a.Provider(), op)
	}

	rawURL := a.baseURL + path
	if len(q) > 0 {
		rawURL += "?" + q.Encode()
	}

	req, err := broker.NewRequest(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	a.authorize(req, session)
	return req, nil
}

// ParseResponse implements broker.Adapter.
func (a *Adapter) ParseResponse(op models.Operation, body []byte) (any, error) {
	p := a.Provider()

	switch op {
	case models.OpAddToWatchlist, models.OpRemoveFromWatchlist, models.OpConnectionCheck:
		return nil, nil
	}

	data, err := unwrap(p, op, body)
	if err != nil {
		return nil, err
	}

	switch op {
	case models.OpQuote:
		var qt quote
		if err := broker.Decode(p, op, data, &qt); err != nil {
			return nil, err
		}
		if qt.Symbol == "" {
			return nil, apperrors.ParseError(p, op, errors.New("missing symbol"))
		}
		return broker.NewQuote(qt.Symbol, qt.Close.Float64(), qt.PreClose.Float64(), fromMillis(qt.TradeTime)), nil

	case models.OpCandles:
		var series []chartSeries
		if err := broker.Decode(p, op, data, &series); err != nil {
			return nil, err
		}
		var candles []models.Candle
		for _, s := range series {
			for _, row := range s.Data {
				c, err := parseBar(row)
				if err != nil {
					return nil, apperrors.ParseError(p, op, err)
				}
				candles = append(candles, c)
			}
		}
		if candles == nil {
			candles = []models.Candle{}
		}
		return candles, nil

	case models.OpNews:
		var items []news
		if err := broker.Decode(p, op, data, &items); err != nil {
			return nil, err
		}
		out := make([]models.NewsItem, 0, len(items))
		for _, n := range items {
			out = append(out, models.NewsItem{
				Title:       n.Title,
				Source:      n.SourceName,
				URL:         n.NewsURL,
				Summary:     n.Summary,
				PublishedAt: fromMillis(n.NewsTime),
			})
		}
		return out, nil

	case models.OpPositions:
		var summary assetSummary
		if err := broker.Decode(p, op, data, &summary); err != nil {
			return nil, err
		}
		if summary.Positions == nil {
			return nil, apperrors.ParseError(p, op, errors.New("missing positions"))
		}
		out := make([]models.Position, 0, len(*summary.Positions))
		for _, pos := range *summary.Positions {
			if pos.Ticker.Symbol == "" {
				return nil, apperrors.ParseError(p, op, errors.New("position without symbol"))
			}
			if pos.Position == 0 {
				continue
			}
			out = append(out, broker.NormalizePosition(pos.Ticker.Symbol, pos.Position.Float64(), pos.CostPrice.Float64(), pos.LastPrice.Float64(), pos.MarketValue.Float64()))
		}
		return out, nil

	case models.OpWatchlist:
		var lists []watchlist
		if err := broker.Decode(p, op, data, &lists); err != nil {
			return nil, err
		}
		var out []models.WatchlistItem
		for _, l := range lists {
			for _, t := range l.TickerList {
				out = append(out, models.WatchlistItem{
					Symbol:        strings.ToUpper(t.Symbol),
					Name:          t.Name,
					Price:         t.Close.Float64(),
					Change:        t.Change.Float64(),
					ChangePercent: t.ChangeRatio.Float64() * 100,
					Provider:      p,
				})
			}
		}
		if out == nil {
			out = []models.WatchlistItem{}
		}
		return out, nil
	}

	return nil, apperrors.Unsupported(p, op)
}

// BuildRefreshRequest implements broker.Refresher.
func (a *Adapter) BuildRefreshRequest(ctx context.Context, session *models.Session) (*http.Request, error) {
	rawURL := a.baseURL + "/api/passport/refreshToken?refreshToken=" + url.QueryEscape(session.RefreshToken)
	req, err := broker.NewRequest(ctx, http.MethodPost, rawURL, map[string]string{})
	if err != nil {
		return nil, err
	}
	a.authorize(req, session)
	return req, nil
}

// ParseRefreshResponse implements broker.Refresher.
func (a *Adapter) ParseRefreshResponse(body []byte) (*broker.RefreshResult, error) {
	var r refreshResponse
	if err := broker.Decode(a.Provider(), models.OpRefresh, body, &r); err != nil {
		return nil, err
	}
	if r.AccessToken == "" {
		return nil, apperrors.ParseError(a.Provider(), models.OpRefresh, errors.New("missing accessToken"))
	}
	return &broker.RefreshResult{
		Tokens:       map[string]string{"access_token": r.AccessToken},
		RefreshToken: r.RefreshToken,
		ExpiresIn:    time.Duration(r.ExpiresIn) * time.Second,
	}, nil
}

func (a *Adapter) authorize(req *http.Request, session *models.Session) {
	req.Header.Set("app", "global")
	req.Header.Set("appid", "wb_web_us")
	req.Header.Set("device-type", "Web")
	req.Header.Set("ver", appVersion)
	if session == nil {
		return
	}

	broker.SetCookies(req, session.Cookies)
	if token := session.Token(accessTokenKeys...); token != "" {
		req.Header.Set("access_token", token)
	}
	did := session.Token(deviceIDKeys...)
	if did == "" {
		did = broker.ParseCookies(session.Cookies)["did"]
	}
	if did != "" {
		req.Header.Set("did", did)
	}
}

// unwrap returns the payload of the data envelope.
func unwrap(p models.Provider, op models.Operation, body []byte) (json.RawMessage, error) {
	var env envelope
	if err := broker.Decode(p, op, body, &env); err != nil {
		return nil, err
	}
	if env.Success != nil && !*env.Success {
		return nil, apperrors.ParseError(p, op, fmt.Errorf("gateway error %s: %s", env.Code, env.Msg))
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, apperrors.ParseError(p, op, errMissingData)
	}
	return env.Data, nil
}

func parseBar(row string) (models.Candle, error) {
	fields := strings.Split(row, ",")
	if len(fields) < 7 {
		return models.Candle{}, fmt.Errorf("bar %q: want 7 fields, got %d", row, len(fields))
	}

	nums := make([]float64, 7)
	for i := 0; i < 7; i++ {
		f := strings.TrimSpace(fields[i])
		if f == "" || f == "null" {
			continue
		}
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return models.Candle{}, fmt.Errorf("bar %q field %d: %w", row, i, err)
		}
		nums[i] = n
	}

	return models.Candle{
		Time:   time.Unix(int64(nums[0]), 0).UTC(),
		Open:   nums[1],
		Close:  nums[2],
		High:   nums[3],
		Low:    nums[4],
		Volume: nums[6],
	}, nil
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
