// Package robinhood implements the Robinhood adapter: bearer-token auth and
// paginated "results" envelopes with decimal-string prices.
package robinhood

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"portfolio_bridge/internal/broker"
	apperrors "portfolio_bridge/internal/errors"
	"portfolio_bridge/internal/models"
)

const (
	// DefaultBaseURL is the production API host.
	DefaultBaseURL = "https://api.robinhood.com"

	loginURL = "https://robinhood.com/login"

	// webClientID is the public client id used by the Robinhood web app.
	webClientID = "c82SH0WZOsabOXGP2sxqcj34FxkvfnWRZBKlBjFS"
)

var (
	tokenKeys     = []string{"access_token", "auth_token", "token"}
	loginPatterns = []string{"/account", "/portfolio", "/stocks", "/crypto", "/lists"}
	loginExcludes = []string{"/login", "/signup", "/verify"}

	errMissingResults = errors.New("missing results")
)

// Adapter translates logical operations into Robinhood API calls.
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
func (a *Adapter) Provider() models.Provider { return models.ProviderRobinhood }

// LoginURL implements broker.Adapter.
func (a *Adapter) LoginURL() string { return loginURL }

// TokenKeys implements broker.Adapter.
func (a *Adapter) TokenKeys() []string { return tokenKeys }

// IsLoginSuccess implements broker.Adapter.
func (a *Adapter) IsLoginSuccess(currentURL string) bool {
	return broker.MatchesPath(currentURL, "robinhood.com", loginPatterns, loginExcludes)
}

// BuildRequest implements broker.Adapter.
func (a *Adapter) BuildRequest(ctx context.Context, op models.Operation, params broker.Params, session *models.Session) (*http.Request, error) {
	symbol := url.PathEscape(strings.ToUpper(params.Symbol))
	if symbol == "" && broker.NeedsSymbol(op) {
		return nil, apperrors.ValidationField("symbol", "symbol is required")
	}

	method := http.MethodGet
	var path string
	var body any

	switch op {
	case models.OpQuote:
		path = "/quotes/" + symbol + "/"
	case models.OpCandles:
		interval, span := params.Interval, params.Span
		if interval == "" {
			interval = "day"
		}
		if span == "" {
			span = "year"
		}
		path = fmt.Sprintf("/quotes/historicals/%s/?interval=%s&span=%s", symbol, url.QueryEscape(interval), url.QueryEscape(span))
	case models.OpNews:
		path = "/midlands/news/" + symbol + "/"
	case models.OpPositions:
		path = "/positions/?nonzero=true"
	case models.OpWatchlist:
		path = "/midlands/lists/default/"
	case models.OpAddToWatchlist:
		method = http.MethodPost
		path = "/midlands/lists/default/"
		body = map[string]string{"symbols": strings.ToUpper(params.Symbol)}
	case models.OpRemoveFromWatchlist:
		method = http.MethodDelete
		path = "/midlands/lists/default/" + symbol + "/"
	case models.OpConnectionCheck:
		path = "/user/"
	default:
		return nil, apperrors.Unsupported(a.Provider(), op)
	}

	req, err := broker.NewRequest(ctx, method, a.baseURL+path, body)
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
	case models.OpQuote:
		var q quoteResponse
		if err := broker.Decode(p, op, body, &q); err != nil {
			return nil, err
		}
		if q.Symbol == "" {
			return nil, apperrors.ParseError(p, op, errors.New("missing symbol"))
		}
		return broker.NewQuote(q.Symbol, q.LastTradePrice.Float64(), q.PreviousClose.Float64(), q.UpdatedAt), nil

	case models.OpCandles:
		var h historicalsResponse
		if err := broker.Decode(p, op, body, &h); err != nil {
			return nil, err
		}
		if h.Historicals == nil {
			return nil, apperrors.ParseError(p, op, errors.New("missing historicals"))
		}
		candles := make([]models.Candle, 0, len(*h.Historicals))
		for _, c := range *h.Historicals {
			candles = append(candles, models.Candle{
				Time:   c.BeginsAt,
				Open:   c.OpenPrice.Float64(),
				High:   c.HighPrice.Float64(),
				Low:    c.LowPrice.Float64(),
				Close:  c.ClosePrice.Float64(),
				Volume: c.Volume.Float64(),
			})
		}
		return candles, nil

	case models.OpNews:
		var env resultsEnvelope[newsItem]
		if err := decodeResults(p, op, body, &env); err != nil {
			return nil, err
		}
		news := make([]models.NewsItem, 0, len(*env.Results))
		for _, n := range *env.Results {
			news = append(news, models.NewsItem{
				Title:       n.Title,
				Source:      n.Source,
				URL:         n.URL,
				Summary:     n.Summary,
				PublishedAt: n.PublishedAt,
			})
		}
		return news, nil

	case models.OpPositions:
		var env resultsEnvelope[position]
		if err := decodeResults(p, op, body, &env); err != nil {
			return nil, err
		}
		positions := make([]models.Position, 0, len(*env.Results))
		for _, r := range *env.Results {
			if r.Symbol == "" {
				return nil, apperrors.ParseError(p, op, errors.New("position without symbol"))
			}
			if r.Quantity == 0 {
				continue
			}
			positions = append(positions, broker.NormalizePosition(r.Symbol, r.Quantity.Float64(), r.AverageBuyPrice.Float64(), r.LastTradePrice.Float64(), 0))
		}
		return positions, nil

	case models.OpWatchlist:
		var env resultsEnvelope[watchlistItem]
		if err := decodeResults(p, op, body, &env); err != nil {
			return nil, err
		}
		items := make([]models.WatchlistItem, 0, len(*env.Results))
		for _, w := range *env.Results {
			q := broker.NewQuote(w.Symbol, w.LastTradePrice.Float64(), w.PreviousClose.Float64(), time.Time{})
			items = append(items, models.WatchlistItem{
				Symbol:        q.Symbol,
				Name:          w.Name,
				Price:         q.Price,
				Change:        q.Change,
				ChangePercent: q.ChangePercent,
				Provider:      p,
			})
		}
		return items, nil

	case models.OpAddToWatchlist, models.OpRemoveFromWatchlist, models.OpConnectionCheck:
		return nil, nil
	}

	return nil, apperrors.Unsupported(p, op)
}

// BuildRefreshRequest implements broker.Refresher.
func (a *Adapter) BuildRefreshRequest(ctx context.Context, session *models.Session) (*http.Request, error) {
	body := map[string]any{
		"grant_type":    "refresh_token",
		"refresh_token": session.RefreshToken,
		"client_id":     webClientID,
		"scope":         "internal",
		"expires_in":    86400,
	}
	req, err := broker.NewRequest(ctx, http.MethodPost, a.baseURL+"/oauth2/token/", body)
	if err != nil {
		return nil, err
	}
	broker.SetCookies(req, session.Cookies)
	return req, nil
}

// ParseRefreshResponse implements broker.Refresher.
func (a *Adapter) ParseRefreshResponse(body []byte) (*broker.RefreshResult, error) {
	var t tokenResponse
	if err := broker.Decode(a.Provider(), models.OpRefresh, body, &t); err != nil {
		return nil, err
	}
	if t.AccessToken == "" {
		return nil, apperrors.ParseError(a.Provider(), models.OpRefresh, errors.New("missing access_token"))
	}
	return &broker.RefreshResult{
		Tokens:       map[string]string{"access_token": t.AccessToken},
		RefreshToken: t.RefreshToken,
		ExpiresIn:    time.Duration(t.ExpiresIn) * time.Second,
	}, nil
}

func (a *Adapter) authorize(req *http.Request, session *models.Session) {
	if session == nil {
		return
	}
	broker.SetCookies(req, session.Cookies)
	if token := session.Token(tokenKeys...); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func decodeResults[T any](p models.Provider, op models.Operation, body []byte, env *resultsEnvelope[T]) error {
	if err := broker.Decode(p, op, body, env); err != nil {
		return err
	}
	if env.Results == nil {
		return apperrors.ParseError(p, op, errMissingResults)
	}
	return nil
}
