package nordnet

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"portfolio_bridge/internal/broker"
	apperrors "portfolio_bridge/internal/errors"
	"portfolio_bridge/internal/models"
)

// baseURLs maps country codes to Nordnet base URLs.
var baseURLs = map[string]string{
	"dk": "https://www.nordnet.dk",
	"se": "https://www.nordnet.se",
	"no": "https://www.nordnet.no",
	"fi": "https://www.nordnet.fi",
}

var locales = map[string]string{
	"dk": "da-DK",
	"se": "sv-SE",
	"no": "nb-NO",
	"fi": "fi-FI",
}

var (
	xsrfCookieNames = []string{"xsrf", "XSRF-TOKEN", "_csrf"}
	loginPatterns   = []string{"/overview", "/oversigt", "/oversikt", "/mux/web/", "/portfolio", "/depot"}
	loginExcludes   = []string{"/login"}
)

// Adapter translates logical operations into Nordnet API calls.
// It never needs a bearer token: the session cookies carry auth.
type Adapter struct {
	baseURL string
	country string
}

// New creates an adapter for the specified country.
// Valid countries: dk, se, no, fi. A non-empty baseURL overrides the host.
func New(country, baseURL string) (*Adapter, error) {
	host, ok := baseURLs[country]
	if !ok {
		return nil, fmt.Errorf("unsupported country: %s (valid: dk, se, no, fi)", country)
	}
	if baseURL == "" {
		baseURL = host
	}
	return &Adapter{baseURL: strings.TrimRight(baseURL, "/"), country: country}, nil
}

// Country returns the country code for this adapter.
func (a *Adapter) Country() string {
	return a.country
}

// Provider implements broker.Adapter.
func (a *Adapter) Provider() models.Provider { return models.ProviderNordnet }

// LoginURL implements broker.Adapter.
func (a *Adapter) LoginURL() string { return baseURLs[a.country] + "/login" }

// TokenKeys implements broker.Adapter. Nordnet keeps auth in cookies only.
func (a *Adapter) TokenKeys() []string { return nil }

// IsLoginSuccess implements broker.Adapter.
func (a *Adapter) IsLoginSuccess(currentURL string) bool {
	return broker.MatchesPath(currentURL, "nordnet."+a.country, loginPatterns, loginExcludes)
}

// BuildRequest implements broker.Adapter.
func (a *Adapter) BuildRequest(ctx context.Context, op models.Operation, params broker.Params, session *models.Session) (*http.Request, error) {
	symbol := url.PathEscape(strings.ToUpper(params.Symbol))
	if symbol == "" && broker.NeedsSymbol(op) {
		return nil, apperrors.ValidationField("symbol", "symbol is required")
	}

	method := http.MethodGet
	var path string

	switch op {
	case models.OpQuote:
		path = "/api/2/instruments/lookup/symbol/" + symbol
	case models.OpCandles:
		period := params.Span
		if period == "" {
			period = "year"
		}
		path = fmt.Sprintf("/api/2/instruments/historical/prices/%s?period=%s", symbol, url.QueryEscape(period))
	case models.OpNews:
		path = "/api/2/news?limit=20&symbol=" + url.QueryEscape(strings.ToUpper(params.Symbol))
	case models.OpPositions:
		path = fmt.Sprintf("/api/2/accounts/%s/positions", url.PathEscape(accountID(session)))
	case models.OpWatchlist:
		path = "/api/2/watchlists"
	case models.OpAddToWatchlist:
		method = http.MethodPut
		path = fmt.Sprintf("/api/2/watchlists/%s/instruments/%s", url.PathEscape(watchlistID(session)), symbol)
	case models.OpRemoveFromWatchlist:
		method = http.MethodDelete
		path = fmt.Sprintf("/api/2/watchlists/%s/instruments/%s", url.PathEscape(watchlistID(session)), symbol)
	case models.OpConnectionCheck:
		path = "/api/2/accounts"
	default:
		return nil, apperrors.Unsupported(a.Provider(), op)
	}

	req, err := broker.NewRequest(ctx, method, a.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	a.authorize(req, session)
	return req, nil
}

// authorize adds the cookie header and echoes the XSRF cookie.
func (a *Adapter) authorize(req *http.Request, session *models.Session) {
	req.Header.Set("client-id", "NEXT")
	req.Header.Set("x-locale", locales[a.country])
	if session == nil {
		return
	}

	broker.SetCookies(req, session.Cookies)
	cookies := broker.ParseCookies(session.Cookies)
	for _, name := range xsrfCookieNames {
		if v := cookies[name]; v != "" {
			req.Header.Set("X-XSRF-TOKEN", v)
			return
		}
	}
}

// accountID picks the account captured at login, defaulting to the first account.
func accountID(session *models.Session) string {
	if session != nil {
		if id := session.Token("accid"); id != "" {
			return id
		}
		if session.UserID != "" {
			return session.UserID
		}
	}
	return "1"
}

func watchlistID(session *models.Session) string {
	if session != nil {
		if id := session.Token("watchlist_id"); id != "" {
			return id
		}
	}
	return "default"
}
