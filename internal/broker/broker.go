package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "portfolio_bridge/internal/errors"
	"portfolio_bridge/internal/models"
)

// DefaultUserAgent mimics a desktop browser so provider web endpoints accept scripted calls.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Params carries the per-operation arguments of a provider request.
type Params struct {
	Symbol   string
	Interval string // candles: day, week, 5minute
	Span     string // candles: day, week, month, year
}

// Key identifies a request for in-flight de-duplication.
func (p Params) Key() string {
	return strings.ToUpper(p.Symbol) + "|" + p.Interval + "|" + p.Span
}

// NeedsSymbol reports whether op requires Params.Symbol.
func NeedsSymbol(op models.Operation) bool {
	switch op {
	case models.OpQuote, models.OpCandles, models.OpNews, models.OpAddToWatchlist, models.OpRemoveFromWatchlist:
		return true
	}
	return false
}

// Adapter encapsulates everything that differs between providers:
// URL templates, auth header shape, and response parsing.
type Adapter interface {
	// Provider returns the provider this adapter serves.
	Provider() models.Provider

	// LoginURL returns the page the embedded browser opens for interactive login.
	LoginURL() string

	// IsLoginSuccess reports whether currentURL is inside the authenticated area.
	IsLoginSuccess(currentURL string) bool

	// TokenKeys lists localStorage/sessionStorage keys that hold auth tokens.
	TokenKeys() []string

	// BuildRequest creates the authenticated HTTP request for op.
	BuildRequest(ctx context.Context, op models.Operation, params Params, session *models.Session) (*http.Request, error)

	// ParseResponse decodes a 2xx body into the normalized entity for op.
	ParseResponse(op models.Operation, body []byte) (any, error)
}

// RefreshResult is the outcome of a token refresh call.
type RefreshResult struct {
	Tokens       map[string]string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Refresher is implemented by adapters whose sessions can be extended with a refresh token.
type Refresher interface {
	BuildRefreshRequest(ctx context.Context, session *models.Session) (*http.Request, error)
	ParseRefreshResponse(body []byte) (*RefreshResult, error)
}

// Registry selects adapters by provider.
type Registry struct {
	adapters map[models.Provider]Adapter
}

// NewRegistry creates a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Provider()] = a
	}
	return r
}

// Get returns the adapter for p.
func (r *Registry) Get(p models.Provider) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, apperrors.NotFound(fmt.Sprintf("provider %q", p))
	}
	return a, nil
}

// Providers returns the registered providers in the canonical order.
func (r *Registry) Providers() []models.Provider {
	out := make([]models.Provider, 0, len(r.adapters))
	for _, p := range models.Providers {
		if _, ok := r.adapters[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// NewRequest builds a request with browser headers and an optional JSON body.
func NewRequest(ctx context.Context, method, rawURL string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// SetCookies attaches the captured document.cookie string to req.
func SetCookies(req *http.Request, cookies string) {
	if strings.TrimSpace(cookies) != "" {
		req.Header.Set("Cookie", cookies)
	}
}

// ParseCookies splits a document.cookie style string ("a=1; b=2") into a map.
func ParseCookies(cookies string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(cookies, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" {
			continue
		}
		out[name] = value
	}
	return out
}

// MergeCookies overlays the cookies in update onto base, keeping base's order
// and appending new names.
func MergeCookies(base, update string) string {
	if strings.TrimSpace(update) == "" {
		return base
	}
	if strings.TrimSpace(base) == "" {
		return update
	}

	values := ParseCookies(update)
	seen := make(map[string]bool, len(values))
	var parts []string
	for _, part := range strings.Split(base, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" {
			continue
		}
		if v, replaced := values[name]; replaced {
			value = v
		}
		seen[name] = true
		parts = append(parts, name+"="+value)
	}
	for _, part := range strings.Split(update, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" || seen[name] {
			continue
		}
		seen[name] = true
		parts = append(parts, name+"="+value)
	}
	return strings.Join(parts, "; ")
}

// MatchesPath reports whether rawURL's host ends with hostSuffix and its path
// contains any of the patterns and none of the excludes.
func MatchesPath(rawURL, hostSuffix string, patterns, excludes []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || !strings.HasSuffix(u.Hostname(), hostSuffix) {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, ex := range excludes {
		if strings.Contains(path, ex) {
			return false
		}
	}
	for _, p := range patterns {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

// FlexibleFloat handles JSON numbers that arrive as numbers, numeric strings,
// or objects like {"value": 123.45}.
type FlexibleFloat float64

// UnmarshalJSON implements custom unmarshaling for FlexibleFloat.
func (f *FlexibleFloat) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = FlexibleFloat(num)
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		if str == "" {
			*f = 0
			return nil
		}
		n, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("flexible float %q: %w", str, err)
		}
		*f = FlexibleFloat(n)
		return nil
	}

	var obj struct {
		Value *FlexibleFloat `json:"value"`
		Price *FlexibleFloat `json:"price"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		switch {
		case obj.Value != nil:
			*f = *obj.Value
		case obj.Price != nil:
			*f = *obj.Price
		default:
			*f = 0
		}
		return nil
	}

	// null or unrecognized shapes default to 0
	*f = 0
	return nil
}

// Float64 returns the value as a float64.
func (f FlexibleFloat) Float64() float64 { return float64(f) }

// NormalizePosition fills derived fields of a position from quantity, cost and price.
// A marketValue of 0 is recomputed from quantity and price.
func NormalizePosition(symbol string, quantity, averageCost, currentPrice, marketValue float64) models.Position {
	if marketValue == 0 {
		marketValue = quantity * currentPrice
	}
	if currentPrice == 0 && quantity != 0 {
		currentPrice = marketValue / quantity
	}
	cost := quantity * averageCost
	pnl := marketValue - cost
	var pct float64
	if cost != 0 {
		pct = pnl / cost * 100
	}
	return models.Position{
		Symbol:               strings.ToUpper(symbol),
		Quantity:             quantity,
		AverageCost:          averageCost,
		CurrentPrice:         currentPrice,
		MarketValue:          marketValue,
		UnrealizedPnL:        pnl,
		UnrealizedPnLPercent: pct,
	}
}

// NewQuote builds a quote, deriving change fields from the previous close.
func NewQuote(symbol string, price, previousClose float64, updatedAt time.Time) models.Quote {
	change := price - previousClose
	var pct float64
	if previousClose != 0 {
		pct = change / previousClose * 100
	}
	return models.Quote{
		Symbol:        strings.ToUpper(symbol),
		Price:         price,
		PreviousClose: previousClose,
		Change:        change,
		ChangePercent: pct,
		UpdatedAt:     updatedAt,
	}
}

// Decode unmarshals body into v, reporting failures as parse errors.
func Decode(p models.Provider, op models.Operation, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return apperrors.ParseError(p, op, err)
	}
	return nil
}
