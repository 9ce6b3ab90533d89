package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "portfolio_bridge/internal/errors"
	"portfolio_bridge/internal/models"
)

var timeZero time.Time

type stubAdapter struct{ p models.Provider }

func (s stubAdapter) Provider() models.Provider                           { return s.p }
func (s stubAdapter) LoginURL() string                                    { return "" }
func (s stubAdapter) IsLoginSuccess(string) bool                          { return false }
func (s stubAdapter) TokenKeys() []string                                 { return nil }
func (s stubAdapter) ParseResponse(models.Operation, []byte) (any, error) { return nil, nil }
func (s stubAdapter) BuildRequest(ctx context.Context, _ models.Operation, _ Params, _ *models.Session) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodGet, "http://localhost", nil)
}

func TestFlexibleFloat_Shapes(t *testing.T) {
	tests := []struct {
		name string
		json string
		want float64
	}{
		{"number", `12.5`, 12.5},
		{"string", `"12.5"`, 12.5},
		{"empty string", `""`, 0},
		{"value object", `{"value": 7.25, "currency": "DKK"}`, 7.25},
		{"price object", `{"price": 3}`, 3},
		{"nested string value", `{"value": "4.5"}`, 4.5},
		{"null", `null`, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var f FlexibleFloat
			require.NoError(t, json.Unmarshal([]byte(tc.json), &f))
			assert.Equal(t, tc.want, f.Float64())
		})
	}
}

func TestFlexibleFloat_BadString(t *testing.T) {
	var f FlexibleFloat
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &f))
}

func TestParseCookies(t *testing.T) {
	got := ParseCookies("a=1; b=two=2 ;  ; c=")
	assert.Equal(t, map[string]string{"a": "1", "b": "two=2", "c": ""}, got)
}

func TestMergeCookies(t *testing.T) {
	assert.Equal(t, "a=1; b=3; c=4", MergeCookies("a=1; b=2", "b=3; c=4"))
	assert.Equal(t, "a=1", MergeCookies("a=1", ""))
	assert.Equal(t, "x=9", MergeCookies("", "x=9"))
}

func TestMatchesPath(t *testing.T) {
	patterns := []string{"/account", "/portfolio"}
	excludes := []string{"/login"}

	assert.True(t, MatchesPath("https://robinhood.com/account/investing", "robinhood.com", patterns, excludes))
	assert.False(t, MatchesPath("https://robinhood.com/login?next=/account", "robinhood.com", patterns, excludes))
	assert.False(t, MatchesPath("https://evil.example/account", "robinhood.com", patterns, excludes))
	assert.False(t, MatchesPath("::not a url", "robinhood.com", patterns, excludes))
}

func TestNormalizePosition(t *testing.T) {
	p := NormalizePosition("aapl", 10, 100, 120, 0)

	assert.Equal(t, "AAPL", p.Symbol)
	assert.Equal(t, 1200.0, p.MarketValue)
	assert.Equal(t, 200.0, p.UnrealizedPnL)
	assert.InDelta(t, 20.0, p.UnrealizedPnLPercent, 1e-9)
}

func TestNormalizePosition_ZeroCost(t *testing.T) {
	p := NormalizePosition("FREE", 5, 0, 0, 50)

	assert.Equal(t, 10.0, p.CurrentPrice)
	assert.Equal(t, 0.0, p.UnrealizedPnLPercent)
}

func TestNewQuote_Change(t *testing.T) {
	q := NewQuote("msft", 110, 100, timeZero)
	assert.Equal(t, 10.0, q.Change)
	assert.InDelta(t, 10.0, q.ChangePercent, 1e-9)
}

func TestDecode_ParseError(t *testing.T) {
	var v struct{}
	err := Decode(models.ProviderWebull, models.OpQuote, []byte("{"), &v)
	assert.True(t, errors.Is(err, apperrors.ErrParse))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(stubAdapter{p: models.ProviderNordnet}, stubAdapter{p: models.ProviderRobinhood})

	assert.Equal(t, []models.Provider{models.ProviderRobinhood, models.ProviderNordnet}, r.Providers())

	_, err := r.Get(models.ProviderWebull)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestNewRequest_SetsHeaders(t *testing.T) {
	req, err := NewRequest(context.Background(), "POST", "https://example.com/x", map[string]string{"a": "b"})
	require.NoError(t, err)

	assert.Equal(t, DefaultUserAgent, req.Header.Get("User-Agent"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
}
