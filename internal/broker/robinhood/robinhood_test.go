package robinhood

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio_bridge/internal/broker"
	apperrors "portfolio_bridge/internal/errors"
	"portfolio_bridge/internal/models"
)

func testSession() *models.Session {
	return &models.Session{
		Provider:  models.ProviderRobinhood,
		Cookies:   "device_id=abc; rh_session=xyz",
		Tokens:    map[string]string{"access_token": "tok-123"},
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestBuildRequest_BearerAuth(t *testing.T) {
	a := New("http://rh.test/")

	req, err := a.BuildRequest(context.Background(), models.OpQuote, broker.Params{Symbol: "aapl"}, testSession())
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "http://rh.test/quotes/AAPL/", req.URL.String())
	assert.Equal(t, "Bearer tok-123", req.Header.Get("Authorization"))
	assert.Equal(t, "device_id=abc; rh_session=xyz", req.Header.Get("Cookie"))
}

func TestBuildRequest_Routes(t *testing.T) {
	a := New("http://rh.test")

	tests := []struct {
		op     models.Operation
		params broker.Params
		method string
		url    string
	}{
		{models.OpCandles, broker.Params{Symbol: "MSFT"}, http.MethodGet, "http://rh.test/quotes/historicals/MSFT/?interval=day&span=year"},
		{models.OpCandles, broker.Params{Symbol: "MSFT", Interval: "5minute", Span: "day"}, http.MethodGet, "http://rh.test/quotes/historicals/MSFT/?interval=5minute&span=day"},
		{models.OpNews, broker.Params{Symbol: "TSLA"}, http.MethodGet, "http://rh.test/midlands/news/TSLA/"},
		{models.OpPositions, broker.Params{}, http.MethodGet, "http://rh.test/positions/?nonzero=true"},
		{models.OpWatchlist, broker.Params{}, http.MethodGet, "http://rh.test/midlands/lists/default/"},
		{models.OpAddToWatchlist, broker.Params{Symbol: "nvda"}, http.MethodPost, "http://rh.test/midlands/lists/default/"},
		{models.OpRemoveFromWatchlist, broker.Params{Symbol: "NVDA"}, http.MethodDelete, "http://rh.test/midlands/lists/default/NVDA/"},
		{models.OpConnectionCheck, broker.Params{}, http.MethodGet, "http://rh.test/user/"},
	}

	for _, tc := range tests {
		t.Run(string(tc.op), func(t *testing.T) {
			req, err := a.BuildRequest(context.Background(), tc.op, tc.params, testSession())
			require.NoError(t, err)
			assert.Equal(t, tc.method, req.Method)
			assert.Equal(t, tc.url, req.URL.String())
		})
	}
}

func TestBuildRequest_AddSendsSymbol(t *testing.T) {
	a := New("http://rh.test")

	req, err := a.BuildRequest(context.Background(), models.OpAddToWatchlist, broker.Params{Symbol: "nvda"}, testSession())
	require.NoError(t, err)

	data, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "NVDA", body["symbols"])
}

func TestBuildRequest_MissingSymbol(t *testing.T) {
	_, err := New("").BuildRequest(context.Background(), models.OpQuote, broker.Params{}, testSession())
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestParseResponse_Quote(t *testing.T) {
	body := `{"symbol":"AAPL","last_trade_price":"189.2500","previous_close":"185.0000","updated_at":"2026-10-14T20:00:00Z"}`

	got, err := New("").ParseResponse(models.OpQuote, []byte(body))
	require.NoError(t, err)

	q := got.(models.Quote)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, 189.25, q.Price)
	assert.InDelta(t, 4.25, q.Change, 1e-9)
}

func TestParseResponse_QuoteMissingSymbol(t *testing.T) {
	_, err := New("").ParseResponse(models.OpQuote, []byte(`{"last_trade_price":"1"}`))
	assert.ErrorIs(t, err, apperrors.ErrParse)
}

func TestParseResponse_Positions(t *testing.T) {
	body := `{"next":null,"results":[
		{"symbol":"AAPL","quantity":"10.0000","average_buy_price":"100.0000","last_trade_price":"120.00"},
		{"symbol":"GONE","quantity":"0.0000","average_buy_price":"5.00","last_trade_price":"4.00"}
	]}`

	got, err := New("").ParseResponse(models.OpPositions, []byte(body))
	require.NoError(t, err)

	positions := got.([]models.Position)
	require.Len(t, positions, 1)
	assert.Equal(t, "AAPL", positions[0].Symbol)
	assert.Equal(t, 1200.0, positions[0].MarketValue)
	assert.Equal(t, 200.0, positions[0].UnrealizedPnL)
}

func TestParseResponse_MissingResults(t *testing.T) {
	for _, op := range []models.Operation{models.OpPositions, models.OpWatchlist, models.OpNews} {
		_, err := New("").ParseResponse(op, []byte(`{"detail":"Not found."}`))
		assert.ErrorIs(t, err, apperrors.ErrParse, "op %s", op)
	}
}

func TestParseResponse_Watchlist(t *testing.T) {
	body := `{"results":[{"symbol":"msft","name":"Microsoft","last_trade_price":"110","previous_close":"100"}]}`

	got, err := New("").ParseResponse(models.OpWatchlist, []byte(body))
	require.NoError(t, err)

	items := got.([]models.WatchlistItem)
	require.Len(t, items, 1)
	assert.Equal(t, "MSFT", items[0].Symbol)
	assert.Equal(t, 10.0, items[0].Change)
	assert.Equal(t, models.ProviderRobinhood, items[0].Provider)
}

func TestParseResponse_Candles(t *testing.T) {
	body := `{"symbol":"AAPL","historicals":[{"begins_at":"2026-10-13T00:00:00Z","open_price":"1","close_price":"2","high_price":"3","low_price":"0.5","volume":1000}]}`

	got, err := New("").ParseResponse(models.OpCandles, []byte(body))
	require.NoError(t, err)

	candles := got.([]models.Candle)
	require.Len(t, candles, 1)
	assert.Equal(t, 2.0, candles[0].Close)
	assert.Equal(t, 1000.0, candles[0].Volume)
}

func TestRefresh(t *testing.T) {
	a := New("http://rh.test")
	s := testSession()
	s.RefreshToken = "refresh-1"

	req, err := a.BuildRefreshRequest(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "http://rh.test/oauth2/token/", req.URL.String())

	res, err := a.ParseRefreshResponse([]byte(`{"access_token":"new","refresh_token":"refresh-2","expires_in":3600}`))
	require.NoError(t, err)
	assert.Equal(t, "new", res.Tokens["access_token"])
	assert.Equal(t, "refresh-2", res.RefreshToken)
	assert.Equal(t, time.Hour, res.ExpiresIn)

	_, err = a.ParseRefreshResponse([]byte(`{}`))
	assert.ErrorIs(t, err, apperrors.ErrParse)
}

func TestIsLoginSuccess(t *testing.T) {
	a := New("")

	assert.True(t, a.IsLoginSuccess("https://robinhood.com/account/investing"))
	assert.True(t, a.IsLoginSuccess("https://robinhood.com/stocks/AAPL"))
	assert.False(t, a.IsLoginSuccess("https://robinhood.com/login"))
	assert.False(t, a.IsLoginSuccess("https://robinhood.com/us/en/"))
}
