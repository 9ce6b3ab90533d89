package webull

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio_bridge/internal/broker"
	apperrors "portfolio_bridge/internal/errors"
	"portfolio_bridge/internal/models"
)

func TestBuildRequest_TokenHeaders(t *testing.T) {
	a := New("http://wb.test")
	s := &models.Session{
		Provider: models.ProviderWebull,
		Cookies:  "did=dev-42; web_lang=en",
		Tokens:   map[string]string{"accessToken": "wb-token"},
	}

	req, err := a.BuildRequest(context.Background(), models.OpQuote, broker.Params{Symbol: "aapl"}, s)
	require.NoError(t, err)

	assert.Equal(t, "http://wb.test/api/quote/ticker/realtime?symbol=AAPL", req.URL.String())
	assert.Equal(t, "wb-token", req.Header.Get("access_token"))
	assert.Equal(t, "dev-42", req.Header.Get("did"), "device id falls back to the cookie")
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestBuildRequest_CandleQuery(t *testing.T) {
	a := New("http://wb.test")

	req, err := a.BuildRequest(context.Background(), models.OpCandles, broker.Params{Symbol: "TSLA", Interval: "week", Span: "month"}, &models.Session{})
	require.NoError(t, err)

	q := req.URL.Query()
	assert.Equal(t, "w1", q.Get("type"))
	assert.Equal(t, "22", q.Get("count"))
}

func TestBuildRequest_WatchlistMutations(t *testing.T) {
	a := New("http://wb.test")

	add, err := a.BuildRequest(context.Background(), models.OpAddToWatchlist, broker.Params{Symbol: "amd"}, &models.Session{})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, add.Method)
	assert.Equal(t, "/api/wlas/watchlist/add", add.URL.Path)

	rm, err := a.BuildRequest(context.Background(), models.OpRemoveFromWatchlist, broker.Params{Symbol: "amd"}, &models.Session{})
	require.NoError(t, err)
	assert.Equal(t, "/api/wlas/watchlist/remove", rm.URL.Path)
}

func TestParseResponse_Quote(t *testing.T) {
	body := `{"success":true,"data":{"symbol":"AAPL","close":"120.5","preClose":"100","tradeTime":1760472000000}}`

	got, err := New("").ParseResponse(models.OpQuote, []byte(body))
	require.NoError(t, err)

	q := got.(models.Quote)
	assert.Equal(t, 120.5, q.Price)
	assert.InDelta(t, 20.5, q.ChangePercent, 1e-9)
	assert.Equal(t, time.UnixMilli(1760472000000).UTC(), q.UpdatedAt)
}

func TestParseResponse_Envelope(t *testing.T) {
	a := New("")

	_, err := a.ParseResponse(models.OpQuote, []byte(`{"success":false,"code":"auth.token.expire","msg":"expired"}`))
	assert.ErrorIs(t, err, apperrors.ErrParse)

	_, err = a.ParseResponse(models.OpQuote, []byte(`{"data":null}`))
	assert.ErrorIs(t, err, apperrors.ErrParse)

	_, err = a.ParseResponse(models.OpQuote, []byte(`not json`))
	assert.ErrorIs(t, err, apperrors.ErrParse)
}

func TestParseResponse_Positions(t *testing.T) {
	body := `{"data":{"positions":[
		{"ticker":{"symbol":"AAPL","name":"Apple"},"position":"5","costPrice":"120","lastPrice":"130","marketValue":"650"},
		{"ticker":{"symbol":"ZERO"},"position":"0","costPrice":"1","lastPrice":"1"}
	]}}`

	got, err := New("").ParseResponse(models.OpPositions, []byte(body))
	require.NoError(t, err)

	positions := got.([]models.Position)
	require.Len(t, positions, 1)
	assert.Equal(t, 5.0, positions[0].Quantity)
	assert.Equal(t, 120.0, positions[0].AverageCost)
	assert.Equal(t, 50.0, positions[0].UnrealizedPnL)
}

func TestParseResponse_Candles(t *testing.T) {
	body := `{"data":[{"symbol":"AAPL","data":["1760400000,100,110,115,99,98,12345","1760486400,110,108,112,107,110,null"]}]}`

	got, err := New("").ParseResponse(models.OpCandles, []byte(body))
	require.NoError(t, err)

	candles := got.([]models.Candle)
	require.Len(t, candles, 2)
	assert.Equal(t, 110.0, candles[0].Close)
	assert.Equal(t, 115.0, candles[0].High)
	assert.Equal(t, 12345.0, candles[0].Volume)
	assert.Equal(t, 0.0, candles[1].Volume)

	_, err = New("").ParseResponse(models.OpCandles, []byte(`{"data":[{"data":["1,2"]}]}`))
	assert.ErrorIs(t, err, apperrors.ErrParse)
}

func TestParseResponse_WatchlistFlattensLists(t *testing.T) {
	body := `{"data":[
		{"name":"Tech","tickerList":[{"symbol":"msft","name":"Microsoft","close":"400","change":"4","changeRatio":"0.01"}]},
		{"name":"EV","tickerList":[{"symbol":"TSLA","close":250,"change":-5,"changeRatio":-0.02}]}
	]}`

	got, err := New("").ParseResponse(models.OpWatchlist, []byte(body))
	require.NoError(t, err)

	items := got.([]models.WatchlistItem)
	require.Len(t, items, 2)
	assert.Equal(t, "MSFT", items[0].Symbol)
	assert.InDelta(t, 1.0, items[0].ChangePercent, 1e-9)
	assert.InDelta(t, -2.0, items[1].ChangePercent, 1e-9)
}

func TestRefresh(t *testing.T) {
	a := New("http://wb.test")

	req, err := a.BuildRefreshRequest(context.Background(), &models.Session{RefreshToken: "r 1"})
	require.NoError(t, err)
	assert.Equal(t, "r 1", req.URL.Query().Get("refreshToken"))

	res, err := a.ParseRefreshResponse([]byte(`{"accessToken":"fresh","refreshToken":"r2","expiresIn":7200}`))
	require.NoError(t, err)
	assert.Equal(t, "fresh", res.Tokens["access_token"])
	assert.Equal(t, 2*time.Hour, res.ExpiresIn)
}

func TestIsLoginSuccess(t *testing.T) {
	a := New("")

	assert.True(t, a.IsLoginSuccess("https://www.webull.com/center"))
	assert.True(t, a.IsLoginSuccess("https://app.webull.com/trade?source=web"))
	assert.False(t, a.IsLoginSuccess("https://www.webull.com/login"))
}
