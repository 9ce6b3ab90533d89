package client

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"portfolio_bridge/internal/broker"
	apperrors "portfolio_bridge/internal/errors"
	"portfolio_bridge/internal/models"
)

// Quote returns the latest quote for symbol.
func (c *Client) Quote(ctx context.Context, p models.Provider, symbol string) (models.Quote, error) {
	v, err := c.Request(ctx, p, models.OpQuote, broker.Params{Symbol: symbol})
	return as[models.Quote](p, models.OpQuote, v, err)
}

// Candles returns historical bars for symbol.
func (c *Client) Candles(ctx context.Context, p models.Provider, symbol, interval, span string) ([]models.Candle, error) {
	v, err := c.Request(ctx, p, models.OpCandles, broker.Params{Symbol: symbol, Interval: interval, Span: span})
	return as[[]models.Candle](p, models.OpCandles, v, err)
}

// News returns recent headlines for symbol.
func (c *Client) News(ctx context.Context, p models.Provider, symbol string) ([]models.NewsItem, error) {
	v, err := c.Request(ctx, p, models.OpNews, broker.Params{Symbol: symbol})
	return as[[]models.NewsItem](p, models.OpNews, v, err)
}

// Positions returns the provider's holdings.
func (c *Client) Positions(ctx context.Context, p models.Provider) ([]models.Position, error) {
	v, err := c.Request(ctx, p, models.OpPositions, broker.Params{})
	return as[[]models.Position](p, models.OpPositions, v, err)
}

// Watchlist returns the provider's watched symbols.
func (c *Client) Watchlist(ctx context.Context, p models.Provider) ([]models.WatchlistItem, error) {
	v, err := c.Request(ctx, p, models.OpWatchlist, broker.Params{})
	return as[[]models.WatchlistItem](p, models.OpWatchlist, v, err)
}

// AddToWatchlist adds symbol to the provider's default watchlist.
func (c *Client) AddToWatchlist(ctx context.Context, p models.Provider, symbol string) error {
	_, err := c.Request(ctx, p, models.OpAddToWatchlist, broker.Params{Symbol: symbol})
	return err
}

// RemoveFromWatchlist removes symbol from the provider's default watchlist.
func (c *Client) RemoveFromWatchlist(ctx context.Context, p models.Provider, symbol string) error {
	_, err := c.Request(ctx, p, models.OpRemoveFromWatchlist, broker.Params{Symbol: symbol})
	return err
}

// PositionsOrEmpty is Positions for aggregation: a malformed response yields
// no positions instead of an error. Other errors still propagate.
func (c *Client) PositionsOrEmpty(ctx context.Context, p models.Provider) ([]models.Position, error) {
	positions, err := c.Positions(ctx, p)
	if apperrors.IsParse(err) {
		c.logger.Warn("unparseable positions, treating as empty", zap.String("provider", string(p)), zap.Error(err))
		return []models.Position{}, nil
	}
	return positions, err
}

// WatchlistOrEmpty is Watchlist with the same parse-error policy as PositionsOrEmpty.
func (c *Client) WatchlistOrEmpty(ctx context.Context, p models.Provider) ([]models.WatchlistItem, error) {
	items, err := c.Watchlist(ctx, p)
	if apperrors.IsParse(err) {
		c.logger.Warn("unparseable watchlist, treating as empty", zap.String("provider", string(p)), zap.Error(err))
		return []models.WatchlistItem{}, nil
	}
	return items, err
}

func as[T any](p models.Provider, op models.Operation, v any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, apperrors.ParseError(p, op, fmt.Errorf("unexpected result type %T", v))
	}
	return t, nil
}
