package nordnet

import (
	"errors"
	"strings"
	"time"

	"portfolio_bridge/internal/broker"
	apperrors "portfolio_bridge/internal/errors"
	"portfolio_bridge/internal/models"
)

var errNoInstrument = errors.New("empty instrument list")

// ParseResponse implements broker.Adapter. Nordnet returns bare arrays.
func (a *Adapter) ParseResponse(op models.Operation, body []byte) (any, error) {
	p := a.Provider()

	switch op {
	case models.OpQuote:
		var instruments []Instrument
		if err := broker.Decode(p, op, body, &instruments); err != nil {
			return nil, err
		}
		if len(instruments) == 0 || instruments[0].Symbol == "" {
			return nil, apperrors.ParseError(p, op, errNoInstrument)
		}
		inst := instruments[0]
		var pi PriceInfo
		if inst.PriceInfo != nil {
			pi = *inst.PriceInfo
		}
		return broker.NewQuote(inst.Symbol, pi.Last.Float64(), pi.ClosingPrice.Float64(), fromMillis(pi.Time)), nil

	case models.OpCandles:
		var series []PriceSeries
		if err := broker.Decode(p, op, body, &series); err != nil {
			return nil, err
		}
		candles := []models.Candle{}
		for _, s := range series {
			for _, pt := range s.Prices {
				candles = append(candles, models.Candle{
					Time:   fromMillis(pt.Time),
					Open:   pt.Open.Float64(),
					High:   pt.High.Float64(),
					Low:    pt.Low.Float64(),
					Close:  pt.Last.Float64(),
					Volume: pt.Volume.Float64(),
				})
			}
		}
		return candles, nil

	case models.OpNews:
		var items []NewsItem
		if err := broker.Decode(p, op, body, &items); err != nil {
			return nil, err
		}
		news := make([]models.NewsItem, 0, len(items))
		for _, n := range items {
			news = append(news, models.NewsItem{
				Title:       n.Headline,
				Source:      n.Source,
				URL:         n.URL,
				Summary:     n.Preamble,
				PublishedAt: fromMillis(n.Timestamp),
			})
		}
		return news, nil

	case models.OpPositions:
		var positions []Position
		if err := broker.Decode(p, op, body, &positions); err != nil {
			return nil, err
		}
		out := make([]models.Position, 0, len(positions))
		for _, pos := range positions {
			if pos.Instrument.Symbol == "" {
				return nil, apperrors.ParseError(p, op, errors.New("position without symbol"))
			}
			if pos.Qty == 0 {
				continue
			}
			out = append(out, toPosition(pos))
		}
		return out, nil

	case models.OpWatchlist:
		var lists []Watchlist
		if err := broker.Decode(p, op, body, &lists); err != nil {
			return nil, err
		}
		items := []models.WatchlistItem{}
		for _, l := range lists {
			for _, inst := range l.Instruments {
				item := models.WatchlistItem{
					Symbol:   strings.ToUpper(inst.Symbol),
					Name:     inst.Name,
					Provider: p,
				}
				if inst.PriceInfo != nil {
					item.Price = inst.PriceInfo.Last.Float64()
					item.Change = inst.PriceInfo.Diff.Float64()
					item.ChangePercent = inst.PriceInfo.DiffPct.Float64()
				}
				items = append(items, item)
			}
		}
		return items, nil

	case models.OpAddToWatchlist, models.OpRemoveFromWatchlist, models.OpConnectionCheck:
		return nil, nil
	}

	return nil, apperrors.Unsupported(p, op)
}

// toPosition converts a Nordnet holding using account-currency amounts when present.
func toPosition(pos Position) models.Position {
	qty := pos.Qty.Float64()

	marketValue := pos.MarketValueAcc.Value.Float64()
	if marketValue == 0 {
		marketValue = pos.MarketValue.Value.Float64()
	}
	acqPrice := pos.AcqPriceAcc.Value.Float64()
	if acqPrice == 0 {
		acqPrice = pos.AcqPrice.Value.Float64()
	}

	// price is derived from value
	return broker.NormalizePosition(pos.Instrument.Symbol, qty, acqPrice, 0, marketValue)
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
