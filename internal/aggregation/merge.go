package aggregation

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"portfolio_bridge/internal/models"
)

var hundred = decimal.NewFromInt(100)

// ProviderPositions is one provider's fetched holdings.
type ProviderPositions struct {
	Provider  models.Provider
	Positions []models.Position
}

type symbolTotals struct {
	symbol   string
	quantity decimal.Decimal
	cost     decimal.Decimal
	value    decimal.Decimal
	parts    []models.ProviderContribution
}

// MergePositions combines holdings of the same symbol across providers.
// Quantities, costs and market values are summed; the average price is the
// cost-weighted basis. Output is ordered by market value, then symbol.
func MergePositions(sources []ProviderPositions) []models.AggregatedPosition {
	bySymbol := make(map[string]*symbolTotals)
	var order []string

	for _, src := range sources {
		for _, pos := range src.Positions {
			symbol := strings.ToUpper(strings.TrimSpace(pos.Symbol))
			if symbol == "" {
				continue
			}
			t, ok := bySymbol[symbol]
			if !ok {
				t = &symbolTotals{symbol: symbol}
				bySymbol[symbol] = t
				order = append(order, symbol)
			}

			qty := decimal.NewFromFloat(pos.Quantity)
			t.quantity = t.quantity.Add(qty)
			t.cost = t.cost.Add(qty.Mul(decimal.NewFromFloat(pos.AverageCost)))
			t.value = t.value.Add(decimal.NewFromFloat(pos.MarketValue))
			t.parts = append(t.parts, models.ProviderContribution{
				Provider:     src.Provider,
				Quantity:     pos.Quantity,
				AverageCost:  pos.AverageCost,
				CurrentPrice: pos.CurrentPrice,
				MarketValue:  pos.MarketValue,
			})
		}
	}

	out := make([]models.AggregatedPosition, 0, len(order))
	for _, symbol := range order {
		out = append(out, toAggregated(bySymbol[symbol]))
	}

	slices.SortStableFunc(out, func(a, b models.AggregatedPosition) int {
		if c := cmp.Compare(b.TotalMarketValue, a.TotalMarketValue); c != 0 {
			return c
		}
		return strings.Compare(a.Symbol, b.Symbol)
	})
	return out
}

func toAggregated(t *symbolTotals) models.AggregatedPosition {
	pnl := t.value.Sub(t.cost)

	var avg, pct decimal.Decimal
	if !t.quantity.IsZero() {
		avg = t.cost.Div(t.quantity)
	}
	if !t.cost.IsZero() {
		pct = pnl.Div(t.cost).Mul(hundred)
	}

	return models.AggregatedPosition{
		Symbol:               t.symbol,
		TotalQuantity:        t.quantity.InexactFloat64(),
		TotalCost:            t.cost.InexactFloat64(),
		TotalMarketValue:     t.value.InexactFloat64(),
		AveragePrice:         avg.InexactFloat64(),
		UnrealizedPnL:        pnl.InexactFloat64(),
		UnrealizedPnLPercent: pct.InexactFloat64(),
		Providers:            t.parts,
	}
}

// Summarize derives the headline view from merged positions. DayChange is the
// total unrealized P&L.
func Summarize(positions []models.AggregatedPosition, providersConnected int, now time.Time) *models.PortfolioSummary {
	var value, cost decimal.Decimal
	for _, p := range positions {
		value = value.Add(decimal.NewFromFloat(p.TotalMarketValue))
		cost = cost.Add(decimal.NewFromFloat(p.TotalCost))
	}

	gain := value.Sub(cost)
	var gainPct decimal.Decimal
	if !cost.IsZero() {
		gainPct = gain.Div(cost).Mul(hundred)
	}

	s := &models.PortfolioSummary{
		TotalValue:           value.InexactFloat64(),
		TotalCost:            cost.InexactFloat64(),
		TotalGainLoss:        gain.InexactFloat64(),
		TotalGainLossPercent: gainPct.InexactFloat64(),
		DayChange:            gain.InexactFloat64(),
		DayChangePercent:     gainPct.InexactFloat64(),
		PositionsCount:       len(positions),
		ProvidersConnected:   providersConnected,
		ComputedAt:           now,
	}
	s.TopGainer, s.TopLoser = extremes(positions)
	return s
}

// extremes returns the best position if it gained and the worst if it lost.
func extremes(positions []models.AggregatedPosition) (gainer, loser *models.AggregatedPosition) {
	if len(positions) == 0 {
		return nil, nil
	}

	best, worst := positions[0], positions[0]
	for _, p := range positions[1:] {
		if p.UnrealizedPnLPercent > best.UnrealizedPnLPercent {
			best = p
		}
		if p.UnrealizedPnLPercent < worst.UnrealizedPnLPercent {
			worst = p
		}
	}

	if best.UnrealizedPnLPercent > 0 {
		gainer = &best
	}
	if worst.UnrealizedPnLPercent < 0 {
		loser = &worst
	}
	return gainer, loser
}

// DedupeWatchlist keeps the first item seen for each symbol.
func DedupeWatchlist(lists map[models.Provider][]models.WatchlistItem, order []models.Provider) []models.WatchlistItem {
	seen := make(map[string]bool)
	out := []models.WatchlistItem{}
	for _, p := range order {
		for _, item := range lists[p] {
			symbol := strings.ToUpper(strings.TrimSpace(item.Symbol))
			if symbol == "" || seen[symbol] {
				continue
			}
			seen[symbol] = true
			item.Symbol = symbol
			if item.Provider == "" {
				item.Provider = p
			}
			out = append(out, item)
		}
	}
	return out
}
