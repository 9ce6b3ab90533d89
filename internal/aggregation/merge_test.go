package aggregation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio_bridge/internal/models"
)

func TestMergePositions_WeightedAverage(t *testing.T) {
	merged := MergePositions([]ProviderPositions{
		{Provider: models.ProviderRobinhood, Positions: []models.Position{
			{Symbol: "AAPL", Quantity: 10, AverageCost: 100, CurrentPrice: 110, MarketValue: 1100},
		}},
		{Provider: models.ProviderWebull, Positions: []models.Position{
			{Symbol: "aapl", Quantity: 5, AverageCost: 120, CurrentPrice: 110, MarketValue: 550},
		}},
	})

	require.Len(t, merged, 1)
	got := merged[0]
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, 15.0, got.TotalQuantity)
	assert.Equal(t, 1600.0, got.TotalCost)
	assert.InDelta(t, 106.67, got.AveragePrice, 0.005)
	assert.Equal(t, 1650.0, got.TotalMarketValue)
	assert.Equal(t, 50.0, got.UnrealizedPnL)
	assert.InDelta(t, 3.125, got.UnrealizedPnLPercent, 1e-9)

	require.Len(t, got.Providers, 2)
	assert.Equal(t, models.ProviderRobinhood, got.Providers[0].Provider)
	assert.Equal(t, models.ProviderWebull, got.Providers[1].Provider)
}

func TestMergePositions_Additivity(t *testing.T) {
	quantities := []float64{3, 0.5, 12.25, 7}
	costs := []float64{10, 250.4, 33.3, 0}

	var sources []ProviderPositions
	var wantQty, wantCost float64
	for i, q := range quantities {
		sources = append(sources, ProviderPositions{
			Provider:  models.Providers[i%len(models.Providers)],
			Positions: []models.Position{{Symbol: "MSFT", Quantity: q, AverageCost: costs[i]}},
		})
		wantQty += q
		wantCost += q * costs[i]
	}

	merged := MergePositions(sources)
	require.Len(t, merged, 1)
	assert.InDelta(t, wantQty, merged[0].TotalQuantity, 1e-9)
	assert.InDelta(t, wantCost, merged[0].TotalCost, 1e-9)
	assert.Len(t, merged[0].Providers, len(quantities))
}

func TestMergePositions_ZeroGuards(t *testing.T) {
	merged := MergePositions([]ProviderPositions{{
		Provider:  models.ProviderNordnet,
		Positions: []models.Position{{Symbol: "FREE", Quantity: 0, AverageCost: 0, MarketValue: 0}},
	}})

	require.Len(t, merged, 1)
	assert.Zero(t, merged[0].AveragePrice)
	assert.Zero(t, merged[0].UnrealizedPnLPercent)
}

func TestMergePositions_OrderingAndIdempotence(t *testing.T) {
	sources := []ProviderPositions{
		{Provider: models.ProviderRobinhood, Positions: []models.Position{
			{Symbol: "B", Quantity: 1, AverageCost: 10, MarketValue: 10},
			{Symbol: "A", Quantity: 1, AverageCost: 10, MarketValue: 10},
			{Symbol: "", Quantity: 1, MarketValue: 999},
		}},
		{Provider: models.ProviderWebull, Positions: []models.Position{
			{Symbol: "C", Quantity: 2, AverageCost: 40, MarketValue: 100},
		}},
	}

	first := MergePositions(sources)
	second := MergePositions(sources)

	require.Len(t, first, 3)
	assert.Equal(t, []string{"C", "A", "B"}, []string{first[0].Symbol, first[1].Symbol, first[2].Symbol})
	assert.Equal(t, first, second)
}

func TestSummarize(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	positions := []models.AggregatedPosition{
		{Symbol: "UP", TotalCost: 100, TotalMarketValue: 150, UnrealizedPnL: 50, UnrealizedPnLPercent: 50},
		{Symbol: "DOWN", TotalCost: 200, TotalMarketValue: 150, UnrealizedPnL: -50, UnrealizedPnLPercent: -25},
		{Symbol: "FLAT", TotalCost: 100, TotalMarketValue: 100},
	}

	s := Summarize(positions, 2, now)

	assert.Equal(t, 400.0, s.TotalValue)
	assert.Equal(t, 400.0, s.TotalCost)
	assert.Zero(t, s.TotalGainLoss)
	assert.Equal(t, s.TotalGainLoss, s.DayChange)
	assert.Equal(t, 3, s.PositionsCount)
	assert.Equal(t, 2, s.ProvidersConnected)
	assert.Equal(t, now, s.ComputedAt)
	require.NotNil(t, s.TopGainer)
	assert.Equal(t, "UP", s.TopGainer.Symbol)
	require.NotNil(t, s.TopLoser)
	assert.Equal(t, "DOWN", s.TopLoser.Symbol)
}

func TestSummarize_NoGainerOrLoserWhenFlat(t *testing.T) {
	tests := []struct {
		name       string
		pcts       []float64
		wantGainer bool
		wantLoser  bool
	}{
		{"empty", nil, false, false},
		{"all flat", []float64{0, 0}, false, false},
		{"only gains", []float64{5, 1}, true, false},
		{"only losses", []float64{-5, -1}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var positions []models.AggregatedPosition
			for _, pct := range tt.pcts {
				positions = append(positions, models.AggregatedPosition{Symbol: "X", UnrealizedPnLPercent: pct})
			}
			s := Summarize(positions, 1, time.Time{})
			assert.Equal(t, tt.wantGainer, s.TopGainer != nil)
			assert.Equal(t, tt.wantLoser, s.TopLoser != nil)
		})
	}
}

func TestDedupeWatchlist_FirstSeenWins(t *testing.T) {
	lists := map[models.Provider][]models.WatchlistItem{
		models.ProviderRobinhood: {{Symbol: "AAPL", Price: 1}, {Symbol: "TSLA"}},
		models.ProviderWebull:    {{Symbol: "aapl", Price: 2}, {Symbol: "NVDA"}, {Symbol: " "}},
	}

	items := DedupeWatchlist(lists, []models.Provider{models.ProviderRobinhood, models.ProviderWebull})

	require.Len(t, items, 3)
	assert.Equal(t, "AAPL", items[0].Symbol)
	assert.Equal(t, 1.0, items[0].Price)
	assert.Equal(t, models.ProviderRobinhood, items[0].Provider)
	assert.Equal(t, "NVDA", items[2].Symbol)
	assert.Equal(t, models.ProviderWebull, items[2].Provider)
}
