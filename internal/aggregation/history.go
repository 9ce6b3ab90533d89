package aggregation

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "portfolio_bridge/internal/errors"
	"portfolio_bridge/internal/logging"
	"portfolio_bridge/internal/models"
)

const (
	historyKey       = "history"
	maxHistoryPoints = 365
	dateLayout       = "2006-01-02"
)

// Periods lists the accepted history windows.
var Periods = []string{"1D", "1W", "1M", "3M", "1Y", "ALL"}

// BlobStore persists the history document.
type BlobStore interface {
	Get(key string) ([]byte, error)
	Put(key string, data []byte) error
}

// HistoryStore keeps one portfolio snapshot per calendar day as a JSON array,
// ascending by date and capped at the most recent 365 points.
type HistoryStore struct {
	blobs  BlobStore
	logger *zap.Logger
	mu     sync.Mutex
}

// NewHistoryStore creates a history store backed by blobs.
func NewHistoryStore(blobs BlobStore, logger *zap.Logger) *HistoryStore {
	return &HistoryStore{blobs: blobs, logger: logging.OrNop(logger).Named("history")}
}

// Points returns every stored point, oldest first.
func (h *HistoryStore) Points() ([]models.HistoricalDataPoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.load()
}

// load reads the stored series. A corrupt document reads as empty.
func (h *HistoryStore) load() ([]models.HistoricalDataPoint, error) {
	data, err := h.blobs.Get(historyKey)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	points := []models.HistoricalDataPoint{}
	if len(data) == 0 {
		return points, nil
	}
	if err := json.Unmarshal(data, &points); err != nil {
		h.logger.Warn("discarding unreadable history", zap.Error(err))
		return []models.HistoricalDataPoint{}, nil
	}
	return points, nil
}

// Upsert stores point, replacing any point for the same date.
func (h *HistoryStore) Upsert(point models.HistoricalDataPoint) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	points, err := h.load()
	if err != nil {
		return err
	}

	if i := slices.IndexFunc(points, func(p models.HistoricalDataPoint) bool { return p.Date == point.Date }); i >= 0 {
		points[i] = point
	} else {
		points = append(points, point)
	}
	slices.SortFunc(points, func(a, b models.HistoricalDataPoint) int { return strings.Compare(a.Date, b.Date) })
	if len(points) > maxHistoryPoints {
		points = points[len(points)-maxHistoryPoints:]
	}

	data, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	if err := h.blobs.Put(historyKey, data); err != nil {
		return fmt.Errorf("writing history: %w", err)
	}
	return nil
}

// periodStart returns the first date included in period, or "" for ALL.
func periodStart(period string, now time.Time) (string, error) {
	var start time.Time
	switch period {
	case "1D":
		start = now.AddDate(0, 0, -1)
	case "1W":
		start = now.AddDate(0, 0, -7)
	case "1M":
		start = now.AddDate(0, -1, 0)
	case "3M":
		start = now.AddDate(0, -3, 0)
	case "1Y":
		start = now.AddDate(-1, 0, 0)
	case "ALL":
		return "", nil
	default:
		return "", apperrors.ValidationField("period", fmt.Sprintf("period must be one of %s", strings.Join(Periods, ", ")))
	}
	return start.Format(dateLayout), nil
}

// Window filters points to period and derives the return over it.
func Window(points []models.HistoricalDataPoint, period string, now time.Time) (*models.HistorySeries, error) {
	from, err := periodStart(period, now)
	if err != nil {
		return nil, err
	}

	series := &models.HistorySeries{Period: period, Points: []models.HistoricalDataPoint{}}
	for _, p := range points {
		if p.Date >= from {
			series.Points = append(series.Points, p)
		}
	}
	if len(series.Points) == 0 {
		return series, nil
	}

	series.StartValue = series.Points[0].TotalValue
	series.EndValue = series.Points[len(series.Points)-1].TotalValue
	series.TotalReturn = series.EndValue - series.StartValue
	if series.StartValue > 0 {
		series.ReturnPercent = series.TotalReturn / series.StartValue * 100
	}
	return series, nil
}

// Performance derives day-over-day returns from the last year of points.
func Performance(points []models.HistoricalDataPoint, now time.Time) *models.PerformanceMetrics {
	series, _ := Window(points, "1Y", now)

	var returns []models.DailyReturn
	for i := 1; i < len(series.Points); i++ {
		prev := series.Points[i-1].TotalValue
		if prev <= 0 {
			continue
		}
		returns = append(returns, models.DailyReturn{
			Date:          series.Points[i].Date,
			ReturnPercent: (series.Points[i].TotalValue - prev) / prev * 100,
		})
	}

	m := &models.PerformanceMetrics{Days: len(returns)}
	if len(returns) == 0 {
		return m
	}

	best, worst := returns[0], returns[0]
	var sum float64
	for _, r := range returns {
		sum += r.ReturnPercent
		if r.ReturnPercent > best.ReturnPercent {
			best = r
		}
		if r.ReturnPercent < worst.ReturnPercent {
			worst = r
		}
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r.ReturnPercent - mean
		variance += d * d
	}
	variance /= float64(len(returns))

	m.BestDay = &best
	m.WorstDay = &worst
	m.AverageReturn = mean
	m.Volatility = math.Sqrt(variance)
	if m.Volatility > 0 {
		m.RiskAdjustedRatio = mean / m.Volatility
	}
	return m
}
