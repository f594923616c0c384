// Package query implements the deterministic analytic functions over the dataset.
//
// Every function is pure with respect to the Dataset: identical arguments
// always produce identical results. Empty selections never fail; they return
// 0 for counts and sums, NaN for extrema and means, and a text notice for
// reports.
package query

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	apperrors "ohlcv-analyst/internal/errors"
	"ohlcv-analyst/internal/models"
	"ohlcv-analyst/internal/store"
	"ohlcv-analyst/pkg/utils"
)

// NoYearData is the report returned by TopVolumeDays for a year without bars.
const NoYearData = "No data available for that year."

// Valid year range for year parameters.
const (
	MinYear = 1
	MaxYear = 9999
)

// Engine runs analytic functions against an immutable dataset.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	ds *store.Dataset
}

// NewEngine creates a query engine over ds.
func NewEngine(ds *store.Dataset) *Engine {
	return &Engine{ds: ds}
}

// Dataset returns the underlying dataset.
func (e *Engine) Dataset() *store.Dataset {
	return e.ds
}

// ValidateYear checks that year is a usable calendar year.
func ValidateYear(year int) error {
	if year < MinYear || year > MaxYear {
		return apperrors.NewValidationError("year", year, fmt.Sprintf("must be between %d and %d", MinYear, MaxYear))
	}
	return nil
}

// ValidateMonth checks that month is in 1..12.
func ValidateMonth(month int) error {
	if month < 1 || month > 12 {
		return apperrors.NewValidationError("month", month, "must be between 1 and 12")
	}
	return nil
}

// CountBullishDays counts bars of the year whose close is above the open.
func (e *Engine) CountBullishDays(year int) (int, error) {
	if err := ValidateYear(year); err != nil {
		return 0, err
	}
	count := 0
	for _, b := range e.ds.Year(year) {
		if b.Bullish {
			count++
		}
	}
	return count, nil
}

// MaxClosingPrice returns the highest close of the year, NaN when empty.
func (e *Engine) MaxClosingPrice(year int) (float64, error) {
	if err := ValidateYear(year); err != nil {
		return 0, err
	}
	bars := e.ds.Year(year)
	if len(bars) == 0 {
		return math.NaN(), nil
	}
	max := bars[0].Close
	for _, b := range bars[1:] {
		if b.Close > max {
			max = b.Close
		}
	}
	return max, nil
}

// MinOpeningPrice returns the lowest open of the month, NaN when empty.
func (e *Engine) MinOpeningPrice(year, month int) (float64, error) {
	if err := ValidateYear(year); err != nil {
		return 0, err
	}
	if err := ValidateMonth(month); err != nil {
		return 0, err
	}
	bars := e.ds.Month(year, time.Month(month))
	if len(bars) == 0 {
		return math.NaN(), nil
	}
	min := bars[0].Open
	for _, b := range bars[1:] {
		if b.Open < min {
			min = b.Open
		}
	}
	return min, nil
}

// AverageClosingPrice returns the mean close over [start, end], NaN when empty.
func (e *Engine) AverageClosingPrice(start, end time.Time) float64 {
	bars := e.ds.Between(start, end)
	if len(bars) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, b := range bars {
		sum += b.Close
	}
	return sum / float64(len(bars))
}

// TotalVolume sums the volume of the year, 0 when empty.
func (e *Engine) TotalVolume(year int) (float64, error) {
	if err := ValidateYear(year); err != nil {
		return 0, err
	}
	total := 0.0
	for _, b := range e.ds.Year(year) {
		total += b.Volume
	}
	return total, nil
}

// PercentageChange returns the close-to-close change in percent between two
// exact dates. NaN when either date has no bar or the start close is zero.
func (e *Engine) PercentageChange(start, end time.Time) float64 {
	from, ok := e.ds.At(start)
	if !ok {
		return math.NaN()
	}
	to, ok := e.ds.At(end)
	if !ok {
		return math.NaN()
	}
	if from.Close == 0 {
		return math.NaN()
	}
	return (to.Close - from.Close) / from.Close * 100
}

// TopVolumeDays ranks the year's bars by volume, highest first, ties broken
// by the earlier date, and renders up to n "YYYY-MM-DD: volume" lines.
func (e *Engine) TopVolumeDays(n, year int) (string, error) {
	if n < 0 {
		return "", apperrors.NewValidationError("n", n, "must not be negative")
	}
	if err := ValidateYear(year); err != nil {
		return "", err
	}
	bars := e.ds.Year(year)
	if len(bars) == 0 {
		return NoYearData, nil
	}

	ranked := RankByVolume(bars)
	if n < len(ranked) {
		ranked = ranked[:n]
	}

	lines := make([]string, len(ranked))
	for i, b := range ranked {
		lines[i] = fmt.Sprintf("%s: %s", b.Date(), utils.FormatNumber(b.Volume))
	}
	return strings.Join(lines, "\n"), nil
}

// RankByVolume returns bars ordered by volume descending, earlier date first on ties.
// The input slice is not modified.
func RankByVolume(bars []models.Bar) []models.Bar {
	ranked := make([]models.Bar, len(bars))
	copy(ranked, bars)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Volume != ranked[j].Volume {
			return ranked[i].Volume > ranked[j].Volume
		}
		return ranked[i].Timestamp.Before(ranked[j].Timestamp)
	})
	return ranked
}
