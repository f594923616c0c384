// Package store loads the OHLCV history and serves it read-only to the query engine.
package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"ohlcv-analyst/internal/config"
	apperrors "ohlcv-analyst/internal/errors"
	"ohlcv-analyst/internal/models"
)

// Dataset is an immutable, date-ordered sequence of bars with unique dates.
// It is safe for concurrent readers.
type Dataset struct {
	bars     []models.Bar
	byDate   map[time.Time]int
	warnings []string
}

// NewDataset builds a dataset from bars in source order. Bars are sorted by
// date; when two bars share a date the later one in source order wins and a
// warning is recorded.
func NewDataset(bars []models.Bar) *Dataset {
	pos := make(map[time.Time]int, len(bars))
	kept := make([]models.Bar, 0, len(bars))
	var warnings []string

	for _, b := range bars {
		b.Timestamp = models.TruncateDate(b.Timestamp)
		b.Bullish = b.Close > b.Open
		if i, ok := pos[b.Timestamp]; ok {
			warnings = append(warnings, fmt.Sprintf("duplicate bar for %s: later record replaces earlier one", b.Date()))
			kept[i] = b
			continue
		}
		pos[b.Timestamp] = len(kept)
		kept = append(kept, b)
	}

	sort.Slice(kept, func(i, j int) bool {
		return kept[i].Timestamp.Before(kept[j].Timestamp)
	})

	byDate := make(map[time.Time]int, len(kept))
	for i, b := range kept {
		byDate[b.Timestamp] = i
	}

	return &Dataset{
		bars:     kept,
		byDate:   byDate,
		warnings: warnings,
	}
}

// Len returns the number of bars.
func (d *Dataset) Len() int {
	return len(d.bars)
}

// Warnings returns non-fatal issues found while building the dataset.
func (d *Dataset) Warnings() []string {
	out := make([]string, len(d.warnings))
	copy(out, d.warnings)
	return out
}

// Bars returns a copy of all bars in date order.
// Support and Resistance slices are shared and must not be modified.
func (d *Dataset) Bars() []models.Bar {
	out := make([]models.Bar, len(d.bars))
	copy(out, d.bars)
	return out
}

// First returns the earliest bar.
func (d *Dataset) First() (models.Bar, bool) {
	if len(d.bars) == 0 {
		return models.Bar{}, false
	}
	return d.bars[0], true
}

// Last returns the latest bar.
func (d *Dataset) Last() (models.Bar, bool) {
	if len(d.bars) == 0 {
		return models.Bar{}, false
	}
	return d.bars[len(d.bars)-1], true
}

// At returns the bar dated exactly on the given calendar date.
func (d *Dataset) At(date time.Time) (models.Bar, bool) {
	i, ok := d.byDate[models.TruncateDate(date)]
	if !ok {
		return models.Bar{}, false
	}
	return d.bars[i], true
}

// Between returns bars with from <= date <= to, inclusive on both ends.
func (d *Dataset) Between(from, to time.Time) []models.Bar {
	from, to = models.TruncateDate(from), models.TruncateDate(to)
	if to.Before(from) {
		return nil
	}
	lo := sort.Search(len(d.bars), func(i int) bool {
		return !d.bars[i].Timestamp.Before(from)
	})
	hi := sort.Search(len(d.bars), func(i int) bool {
		return d.bars[i].Timestamp.After(to)
	})
	if lo >= hi {
		return nil
	}
	out := make([]models.Bar, hi-lo)
	copy(out, d.bars[lo:hi])
	return out
}

// Year returns the bars of a calendar year.
func (d *Dataset) Year(year int) []models.Bar {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return d.Between(from, from.AddDate(1, 0, -1))
}

// Month returns the bars of a calendar month.
func (d *Dataset) Month(year int, month time.Month) []models.Bar {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return d.Between(from, from.AddDate(0, 1, -1))
}

// Open loads the dataset from the configured source and logs load warnings.
func Open(ctx context.Context, cfg config.DatasetConfig, logger zerolog.Logger) (*Dataset, error) {
	var (
		ds  *Dataset
		err error
	)

	switch cfg.Source {
	case config.SourceSQLite:
		var s *SQLiteStore
		s, err = NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, apperrors.NewDataError(cfg.SQLitePath, 0, "", "cannot open snapshot", err)
		}
		defer s.Close()
		ds, err = s.LoadDataset(ctx)
	default:
		ds, err = LoadCSV(cfg.CSVPath)
	}
	if err != nil {
		return nil, err
	}

	for _, w := range ds.warnings {
		logger.Warn().Str("source", cfg.Source).Msg(w)
	}
	first, _ := ds.First()
	last, _ := ds.Last()
	logger.Info().
		Str("source", cfg.Source).
		Int("bars", ds.Len()).
		Str("from", first.Date()).
		Str("to", last.Date()).
		Msg("Dataset loaded")

	return ds, nil
}
