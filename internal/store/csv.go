package store

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	apperrors "ohlcv-analyst/internal/errors"
	"ohlcv-analyst/internal/models"
)

// barRecord is the raw CSV row. Every field is text so that each column can be
// validated with a precise error instead of a generic decode failure.
type barRecord struct {
	Timestamp  string `csv:"timestamp"`
	Open       string `csv:"open"`
	High       string `csv:"high"`
	Low        string `csv:"low"`
	Close      string `csv:"close"`
	Volume     string `csv:"volume"`
	Direction  string `csv:"direction"`
	Support    string `csv:"Support"`
	Resistance string `csv:"Resistance"`
}

// RequiredColumns lists the CSV header columns the loader needs.
var RequiredColumns = []string{"timestamp", "open", "high", "low", "close", "volume", "direction", "Support", "Resistance"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var timestampLayouts = []string{
	models.DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-07:00",
	time.RFC3339,
}

// LoadCSV loads a dataset from a CSV file.
func LoadCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewDataError(path, 0, "", "cannot open dataset", err)
	}
	defer f.Close()

	return readCSV(path, f)
}

// ReadCSV loads a dataset from CSV content.
func ReadCSV(r io.Reader) (*Dataset, error) {
	return readCSV("csv", r)
}

func readCSV(source string, r io.Reader) (*Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.NewDataError(source, 0, "", "cannot read dataset", err)
	}

	data = bytes.TrimPrefix(data, utf8BOM)

	if err := checkHeader(source, data); err != nil {
		return nil, err
	}

	var records []*barRecord
	if err := gocsv.Unmarshal(bytes.NewReader(data), &records); err != nil {
		return nil, apperrors.NewDataError(source, 0, "", "malformed csv", err)
	}
	if len(records) == 0 {
		return nil, apperrors.NewDataError(source, 0, "", "dataset has no rows", nil)
	}

	bars := make([]models.Bar, 0, len(records))
	for i, rec := range records {
		bar, err := rec.toBar(source, i+1)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}

	return NewDataset(bars), nil
}

func checkHeader(source string, data []byte) error {
	header, err := csv.NewReader(bytes.NewReader(data)).Read()
	if err == io.EOF {
		return apperrors.NewDataError(source, 0, "", "empty file", nil)
	}
	if err != nil {
		return apperrors.NewDataError(source, 0, "", "malformed csv header", err)
	}

	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[strings.TrimSpace(h)] = true
	}
	var missing []string
	for _, col := range RequiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return apperrors.NewDataError(source, 0, strings.Join(missing, ","), "missing required columns", nil)
	}
	return nil
}

func (r *barRecord) toBar(source string, row int) (models.Bar, error) {
	ts, err := parseTimestamp(r.Timestamp)
	if err != nil {
		return models.Bar{}, apperrors.NewDataError(source, row, "timestamp", "unparsable timestamp", err)
	}

	var vals [5]float64
	cols := [5]struct{ name, raw string }{
		{"open", r.Open}, {"high", r.High}, {"low", r.Low}, {"close", r.Close}, {"volume", r.Volume},
	}
	for i, c := range cols {
		v, err := parseNonNegative(c.raw)
		if err != nil {
			return models.Bar{}, apperrors.NewDataError(source, row, c.name, "invalid number", err)
		}
		vals[i] = v
	}

	dir, ok := models.ParseDirection(strings.TrimSpace(r.Direction))
	if !ok {
		return models.Bar{}, apperrors.NewDataError(source, row, "direction", fmt.Sprintf("unknown direction %q", r.Direction), nil)
	}

	support, err := ParseLevels(r.Support)
	if err != nil {
		return models.Bar{}, apperrors.NewDataError(source, row, "Support", "invalid level list", err)
	}
	resistance, err := ParseLevels(r.Resistance)
	if err != nil {
		return models.Bar{}, apperrors.NewDataError(source, row, "Resistance", "invalid level list", err)
	}

	bar := models.NewBar(ts, vals[0], vals[1], vals[2], vals[3], vals[4])
	bar.Direction = dir
	bar.Support = support
	bar.Resistance = resistance
	return bar, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.TruncateDate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q matches no known layout", s)
}

func parseNonNegative(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("%q is not a finite non-negative number", s)
	}
	return v, nil
}
