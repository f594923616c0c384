// Package models provides domain models for the analyst.
package models

import (
	"time"
)

// Direction represents the trade signal attached to a bar.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionNone  Direction = "NONE"
)

// ParseDirection maps the serialized direction column to a Direction.
// Empty and "None"-style values map to DirectionNone.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "LONG":
		return DirectionLong, true
	case "SHORT":
		return DirectionShort, true
	case "", "NONE", "None", "none", "nan", "NaN", "null":
		return DirectionNone, true
	default:
		return "", false
	}
}

// DateLayout is the calendar date format used across the dataset and tools.
const DateLayout = "2006-01-02"

// Bar represents one daily OHLCV record plus derived fields.
type Bar struct {
	Timestamp  time.Time // UTC midnight of the trading date
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	Direction  Direction
	Support    []float64
	Resistance []float64
	Bullish    bool // Close > Open, fixed at load
}

// NewBar creates a bar with its date normalized and Bullish derived.
func NewBar(ts time.Time, open, high, low, close, volume float64) Bar {
	return Bar{
		Timestamp: TruncateDate(ts),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
		Direction: DirectionNone,
		Bullish:   close > open,
	}
}

// Date returns the bar's calendar date as YYYY-MM-DD.
func (b Bar) Date() string {
	return b.Timestamp.Format(DateLayout)
}

// TruncateDate drops the time of day and location, keeping the calendar date.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
