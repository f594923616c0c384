package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "ohlcv-analyst/internal/errors"
	"ohlcv-analyst/internal/models"
)

const csvHeader = "timestamp,open,high,low,close,volume,direction,Support,Resistance\n"

func TestReadCSV_ParsesRows(t *testing.T) {
	data := csvHeader +
		"2024-01-02,110,112,88,90,3000,SHORT,\"[85.5, 80]\",[120]\n" +
		"2024-01-01 00:00:00,100,115,95,110,1000,LONG,[],\n" +
		"2024-01-03T00:00:00Z,90,95,89,95,2000,,nan,None\n"

	ds, err := ReadCSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if ds.Len() != 3 {
		t.Fatalf("Expected 3 bars, got %d", ds.Len())
	}

	bars := ds.Bars()
	if bars[0].Date() != "2024-01-01" || bars[2].Date() != "2024-01-03" {
		t.Errorf("Bars should be sorted by date, got %s..%s", bars[0].Date(), bars[2].Date())
	}
	if !bars[0].Bullish || bars[1].Bullish {
		t.Error("Bullish flag should follow close > open")
	}
	if bars[0].Direction != models.DirectionLong || bars[2].Direction != models.DirectionNone {
		t.Errorf("Unexpected directions %s, %s", bars[0].Direction, bars[2].Direction)
	}
	if got := bars[1].Support; len(got) != 2 || got[0] != 85.5 || got[1] != 80 {
		t.Errorf("Unexpected support levels %v", got)
	}
	if len(bars[2].Support) != 0 || len(bars[2].Resistance) != 0 {
		t.Error("Absent level lists should be empty")
	}
}

func TestReadCSV_StripsBOMAndExtraColumns(t *testing.T) {
	data := "\xEF\xBB\xBF" + "timestamp,open,high,low,close,volume,direction,Support,Resistance,extra\n" +
		"2024-01-01,100,115,95,110,1000,LONG,[],[],ignored\n"
	ds, err := ReadCSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if ds.Len() != 1 {
		t.Errorf("Expected 1 bar, got %d", ds.Len())
	}
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		column string
		row    int
	}{
		{"empty file", "", "", 0},
		{"header only", csvHeader, "", 0},
		{"missing columns", "timestamp,open,close\n2024-01-01,1,2\n", "high,low,volume,direction,Support,Resistance", 0},
		{"bad timestamp", csvHeader + "01/02/2024,1,1,1,1,1,LONG,[],[]\n", "timestamp", 1},
		{"bad number", csvHeader + "2024-01-01,abc,1,1,1,1,LONG,[],[]\n", "open", 1},
		{"negative volume", csvHeader + "2024-01-01,1,1,1,1,-5,LONG,[],[]\n", "volume", 1},
		{"nan close", csvHeader + "2024-01-01,1,1,1,NaN,5,LONG,[],[]\n", "close", 1},
		{"unknown direction", csvHeader + "2024-01-01,1,1,1,1,1,UP,[],[]\n", "direction", 1},
		{"code in levels", csvHeader + "2024-01-01,1,1,1,1,1,LONG,\"[__import__('os')]\",[]\n", "Support", 1},
		{"second row bad", csvHeader + "2024-01-01,1,1,1,1,1,LONG,[],[]\n2024-01-02,1,1,1,1,1,LONG,[],{1}\n", "Resistance", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.data))
			if !errors.Is(err, apperrors.ErrDataLoad) {
				t.Fatalf("Expected ErrDataLoad, got %v", err)
			}
			var de *apperrors.DataError
			if !errors.As(err, &de) {
				t.Fatalf("Expected DataError, got %T", err)
			}
			if de.Column != tt.column || de.Row != tt.row {
				t.Errorf("Expected row %d column %q, got row %d column %q", tt.row, tt.column, de.Row, de.Column)
			}
		})
	}
}

func TestLoadCSV_MissingFile(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	if !errors.Is(err, apperrors.ErrDataLoad) {
		t.Errorf("Expected ErrDataLoad, got %v", err)
	}
}

func TestLoadCSV_DuplicateDatesLaterWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup.csv")
	data := csvHeader +
		"2024-01-01,100,101,99,100,1000,LONG,[],[]\n" +
		"2024-01-01,100,130,99,120,5000,LONG,[],[]\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	ds, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("LoadCSV failed: %v", err)
	}
	if ds.Len() != 1 {
		t.Fatalf("Expected duplicates to collapse, got %d bars", ds.Len())
	}
	bar, ok := ds.At(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if !ok || bar.Close != 120 || bar.Volume != 5000 {
		t.Errorf("Expected the later record to win, got %+v", bar)
	}
	if len(ds.Warnings()) != 1 {
		t.Errorf("Expected one duplicate warning, got %v", ds.Warnings())
	}
}
