package store

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestParseLevels(t *testing.T) {
	tests := []struct {
		in      string
		want    []float64
		wantErr bool
	}{
		{"[]", []float64{}, false},
		{"", []float64{}, false},
		{"nan", []float64{}, false},
		{"None", []float64{}, false},
		{"[180.2, 182.5]", []float64{180.2, 182.5}, false},
		{"(1, 2,)", []float64{1, 2}, false},
		{"[ -1.5e2 , .5 ]", []float64{-150, 0.5}, false},
		{"[1.5,]", []float64{1.5}, false},
		{"[1,,2]", nil, true},
		{"[,]", nil, true},
		{"180.2", nil, true},
		{"[1, 2)", nil, true},
		{"[inf]", nil, true},
		{"[1e999]", nil, true},
		{"[0x10]", nil, true},
		{"[1+1]", nil, true},
		{"[__import__('os').system('x')]", nil, true},
		{"[[1]]", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevels(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseLevels(%q) expected error, got %v", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLevels(%q) unexpected error: %v", tt.in, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseLevels(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ParseLevels(%q)[%d] = %v, want %v", tt.in, i, got[i], tt.want[i])
				}
			}
		})
	}
}

// Feature: ohlcv-analyst, Property 3: Level lists survive format and parse
//
// Property: For any finite levels, ParseLevels(FormatLevels(levels)) returns them unchanged.
func TestProperty_LevelsFormatParse(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("format then parse preserves levels", prop.ForAll(
		func(levels []float64) bool {
			got, err := ParseLevels(FormatLevels(levels))
			if err != nil || len(got) != len(levels) {
				return false
			}
			for i := range levels {
				if got[i] != levels[i] && !(math.IsNaN(got[i]) && math.IsNaN(levels[i])) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(-1e6, 1e6)),
	))

	properties.TestingRun(t)
}
