// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"math"
	"strconv"
)

// FormatNumber renders a float in its shortest exact decimal form.
// NaN renders as "NaN"; integral values have no fractional part.
func FormatNumber(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	if math.IsNaN(value) {
		return "NaN"
	}
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}
