package store

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// numberLiteral matches a plain decimal literal: no names, operators or hex forms.
var numberLiteral = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// ParseLevels parses a serialized list of price levels such as "[180.2, 182.5]".
// Only literal lists or tuples of numbers are accepted; text is never evaluated.
// Empty, "nan", "None" and "null" denote an absent value and yield an empty slice.
func ParseLevels(text string) ([]float64, error) {
	s := strings.TrimSpace(text)
	switch s {
	case "", "nan", "NaN", "None", "null":
		return []float64{}, nil
	}

	if len(s) < 2 {
		return nil, fmt.Errorf("not a list literal: %q", text)
	}
	open, close := s[0], s[len(s)-1]
	if !(open == '[' && close == ']') && !(open == '(' && close == ')') {
		return nil, fmt.Errorf("not a list literal: %q", text)
	}

	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return []float64{}, nil
	}

	parts := strings.Split(inner, ",")
	// A single trailing comma is valid literal syntax: "[1.5,]".
	if strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}

	levels := make([]float64, 0, len(parts))
	for i, p := range parts {
		tok := strings.TrimSpace(p)
		if !numberLiteral.MatchString(tok) {
			return nil, fmt.Errorf("element %d is not a number literal: %q", i, tok)
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil || math.IsInf(v, 0) {
			return nil, fmt.Errorf("element %d out of range: %q", i, tok)
		}
		levels = append(levels, v)
	}

	return levels, nil
}

// FormatLevels serializes levels in a form ParseLevels accepts.
func FormatLevels(levels []float64) string {
	parts := make([]string, len(levels))
	for i, v := range levels {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
