package util

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// IsNullCell reports whether a CSV cell holds no value.
func IsNullCell(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nan", "null", "none", "na", "<na>":
		return true
	}
	return false
}

// ParseFloatCell parses a numeric cell. Null cells yield NaN.
func ParseFloatCell(s string) (float64, error) {
	if IsNullCell(s) {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// ParseFlagCell parses a boolean-ish cell ("1", "0.0", "True", "false").
// valid is false for null cells.
func ParseFlagCell(s string) (value, valid bool, err error) {
	if IsNullCell(s) {
		return false, false, nil
	}
	t := strings.ToLower(strings.TrimSpace(s))
	switch t {
	case "true", "t", "yes":
		return true, true, nil
	case "false", "f", "no":
		return false, true, nil
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return false, false, fmt.Errorf("not a flag: %q", s)
	}
	return f != 0, true, nil
}
