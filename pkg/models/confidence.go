package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseConfidenceLevel parses a two-sided interval level from p-notation
// (p95), percent notation (95%) or decimal notation (0.95).
//
// Examples:
//   - "p80" → 0.80
//   - "95%" → 0.95
//   - "0.99" → 0.99
//
// The level must lie strictly between 0 and 1.
func ParseConfidenceLevel(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty confidence level")
	}

	var (
		level float64
		err   error
	)
	switch {
	case strings.HasPrefix(strings.ToLower(s), "p"):
		level, err = parsePercent(s[1:])
	case strings.HasSuffix(s, "%"):
		level, err = parsePercent(strings.TrimSuffix(s, "%"))
	default:
		level, err = strconv.ParseFloat(s, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid confidence level %q: %w", s, err)
	}
	if err := ValidateConfidenceLevel(level); err != nil {
		return 0, err
	}
	return level, nil
}

func parsePercent(s string) (float64, error) {
	pct, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	return pct / 100.0, nil
}

// ValidateConfidenceLevel rejects levels outside (0, 1).
func ValidateConfidenceLevel(level float64) error {
	if !(level > 0 && level < 1) {
		return fmt.Errorf("confidence level %v out of range (0, 1)", level)
	}
	return nil
}

// FormatConfidenceLevel formats a level as p-notation for display.
//
// Examples:
//   - 0.95 → "p95"
//   - 0.975 → "p97.5"
func FormatConfidenceLevel(level float64) string {
	pct := level * 100
	if rounded := float64(int(pct + 0.5)); abs(pct-rounded) < 1e-9 {
		return fmt.Sprintf("p%d", int(rounded))
	}
	return "p" + strconv.FormatFloat(pct, 'f', -1, 64)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
