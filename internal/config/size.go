package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// ParseSize converts a human-readable size to bytes. SI ("10MB") and IEC
// ("10MiB") suffixes are accepted in any case; a bare number is bytes.
// Empty string and "0" return 0.
func ParseSize(s string) (int64, error) {
	return parseBytes(s, "")
}

// ParseBandwidth is ParseSize for a rate, with an optional "/s" suffix,
// e.g. "5MB/s".
func ParseBandwidth(s string) (int64, error) {
	return parseBytes(s, "/s")
}

func parseBytes(s, unit string) (int64, error) {
	original := s

	s = strings.TrimSpace(s)
	if unit != "" && len(s) >= len(unit) && strings.EqualFold(s[len(s)-len(unit):], unit) {
		s = strings.TrimSpace(s[:len(s)-len(unit)])
	}

	if s == "" || s == "0" {
		return 0, nil
	}

	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("invalid size %q: must be non-negative", original)
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", original, err)
	}

	if n > math.MaxInt64 {
		return 0, fmt.Errorf("invalid size %q: too large", original)
	}

	return int64(n), nil
}
