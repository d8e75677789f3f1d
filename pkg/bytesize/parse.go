// Package bytesize provides human-friendly byte size parsing and formatting.
package bytesize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// units, largest first so "B" never shadows "KB" during suffix matching.
var units = []struct {
	suffix     string
	multiplier int64
}{
	{"TB", 1 << 40},
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// Parse parses a human-friendly byte size string.
//
// Supported units: B, KB, MB, GB, TB (case-insensitive, 1024-based).
// Returns int64 so the result plugs into http.MaxBytesReader and friends.
//
// Examples:
//
//	Parse("1MB")    // 1048576 bytes, a sane webhook body cap
//	Parse("1.5GB")  // 1610612736 bytes
//	Parse("100KB")  // 102400 bytes
func Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	s = strings.ToUpper(s)

	var unitMultiplier int64
	var valueStr string
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			unitMultiplier = u.multiplier
			valueStr = strings.TrimSuffix(s, u.suffix)
			break
		}
	}

	if unitMultiplier == 0 {
		return 0, fmt.Errorf("invalid size %q: missing unit (supported: B, KB, MB, GB, TB)", s)
	}

	valueStr = strings.TrimSpace(valueStr)
	if valueStr == "" {
		return 0, fmt.Errorf("invalid size %q: missing numeric value", s)
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value %q in %q: %w", valueStr, s, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("invalid size %q: negative value not allowed", s)
	}

	result := value * float64(unitMultiplier)
	if result > math.MaxInt64 {
		return 0, fmt.Errorf("size %q exceeds maximum allowed value (9.2 EB)", s)
	}

	return int64(result), nil
}

// Format renders a byte count with the largest unit that keeps the value
// readable, e.g. 1536 -> "1.5KB", 52428800 -> "50MB". Used for image sizes
// in listings and deploy output.
func Format(n int64) string {
	if n < 0 {
		return fmt.Sprintf("%dB", n)
	}
	for _, u := range units {
		if n >= u.multiplier && u.multiplier > 1 {
			value := float64(n) / float64(u.multiplier)
			if value == math.Trunc(value) {
				return fmt.Sprintf("%d%s", int64(value), u.suffix)
			}
			return fmt.Sprintf("%.1f%s", value, u.suffix)
		}
	}
	return fmt.Sprintf("%dB", n)
}
