// Package duration provides human-friendly duration parsing.
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Common duration constants for human-friendly units.
const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day  // Approximate
	Year  = 365 * Day // Approximate
)

// unitMultipliers maps human-friendly unit suffixes to their duration values.
var unitMultipliers = map[string]time.Duration{
	"d": Day,
	"w": Week,
	"M": Month, // Capital M for months to distinguish from minutes
	"y": Year,
}

// durationPattern matches duration components like "1y", "6M", "2w", "3d".
var durationPattern = regexp.MustCompile(`(\d+)([ywMd])`)

// Parse extends time.ParseDuration to support human-friendly units:
//   - d (days) = 24h
//   - w (weeks) = 7d
//   - M (months) = 30d (approximate)
//   - y (years) = 365d (approximate)
//
// Standard Go duration units (ns, us, ms, s, m, h) are also supported, and
// compound durations like "1d12h" or "2w3d" work as expected. Config fields
// such as the certificate renewal window ("30d") and probe intervals ("2s")
// go through here.
//
// Special case: "0" returns 0 duration.
func Parse(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)

	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}

	if s == "0" {
		return 0, nil
	}

	if !containsHumanUnits(s) {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w (supported units: ns, us, ms, s, m, h, d, w, M, y)", s, err)
		}
		return d, nil
	}

	return parseHumanDuration(s)
}

// containsHumanUnits checks if the string contains any human-friendly unit suffixes.
func containsHumanUnits(s string) bool {
	for unit := range unitMultipliers {
		if strings.Contains(s, unit) {
			return true
		}
	}
	return false
}

// parseHumanDuration parses a duration string containing human-friendly units.
// The human components are summed first, then whatever remains is handed to
// time.ParseDuration so mixed forms like "1d12h" resolve correctly.
func parseHumanDuration(s string) (time.Duration, error) {
	var total time.Duration

	matches := durationPattern.FindAllStringSubmatch(s, -1)
	for _, match := range matches {
		value, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration value %q in %q", match[1], s)
		}
		total += time.Duration(value) * unitMultipliers[match[2]]
	}

	remaining := strings.TrimSpace(durationPattern.ReplaceAllString(s, ""))
	if remaining != "" {
		d, err := time.ParseDuration(remaining)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w (supported units: ns, us, ms, s, m, h, d, w, M, y)", s, err)
		}
		total += d
	}

	return total, nil
}
