package auth

import (
	"math"
	"strconv"
	"time"
)

// Lifetime defaults applied when configuration leaves them empty.
const (
	DefaultAccessLifetime  = "15m"
	DefaultRefreshLifetime = "7d"

	// FallbackLifetime is returned for any lifetime string that cannot be parsed.
	FallbackLifetime = 15 * time.Minute
)

// ParseLifetime parses a token lifetime of the form <integer><unit> where unit
// is one of s, m, h or d. Unparseable, non-positive or overflowing values yield
// FallbackLifetime and false so the caller can warn about it.
func ParseLifetime(s string) (time.Duration, bool) {
	if len(s) < 2 { //nolint:mnd // at least one digit and a unit
		return FallbackLifetime, false
	}

	digits := s[:len(s)-1]
	if digits[0] < '0' || digits[0] > '9' {
		return FallbackLifetime, false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n <= 0 {
		return FallbackLifetime, false
	}

	var unit time.Duration
	switch s[len(s)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour //nolint:mnd // hours per day
	default:
		return FallbackLifetime, false
	}

	if n > math.MaxInt64/int64(unit) {
		return FallbackLifetime, false
	}
	return time.Duration(n) * unit, true
}
