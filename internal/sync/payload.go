package sync

import (
	"math"
	"strconv"
	"time"
)

// scalarString renders a payload scalar as a string. JSON numbers arrive as
// float64, so integral values are printed without a decimal point.
func scalarString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		if s == math.Trunc(s) && math.Abs(s) < 1e15 {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		return ""
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// intOrZero returns the payload value as an int when it carries one, else 0.
func intOrZero(v any) int {
	switch n := v.(type) {
	case float64:
		if n == math.Trunc(n) {
			return int(n)
		}
	case int:
		return n
	case int64:
		return int(n)
	}
	return 0
}

// coerceTimestamp turns the marketplace's assorted timestamp shapes (unix
// seconds, ISO-8601 strings, numeric strings) into unix milliseconds.
// Returns 0 when the value cannot be interpreted; callers substitute now.
func coerceTimestamp(v any) int64 {
	switch ts := v.(type) {
	case float64:
		return secondsToMillis(ts)
	case int:
		return secondsToMillis(float64(ts))
	case int64:
		return secondsToMillis(float64(ts))
	case string:
		if ts == "" {
			return 0
		}
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			return t.UnixMilli()
		}
		if t, err := time.Parse("2006-01-02T15:04:05", ts); err == nil {
			return t.UTC().UnixMilli()
		}
		if n, err := strconv.ParseFloat(ts, 64); err == nil {
			return secondsToMillis(n)
		}
	}
	return 0
}

func secondsToMillis(n float64) int64 {
	if n <= 0 {
		return 0
	}
	// Values past the year 33658 in seconds are already milliseconds.
	if n > 1e12 {
		return int64(n)
	}
	return int64(n * 1000)
}
