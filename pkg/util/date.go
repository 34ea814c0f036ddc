package util

import (
	"strconv"
	"strings"
	"time"
)

// unixMilliCutoff separates epoch seconds from epoch milliseconds.
// 1e11 seconds is in the year 5138.
const unixMilliCutoff = 1e11

// UnixAuto converts an epoch value in seconds or milliseconds.
func UnixAuto(n int64) time.Time {
	if n > unixMilliCutoff {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}

// ParseTime accepts RFC3339, RFC3339Nano, and epoch seconds or milliseconds,
// optionally quoted. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	s = strings.Trim(strings.TrimSpace(s), `"`)
	if s == "" || s == "null" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		return UnixAuto(n), true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		if f > unixMilliCutoff {
			return time.UnixMilli(int64(f)), true
		}
		sec := int64(f)
		return time.Unix(sec, int64((f-float64(sec))*1e9)), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns def if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}
