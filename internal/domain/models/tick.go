package models

import "time"

// Tick is a single market observation fed to the fallback detector.
type Tick struct {
	Symbol    string
	Price     float64 // > 0
	Volume    int64   // >= 0
	Timestamp time.Time
}

// UnixSeconds converts t to fractional seconds since the epoch.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// FromUnixSeconds converts fractional epoch seconds to a time.
func FromUnixSeconds(s float64) time.Time {
	sec := int64(s)
	nsec := int64((s - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
