package util

import "time"

// NowUTC exposes time.Now for deterministic testing.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// LoadLocation resolves an IANA zone name, falling back to a fixed zone
// with the given offset when the tz database is unavailable.
func LoadLocation(name string, fallbackOffset time.Duration) *time.Location {
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	return time.FixedZone(name, int(fallbackOffset.Seconds()))
}
