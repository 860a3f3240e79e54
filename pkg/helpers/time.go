package helpers

import (
	"strconv"
	"time"
)

// UnixSeconds returns t as whole seconds since the epoch, the format of accounts.creation
// and accounts.premium_ends_at. It is 10 digits wide until the year 2286.
func UnixSeconds(t time.Time) int64 {
	return t.Unix()
}

// FromUnixSeconds is the inverse of UnixSeconds. The zero sentinel maps to the zero time.
func FromUnixSeconds(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// FormatUnix renders epoch seconds the way the portal shows dates (DD/MM/YYYY HH:mm).
// Returns "" for the zero sentinel.
func FormatUnix(sec int64) string {
	t := FromUnixSeconds(sec)
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006 15:04")
}

// Digits returns the number of decimal digits of a non-negative n.
func Digits(n int64) int {
	return len(strconv.FormatInt(n, 10))
}
