package services

import "time"

// timestamp normalises t to what both backends store losslessly.
func timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// monotonic returns now, or prev when the clock has stepped backwards, so
// an updated timestamp never moves into the past.
func monotonic(now, prev time.Time) time.Time {
	now = timestamp(now)
	if now.Before(prev) {
		return prev
	}
	return now
}
