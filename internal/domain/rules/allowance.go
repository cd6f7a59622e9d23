package rules

import "time"

// DayStart is local midnight of now's day in loc (UTC when loc is nil).
func DayStart(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// NextResetAt is the next local midnight after now, in UTC.
func NextResetAt(now time.Time, loc *time.Location) time.Time {
	return DayStart(now, loc).AddDate(0, 0, 1).UTC()
}
