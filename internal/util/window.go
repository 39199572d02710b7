package util

import (
	"fmt"
	"time"
)

// InWindow returns true if now is within the configured backup window.
// Empty window values mean no restriction.
func InWindow(now time.Time, start, end, tz string) (bool, error) {
	if start == "" && end == "" {
		return true, nil
	}
	loc := now.Location()
	if tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return false, fmt.Errorf("invalid timezone: %w", err)
		}
	}

	local := now.In(loc)
	atMinute := func(hhmm string) (time.Time, error) {
		parsed, err := time.ParseInLocation("15:04", hhmm, loc)
		if err != nil {
			return time.Time{}, err
		}
		return time.Date(local.Year(), local.Month(), local.Day(), parsed.Hour(), parsed.Minute(), 0, 0, loc), nil
	}
	current := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), local.Minute(), 0, 0, loc)

	var startToday, endToday time.Time
	var err error
	if start != "" {
		if startToday, err = atMinute(start); err != nil {
			return false, fmt.Errorf("invalid window start: %w", err)
		}
	}
	if end != "" {
		if endToday, err = atMinute(end); err != nil {
			return false, fmt.Errorf("invalid window end: %w", err)
		}
	}

	switch {
	case end == "":
		return !current.Before(startToday), nil
	case start == "":
		return !current.After(endToday), nil
	case endToday.After(startToday):
		return !current.Before(startToday) && !current.After(endToday), nil
	default:
		// Window wraps past midnight.
		return !current.Before(startToday) || !current.After(endToday), nil
	}
}
