// Package analytics derives time-bucketed spend reports from the receipt log.
//
// Calendar boundaries are computed in one configured timezone. Purchase dates
// are civil dates as printed on the receipt and are never shifted between zones.
package analytics

import (
	"fmt"
	"strings"
	"time"
)

// Window is the length of a reporting period
type Window string

const (
	Day   Window = "day"
	Week  Window = "week"
	Month Window = "month"
	Year  Window = "year"
)

const dateLayout = "2006-01-02"

// ParseWindow parses a window name
func ParseWindow(s string) (Window, error) {
	switch w := Window(strings.ToLower(strings.TrimSpace(s))); w {
	case Day, Week, Month, Year:
		return w, nil
	}
	return "", fmt.Errorf("unknown window %q", s)
}

// civil truncates t to its calendar date in loc, expressed as midnight UTC
func civil(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// purchaseDay is the civil date of a purchase
func purchaseDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Range returns the first and last calendar day of the window containing asOf.
// Weeks are ISO weeks, Monday to Sunday.
func Range(w Window, asOf time.Time, loc *time.Location) (time.Time, time.Time) {
	day := civil(asOf, loc)
	switch w {
	case Week:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 6)
	case Month:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, -1)
	case Year:
		start := time.Date(day.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, -1)
	}
	return day, day
}

// Days returns the number of calendar days in a range, both ends included
func Days(start, end time.Time) int {
	return int(end.Sub(start)/(24*time.Hour)) + 1
}
