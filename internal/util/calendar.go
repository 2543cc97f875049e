package util

import (
	"fmt"
	"time"
)

// Granularity names a calendar bucket size.
type Granularity string

const (
	Daily     Granularity = "daily"
	Weekly    Granularity = "weekly"
	Monthly   Granularity = "monthly"
	Quarterly Granularity = "quarterly"
	Yearly    Granularity = "yearly"
)

// PeriodKey returns a sortable identifier of the bucket containing t, e.g.
// "2024-W07" for weekly or "2024-Q3" for quarterly. Weeks follow ISO 8601.
func PeriodKey(t time.Time, g Granularity) string {
	switch g {
	case Weekly:
		y, w := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", y, w)
	case Monthly:
		return t.Format("2006-01")
	case Quarterly:
		return fmt.Sprintf("%04d-Q%d", t.Year(), (int(t.Month())-1)/3+1)
	case Yearly:
		return t.Format("2006")
	default:
		return t.Format("2006-01-02")
	}
}

// SamePeriod reports whether a and b fall in the same bucket.
func SamePeriod(a, b time.Time, g Granularity) bool {
	return PeriodKey(a, g) == PeriodKey(b, g)
}

// DaysBetween returns the number of calendar days from a to b, rounded to
// the nearest whole day.
func DaysBetween(a, b time.Time) float64 {
	d := b.Sub(a).Hours() / 24
	if d < 0 {
		return -float64(int64(-d + 0.5))
	}
	return float64(int64(d + 0.5))
}
