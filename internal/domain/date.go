package domain

import "time"

// DateLayout is the storage and export format for civil dates
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar date
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole calendar days from 'from' to 'to'.
// Negative when 'to' precedes 'from'.
func DaysBetween(from, to time.Time) int {
	return int(Day(to).Sub(Day(from)).Hours() / 24)
}

// FormatDate renders a civil date as YYYY-MM-DD
func FormatDate(t time.Time) string {
	return Day(t).Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD civil date in UTC
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
