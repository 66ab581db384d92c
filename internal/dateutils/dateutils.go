// Package dateutils parses the date and time columns found in bank exports.
package dateutils

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Common date layouts seen in UK and EU bank exports
const (
	DateLayoutISO      = "2006-01-02"
	DateLayoutUK       = "02/01/2006"
	DateLayoutEuropean = "02.01.2006"
	DateLayoutFull     = "2006-01-02 15:04:05"
	DateLayoutMonth    = "02 Jan 2006"
	TimeLayout         = "15:04:05"
	TimeLayoutShort    = "15:04"
)

// DefaultTimeOfDay is applied when a source only reports a calendar date.
const DefaultTimeOfDay = 0 * time.Hour

// DateFormats are tried in order when no layout hint is given. Day-first layouts
// precede month-first ones: every supported source is UK or EU.
var DateFormats = []string{
	time.RFC3339,
	DateLayoutFull,
	"2006-01-02T15:04:05",
	DateLayoutISO,
	DateLayoutUK,
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
	DateLayoutEuropean,
	"02-01-2006",
	DateLayoutMonth,
	"2 Jan 2006",
	"2 January 2006",
}

// TimeFormats are tried when parsing a separate time-of-day column.
var TimeFormats = []string{TimeLayout, TimeLayoutShort, "15:04:05.000"}

var spaceRe = regexp.MustCompile(`\s+`)

// CleanDateString trims and collapses whitespace.
func CleanDateString(s string) string {
	return spaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
}

// ParseDate parses s as a UTC timestamp. A non-empty hint is tried first.
// The returned layout is the one that matched.
func ParseDate(s, hint string) (time.Time, string, error) {
	s = CleanDateString(s)
	if s == "" {
		return time.Time{}, "", fmt.Errorf("empty date")
	}

	layouts := DateFormats
	if hint != "" {
		layouts = append([]string{hint}, DateFormats...)
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), layout, nil
		}
	}
	return time.Time{}, "", fmt.Errorf("unable to parse date: %s", s)
}

// HasClock reports whether a layout carries a time-of-day component.
func HasClock(layout string) bool {
	return strings.Contains(layout, "15")
}

// ParseTimeOfDay parses a "15:04[:05]" value into an offset from midnight.
func ParseTimeOfDay(s string) (time.Duration, error) {
	s = CleanDateString(s)
	for _, layout := range TimeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second +
				time.Duration(t.Nanosecond()), nil
		}
	}
	return 0, fmt.Errorf("unable to parse time of day: %s", s)
}

// CombineDateTime places the calendar day of date at the given offset from midnight, in UTC.
func CombineDateTime(date time.Time, timeOfDay time.Duration) time.Time {
	d := date.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC).Add(timeOfDay)
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	return CombineDateTime(t, 0)
}

// DaysBetween returns the whole days from a to b, ignoring the clock.
func DaysBetween(a, b time.Time) int {
	return int(StartOfDay(b).Sub(StartOfDay(a)).Hours() / 24)
}
