// Package stringutil provides string and timestamp helpers shared across
// the application.
package stringutil

import (
	"path/filepath"
	"strings"
	"time"
)

const (
	// TimestampFormat is the wall-clock format used for envelope stamps and
	// persistence rows. Lexicographic order equals chronological order, so
	// date-prefix filters are plain string comparisons.
	TimestampFormat = "2006-01-02 15:04:05.000000"

	// DateFormat is the civil-day prefix of TimestampFormat.
	DateFormat = "2006-01-02"
)

// FormatTime returns t in TimestampFormat, or an empty string for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimestampFormat)
}

// ParseTime parses a value in TimestampFormat in the local time zone.
func ParseTime(val string) (time.Time, error) {
	return time.ParseInLocation(TimestampFormat, val, time.Local)
}

// FormatDate returns the civil-day prefix of t.
func FormatDate(t time.Time) string {
	return t.Format(DateFormat)
}

// StartOfDay returns midnight of t's civil day in t's location.
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// TruncString returns a string truncated to the given max length.
func TruncString(val string, max int) string {
	if len(val) <= max {
		return val
	}
	return val[:max]
}

// TaskLogName derives the log file name for a task: the lowercased name
// with spaces replaced by underscores, plus a .log extension.
func TaskLogName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_") + ".log"
}

// CategoryDisplay converts a task config file name into its display
// category: extension stripped, underscores to spaces, uppercased.
func CategoryDisplay(configSource string) string {
	base := strings.TrimSuffix(configSource, filepath.Ext(configSource))
	return strings.ToUpper(strings.ReplaceAll(base, "_", " "))
}
