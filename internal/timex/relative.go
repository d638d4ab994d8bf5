// Package timex rewrites absolute timestamps in model output into
// human-friendly relative phrases.
package timex

import (
	"fmt"
	"regexp"
	"time"
)

// iso8601Pattern matches ISO 8601 timestamps with optional fractional
// seconds and optional zone offset (Z, +HH:MM or +HHMM).
var iso8601Pattern = regexp.MustCompile(
	`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`)

// layouts tried in order when parsing a matched timestamp. Naive
// timestamps (no zone) are interpreted as UTC.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ReplaceISO8601WithRelative replaces every ISO 8601 timestamp in text with
// its difference from the current UTC time ("5 minutes ago"). Matches that
// cannot be parsed are replaced with "Invalid timestamp".
func ReplaceISO8601WithRelative(text string) string {
	return replaceRelativeAt(text, time.Now().UTC())
}

func replaceRelativeAt(text string, now time.Time) string {
	return iso8601Pattern.ReplaceAllStringFunc(text, func(ts string) string {
		dt, err := parseISO8601(ts)
		if err != nil {
			return "Invalid timestamp"
		}
		return relative(now.Sub(dt))
	})
}

func parseISO8601(ts string) (time.Time, error) {
	for _, layout := range layouts {
		if dt, err := time.ParseInLocation(layout, ts, time.UTC); err == nil {
			return dt, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", ts)
}

func relative(delta time.Duration) string {
	seconds := int(delta.Seconds())
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d seconds ago", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%d minutes ago", seconds/60)
	case seconds < 86400:
		return fmt.Sprintf("%d hours ago", seconds/3600)
	default:
		return fmt.Sprintf("%d days ago", seconds/86400)
	}
}
