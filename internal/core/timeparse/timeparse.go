// Package timeparse converts the timestamp shapes the vendor API emits into UTC instants
package timeparse

import (
	"encoding/json"
	"strings"
	"time"

	perr "plexingest/internal/platform/errors"
)

// layouts tried in order for string inputs. The vendor mixes full RFC3339,
// second precision without a zone, and bare dates
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Parse converts v into a UTC time. Accepted shapes: time.Time, numeric
// (UNIX seconds), and ISO-8601 strings. Anything else fails with an
// unsupported timestamp error
func Parse(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return ParseString(t)
	case float64:
		return time.Unix(int64(t), 0).UTC(), nil
	case int:
		return time.Unix(int64(t), 0).UTC(), nil
	case int64:
		return time.Unix(t, 0).UTC(), nil
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return time.Unix(int64(f), 0).UTC(), nil
		}
		return time.Time{}, perr.UnsupportedTimestampf("timestamp number %q", t.String())
	default:
		return time.Time{}, perr.UnsupportedTimestampf("timestamp value of type %T", v)
	}
}

// ParseString parses an ISO-8601 string, tolerating a trailing Z or an
// explicit offset, and returns the instant in UTC
func ParseString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, perr.UnsupportedTimestampf("empty timestamp")
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, perr.UnsupportedTimestampf("timestamp string %q", s)
}

// Format renders t as ISO-8601 UTC, the only text form rows carry
func Format(t time.Time) string { return t.UTC().Format(time.RFC3339) }
