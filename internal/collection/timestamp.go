package collection

import (
	"fmt"
	"strings"
	"time"
)

// layouts tried in order once a trailing Z has been rewritten to +00:00.
// Layouts without an offset are read as UTC.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp. Every ordering decision goes
// through here; the only failure is ErrInvalidTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	v := strings.TrimSpace(s)
	if strings.HasSuffix(v, "Z") || strings.HasSuffix(v, "z") {
		v = v[:len(v)-1] + "+00:00"
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// FormatServerTime renders t the way serverTime is reported to clients.
func FormatServerTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
