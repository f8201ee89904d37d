package processor

import (
	"strconv"
	"strings"
	"time"
)

// timestampLayouts are the date formats seen in feed last_updated fields and stored values
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseTimestamp reads a timestamp in any known layout. Zone-less values are UTC.
// Pure digit strings are unix seconds.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && len(s) >= 9 {
		return time.Unix(secs, 0).UTC(), true
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// NormalizeTimestamp returns the RFC3339 UTC form of s, or s unchanged when unparseable
func NormalizeTimestamp(s string) string {
	if t, ok := ParseTimestamp(s); ok {
		return t.Format(time.RFC3339)
	}
	return strings.TrimSpace(s)
}
