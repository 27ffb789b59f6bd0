package crawler

import "time"

// Layouts accepted when reading persisted timestamps. Older state files were
// written without a zone offset.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// FormatTimestamp renders t the way state files store it. Values are
// normalized to UTC, so a round trip through ParseTimestamp keeps the instant
// but not t's Location; compare the results with time.Time.Equal.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp reads a persisted timestamp. Zone-less values are taken as
// UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
