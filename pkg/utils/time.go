package utils

import "time"

// Clock returns the current time; replaced in tests.
type Clock func() time.Time

// TimestampLayout is fixed width so stored timestamps sort lexically.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// UTCNow returns the current time in UTC truncated to microseconds, the
// precision every storage backend keeps.
func UTCNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// FormatTimestamp renders t for storage
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a stored timestamp
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
