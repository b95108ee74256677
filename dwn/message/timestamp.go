package message

import (
	"errors"
	"fmt"
	"time"
)

// timestampLayout is ISO-8601 UTC with microsecond precision
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// ErrInvalidTimestamp is returned for malformed strings or non-UTC offsets.
var ErrInvalidTimestamp = errors.New("message: invalid timestamp")

// ParseTimestamp validates and parses s. Non-UTC offsets (anything other
// than a literal trailing "Z") are rejected even though time.Parse would
// otherwise accept "+00:00".
func ParseTimestamp(s string) (time.Time, error) {
	if len(s) == 0 || s[len(s)-1] != 'Z' {
		return time.Time{}, fmt.Errorf("%w: %q is not UTC (\"Z\") offset", ErrInvalidTimestamp, s)
	}
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %s", ErrInvalidTimestamp, s, err)
	}
	return t, nil
}

// FormatTimestamp renders t in the canonical wire format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// CompareTimestamps returns -1, 0, or 1 as a's instant is before, equal to,
// or after b's, parsing both. A parse failure on either side sorts it as if
// it were the zero time, so a validator bug never panics a live query.
func CompareTimestamps(a, b string) int {
	ta, errA := ParseTimestamp(a)
	tb, errB := ParseTimestamp(b)
	if errA != nil {
		ta = time.Time{}
	}
	if errB != nil {
		tb = time.Time{}
	}
	switch {
	case ta.Before(tb):
		return -1
	case ta.After(tb):
		return 1
	default:
		return 0
	}
}
