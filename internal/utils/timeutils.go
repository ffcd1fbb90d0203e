package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTimestamp accepts RFC3339 (with or without fractional seconds) or epoch milliseconds.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	return time.Time{}, fmt.Errorf("parse time %q: unsupported format", value)
}

// FormatDisplay renders a timestamp string for display in loc using layout.
// Unparseable values are returned unchanged.
func FormatDisplay(value, layout string, loc *time.Location) string {
	t, err := ParseTimestamp(value)
	if err != nil {
		return value
	}
	if loc == nil {
		loc = time.Local
	}
	if layout == "" {
		layout = time.DateTime
	}
	return t.In(loc).Format(layout)
}
