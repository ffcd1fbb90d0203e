package utils

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp("2017-05-04T10:11:12.345Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UnixMilli() != 1493892672345 {
		t.Fatalf("unexpected time: %v", got)
	}

	epoch, err := ParseTimestamp("1493892672345")
	if err != nil || !epoch.Equal(got) {
		t.Fatalf("expected epoch millis to parse to the same instant, got %v (%v)", epoch, err)
	}

	if _, err := ParseTimestamp(""); err == nil {
		t.Fatalf("expected error for empty value")
	}
}

func TestFormatDisplay(t *testing.T) {
	got := FormatDisplay("2017-05-04T15:11:12Z", "1/2/2006, 3:04:05 PM", time.UTC)
	if got != "5/4/2017, 3:11:12 PM" {
		t.Fatalf("unexpected display value: %s", got)
	}
	if raw := FormatDisplay("yesterday", "", time.UTC); raw != "yesterday" {
		t.Fatalf("expected unparseable value to pass through, got %s", raw)
	}
}
