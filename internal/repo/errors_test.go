package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sony/gobreaker"
)

func TestDescribeErrorFallbackChain(t *testing.T) {
	const fallback = "Scoring service failure."
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"errors field", &StatusError{Body: []byte(`{"errors": "Invalid field AGE"}`)}, "Invalid field AGE"},
		{"errors list", &StatusError{Body: []byte(`{"errors": [{"message": "a"}, {"message": "b"}]}`)}, "a; b"},
		{"error field", &StatusError{Body: []byte(`{"error": "quota exceeded"}`)}, "quota exceeded"},
		{"raw body", &StatusError{Body: []byte("Bad gateway\n")}, "Bad gateway"},
		{"empty body", &StatusError{}, fallback},
		{"wrapped", fmt.Errorf("score: %w", &StatusError{Body: []byte(`{"errors": "x"}`)}), "x"},
		{"network", errors.New("connection refused"), fallback},
		{"timeout", context.DeadlineExceeded, fallback + " The request timed out."},
		{"breaker", gobreaker.ErrOpenState, fallback + " The service is temporarily unavailable."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DescribeError(tc.err, fallback); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDescribeErrorTruncatesBody(t *testing.T) {
	body := strings.Repeat("x", 2*maxMessageLen)
	got := DescribeError(&StatusError{Body: []byte(body)}, "fallback")
	if len(got) != maxMessageLen {
		t.Fatalf("expected truncated message, got %d bytes", len(got))
	}
}

func TestErrorsTextObject(t *testing.T) {
	got := ErrorsText(json.RawMessage(`{ "code": 42 }`))
	if got != `{"code":42}` {
		t.Fatalf("unexpected text: %s", got)
	}
	if ErrorsText(json.RawMessage("null")) != "" {
		t.Fatalf("expected empty text for null")
	}
}
