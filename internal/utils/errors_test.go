package utils

import (
	"errors"
	"fmt"
	"testing"
)

func TestUserMessage(t *testing.T) {
	base := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("wrapped: %w", NewAppError("score", "Scoring service failure.", base))
	if got := UserMessage(err); got != "Scoring service failure." {
		t.Fatalf("unexpected message: %s", got)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected AppError to unwrap to the cause")
	}
	if got := UserMessage(base); got != base.Error() {
		t.Fatalf("unexpected fallback message: %s", got)
	}
}

type ownMessage struct{}

func (ownMessage) Error() string       { return "internal detail" }
func (ownMessage) UserMessage() string { return "Try again later." }

func TestUserMessagePrefersOwnText(t *testing.T) {
	err := fmt.Errorf("score: %w", ownMessage{})
	if got := UserMessage(err); got != "Try again later." {
		t.Fatalf("unexpected message: %s", got)
	}
}
