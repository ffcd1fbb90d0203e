package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"

	"github.com/sony/gobreaker"
)

const maxMessageLen = 512

// DescribeError extracts the most specific human-readable message from a failed
// environment call: the structured errors field, then the error field, then the
// raw body, then fallback.
func DescribeError(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if msg := messageFromBody(statusErr.Body); msg != "" {
			return msg
		}
		return fallback
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fallback + " The service is temporarily unavailable."
	}
	if IsTimeout(err) {
		return fallback + " The request timed out."
	}
	return fallback
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ErrorsText renders a structured errors value as text.
func ErrorsText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &list); err == nil {
		msgs := make([]string, 0, len(list))
		for _, item := range list {
			if item.Message != "" {
				msgs = append(msgs, item.Message)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err == nil {
		return compact.String()
	}
	return string(raw)
}

func messageFromBody(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}
	var structured struct {
		Errors json.RawMessage `json:"errors"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &structured); err == nil {
		if msg := ErrorsText(structured.Errors); msg != "" {
			return msg
		}
		if msg := ErrorsText(structured.Error); msg != "" {
			return msg
		}
	}
	text := string(body)
	if len(text) > maxMessageLen {
		text = text[:maxMessageLen]
	}
	return text
}
