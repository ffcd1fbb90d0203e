package gateway

import (
	"errors"
	"fmt"

	"github.com/sony/gobreaker"

	"github.com/clinicscore/drug-advisor/internal/repo"
)

// Kind classifies gateway failures.
type Kind string

const (
	// KindService means the service answered with an error field or a non-success status.
	KindService Kind = "service"
	// KindTransport means no usable response arrived (network, timeout, cancellation).
	KindTransport Kind = "transport"
	// KindMalformed means the response decoded but did not have the documented shape.
	KindMalformed Kind = "malformed"
	// KindUnavailable means the circuit breaker rejected the call without sending it.
	KindUnavailable Kind = "unavailable"
)

// Error is the failure returned by both gateways. Message is clinician readable.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage returns the clinician-readable message.
func (e *Error) UserMessage() string { return e.Message }

// KindOf returns the kind of a gateway error, or "" when err is not one.
func KindOf(err error) Kind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return ""
}

// classify turns a client failure into a gateway Error using the fallback chain
// structured error field, raw body, then fallback.
func classify(err error, fallback string) *Error {
	msg := repo.DescribeError(err, fallback)
	var statusErr *repo.StatusError
	switch {
	case errors.As(err, &statusErr):
		return &Error{Kind: KindService, Message: msg, Err: err}
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &Error{Kind: KindUnavailable, Message: msg, Err: err}
	default:
		return &Error{Kind: KindTransport, Message: msg, Err: err}
	}
}
