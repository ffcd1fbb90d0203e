package utils

import (
	"errors"
	"fmt"
)

// AppError wraps an operation, human-facing message, and underlying error.
// Msg is safe to show to the clinician; Err is for logs.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// UserMessage returns the human-facing message carried by err, falling back to err.Error().
// Errors that implement UserMessage() string supply their own text.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var own interface{ UserMessage() string }
	if errors.As(err, &own) && own.UserMessage() != "" {
		return own.UserMessage()
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Msg != "" {
		return appErr.Msg
	}
	return err.Error()
}
