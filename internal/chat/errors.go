package chat

import (
	"errors"
	"fmt"
)

// ErrSendFailed marks a failure to persist the sender's own message. The
// caller may retry.
var ErrSendFailed = errors.New("chat: send failed")

type ErrorCode string

const (
	ErrorCodeValidation   ErrorCode = "validation_error"
	ErrorCodeUnauthorized ErrorCode = "unauthorized"
	ErrorCodeForbidden    ErrorCode = "forbidden"
	ErrorCodeNotFound     ErrorCode = "not_found"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func sendFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrSendFailed, err)
}
