package mailbox

import (
	"errors"
	"fmt"
)

// ErrNoUserAddress is returned by the conversation tools when the mailbox
// owner cannot be determined.
var ErrNoUserAddress = errors.New("Could not determine your email address. Cannot analyze conversations.")

// ValidationError reports an argument rejected before any backend call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing folder, ordinal or backend item.
type NotFoundError struct {
	Message string
	Err     error
}

func (e *NotFoundError) Error() string { return e.Message }

func (e *NotFoundError) Unwrap() error { return e.Err }

func notFound(err error, format string, args ...interface{}) error {
	return &NotFoundError{Message: fmt.Sprintf(format, args...), Err: err}
}
