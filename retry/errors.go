package retry

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned when a retry sequence is cancelled by its caller,
// either through Task.Cancel or by cancelling the parent context
var ErrCancelled = fmt.Errorf("retry sequence cancelled")

type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

func (e *retryableError) Retryable() bool {
	return true
}

// Retryable marks err as transient, allowing the retry primitive to attempt the
// operation again. A nil error stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether any error in err's chain is marked as retryable
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
