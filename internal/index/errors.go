package index

import (
	"errors"
	"fmt"
	"time"
)

// StorageError reports a remote failure: a non-success status, an
// unreadable response, or an unreachable service.
type StorageError struct {
	Op string
	// StatusCode is the HTTP status for HTTP backends and the gRPC code for
	// gRPC backends. Zero means no response was received.
	StatusCode int
	// Body is the remote-provided error detail.
	Body string
	Err  error
}

func (e *StorageError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("index %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("index %s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("index %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("index %s: storage failure", e.Op)
	}
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// TimeoutError reports a call that got no response within its timeout.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("index %s: no response within %s", e.Op, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsTimeout reports whether err wraps a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
