package retrieval

import (
	"errors"
	"fmt"
)

// ErrUnavailable matches every *UnavailableError.
var ErrUnavailable = errors.New("retrieval unavailable")

// UnavailableError reports that the reference index cannot be used.
type UnavailableError struct {
	Path   string
	Reason string
	Err    error
}

func (e *UnavailableError) Error() string {
	msg := "retrieval unavailable"
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}
