package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// PollErrorType categorizes a failed poll attempt.
type PollErrorType string

const (
	ErrTimeout           PollErrorType = "timeout"
	ErrConnectionRefused PollErrorType = "connection_refused"
	ErrHTTP              PollErrorType = "http_error"
	ErrParse             PollErrorType = "parse_error"
	ErrUnknown           PollErrorType = "unknown"
)

// PollError wraps a poll failure with its taxonomy type.
type PollError struct {
	Type PollErrorType
	Err  error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("[%s] %v", e.Type, e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}

// classifyError maps a transport or decode failure to the poll taxonomy.
func classifyError(err error) *PollError {
	var pe *PollError
	if errors.As(err, &pe) {
		return pe
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &PollError{Type: ErrTimeout, Err: err}
	case errors.Is(err, syscall.ECONNREFUSED):
		return &PollError{Type: ErrConnectionRefused, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &PollError{Type: ErrTimeout, Err: err}
	}

	return &PollError{Type: ErrUnknown, Err: err}
}
