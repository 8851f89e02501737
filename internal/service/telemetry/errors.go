package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidOperation is returned when the agent ID or operation name is empty
var ErrInvalidOperation = errors.New("agent ID and operation are required")

// PanicError wraps a value recovered from a panicking operation
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// ErrorType implements the classification hook
func (e *PanicError) ErrorType() string {
	return "panic"
}

// typedError lets errors choose the error_type recorded for them
type typedError interface {
	ErrorType() string
}

// ClassifyError returns the error_type stored for a failed operation
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	var typed typedError
	if errors.As(err, &typed) {
		if t := typed.ErrorType(); t != "" {
			return t
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}

	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
