package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrStopped is the outcome of a run cancelled by a stop request
	ErrStopped = errors.New("stopped by user")
	// ErrWriterClosed is returned by Enqueue after Close
	ErrWriterClosed = errors.New("writer closed")
	// ErrInvalidRecord wraps every validation failure
	ErrInvalidRecord = errors.New("invalid record")
)

// ValidationError describes why a candidate record was rejected
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRecord
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
