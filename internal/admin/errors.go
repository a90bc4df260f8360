package admin

import (
	"errors"
	"fmt"
)

var (
	// ErrIntervalChangeWhileEnabled asks the operator to stop auto-check before
	// changing its interval.
	ErrIntervalChangeWhileEnabled = errors.New("stop auto-check and start it again to apply an interval change")

	ErrKeyNotFound = errors.New("api key not found")
)

// ValidationError rejects a settings update before it reaches the schedulers.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
