package training

import (
	"errors"
	"fmt"
)

// ErrInvalidStatus is returned when a status is not one of the known values.
var ErrInvalidStatus = errors.New("invalid job status")

// ValidationError reports a submitted field that could not be used.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
