// README: Order error taxonomy; sentinels plus structured transition and validation errors.
package order

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrAlreadyAssigned   = errors.New("order already assigned")
	ErrOrderNotPayable   = errors.New("order not payable")
	ErrConflict          = errors.New("order state conflict")
	ErrForbidden         = errors.New("not allowed for this actor")
	ErrValidation        = errors.New("validation failed")
)

// TransitionError describes a rejected transition: where the order was, what
// was attempted and which precondition failed.
type TransitionError struct {
	From   Status
	Event  EventKind
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s from %s: %s", e.Event, e.From, e.Reason)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
