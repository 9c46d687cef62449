// README: Dispatch error taxonomy surfaced verbatim to the boundary layer.
package ride

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrConflict          = errors.New("ride state conflict")
	ErrAlreadyTaken      = errors.New("ride already taken")
	ErrNotFound          = errors.New("ride not found")
	ErrTooEarly          = errors.New("too early to start ride")
	ErrInvalidState      = errors.New("invalid ride state")
	ErrNotAvailable      = errors.New("location not available")
	ErrBadRequest        = errors.New("bad request")
	ErrDriverNotFound    = &notFoundError{what: "driver"}
	ErrDriverNotEligible = errors.New("driver not eligible")
	ErrNotAssignedDriver = errors.New("driver is not assigned to ride")

	// ErrVersionConflict is returned by a Store when the expected version no
	// longer matches. The service retries and reports ErrConflict.
	ErrVersionConflict = errors.New("ride version conflict")
)

// TransitionError reports a status change missing from AllowedTransitions.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// TooEarlyError carries the earliest time a ride may be started.
type TooEarlyError struct {
	EarliestStart time.Time
}

func (e *TooEarlyError) Error() string {
	return fmt.Sprintf("too early to start ride: earliest start %s", e.EarliestStart.Format(time.RFC3339))
}

func (e *TooEarlyError) Is(target error) bool {
	return target == ErrTooEarly
}

// notFoundError lets lookups of other entities match ErrNotFound.
type notFoundError struct {
	what string
}

func (e *notFoundError) Error() string { return e.what + " not found" }

func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }
