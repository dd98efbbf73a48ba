package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrNotConnected = errors.New("no connected account")
	ErrInvalidInput = errors.New("invalid input")
	ErrBusy         = errors.New("a mutation is already in flight")
	ErrStaleIndex   = errors.New("index does not belong to the latest note list")
	ErrNoEdit       = errors.New("no note is open for editing")
	ErrUnsupported  = errors.New("not supported by this deployment")
)

// ValidationError reports which field failed local validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Is makes every ValidationError match ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// FetchError is returned when a list or search read fails.
type FetchError struct {
	Op  string // "list" or "search"
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SubmissionError is returned when a mutation is rejected or settles to failure.
// Index is -1 for creates.
type SubmissionError struct {
	Op           string // "create", "update" or "delete"
	Index        int
	SubmissionID string
	Err          error
}

func (e *SubmissionError) Error() string {
	msg := "submit " + e.Op
	if e.Index >= 0 {
		msg += fmt.Sprintf(" at index %d", e.Index)
	}
	if e.SubmissionID != "" {
		msg += " (" + e.SubmissionID + ")"
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
