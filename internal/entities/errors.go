package entities

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCascade matches *CascadeError.
	ErrCascade = errors.New("cascade incomplete")

	// ErrImmutableField matches *ImmutableFieldError.
	ErrImmutableField = errors.New("field is immutable")
)

// CascadeFailure is one secondary patch that failed.
type CascadeFailure struct {
	Collection string
	ID         string
	Err        error
}

// CascadeError reports secondary patches that failed after the primary
// mutation succeeded. The remaining patches were still attempted.
type CascadeError struct {
	// Op describes the mutation that triggered the cascade.
	Op       string
	Attempts int
	Failures []CascadeFailure
}

func (e *CascadeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d of %d cascade patches failed", e.Op, len(e.Failures), e.Attempts)
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "; %s %q: %v", f.Collection, f.ID, f.Err)
	}
	return b.String()
}

// Is reports whether target is ErrCascade.
func (e *CascadeError) Is(target error) bool { return target == ErrCascade }

// Unwrap exposes every failure to errors.Is and errors.As.
func (e *CascadeError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// FailedIDs lists the entities left uncorrected.
func (e *CascadeError) FailedIDs() []string {
	ids := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		ids[i] = f.ID
	}
	return ids
}

// ImmutableFieldError rejects a key patch touching a field other than
// comment or origins.
type ImmutableFieldError struct {
	Field string
}

func (e *ImmutableFieldError) Error() string {
	return fmt.Sprintf("key field %q cannot be changed after creation", e.Field)
}

// Is reports whether target is ErrImmutableField.
func (e *ImmutableFieldError) Is(target error) bool { return target == ErrImmutableField }
