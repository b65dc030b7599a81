package verify

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a step failed.
type ErrorKind string

const (
	NavigationError      ErrorKind = "NavigationError"
	ElementNotFoundError ErrorKind = "ElementNotFoundError"
	AssertionError       ErrorKind = "AssertionError"
	IOError              ErrorKind = "IOError"
)

// Sentinels for errors.Is against a *StepError.
var (
	ErrNavigation      = errors.New("navigation failed")
	ErrElementNotFound = errors.New("element not found")
	ErrAssertion       = errors.New("assertion failed")
	ErrIO              = errors.New("i/o failed")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case NavigationError:
		return ErrNavigation
	case ElementNotFoundError:
		return ErrElementNotFound
	case AssertionError:
		return ErrAssertion
	case IOError:
		return ErrIO
	}
	return nil
}

// StepError is the cause attached to a failed run. Expected and Actual are set
// for assertion failures; Matches is set for lookups.
type StepError struct {
	Index    int
	Step     Step
	Kind     ErrorKind
	Expected string
	Actual   string
	Matches  int
	Err      error
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("step %d %s: %s", e.Index, e.Step, e.Kind)
	switch {
	case e.Kind == AssertionError && e.Err == nil:
		msg += fmt.Sprintf(": expected %q, got %q", e.Expected, e.Actual)
	case e.Kind == AssertionError:
		msg += fmt.Sprintf(": expected %q: %v", e.Expected, e.Err)
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func newStepError(kind ErrorKind, err error) *StepError {
	return &StepError{Kind: kind, Err: err}
}

func assertionMismatch(expected, actual string) *StepError {
	return &StepError{Kind: AssertionError, Expected: expected, Actual: actual}
}
