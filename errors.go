package session

import (
	"errors"
	"fmt"
)

// RuntimeError represents an operational error that should lead to exit code 2
// Examples include configuration errors, bootstrap failures, engine crashes, etc.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError represents a session that closed with failed tests (exit code 1)
type TestFailureError struct {
	Message string
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %s", e.Message)
}

// NewTestFailureError creates a new TestFailureError
func NewTestFailureError(message string) *TestFailureError {
	return &TestFailureError{Message: message}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}

// StepError is a collaborator failure inside a lifecycle step
type StepError struct {
	Phase string
	Step  string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step %s failed: %v", e.Phase, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StepErrors returns every StepError contained in err, walking wrapped and
// joined errors
func StepErrors(err error) []*StepError {
	switch x := err.(type) {
	case nil:
		return nil
	case *StepError:
		return []*StepError{x}
	case interface{ Unwrap() []error }:
		var out []*StepError
		for _, e := range x.Unwrap() {
			out = append(out, StepErrors(e)...)
		}
		return out
	case interface{ Unwrap() error }:
		return StepErrors(x.Unwrap())
	default:
		return nil
	}
}
