package types

import "fmt"

// Outcome is the terminal classification of a leaf test
type Outcome string

const (
	OutcomePassed  Outcome = "PASSED"
	OutcomeFailed  Outcome = "FAILED"
	OutcomeSkipped Outcome = "SKIPPED"
)

// Outcomes lists every outcome in reporting order
var Outcomes = []Outcome{OutcomePassed, OutcomeFailed, OutcomeSkipped}

// Icon returns the decorative prefix used by summary renderers
func (o Outcome) Icon() string {
	switch o {
	case OutcomePassed:
		return "✅"
	case OutcomeFailed:
		return "❌"
	case OutcomeSkipped:
		return "🚧"
	default:
		return "❔"
	}
}

// ExecutionStatus is the raw status reported by the engine for a finished node
type ExecutionStatus string

const (
	StatusSuccessful ExecutionStatus = "SUCCESSFUL"
	StatusFailed     ExecutionStatus = "FAILED"
	StatusAborted    ExecutionStatus = "ABORTED"
)

// ExecutionResult is what the engine reports when a node finishes
type ExecutionResult struct {
	Status ExecutionStatus
	Cause  error // optional
}

// Successful returns a result for a passing node
func Successful() ExecutionResult {
	return ExecutionResult{Status: StatusSuccessful}
}

// Failed returns a failing result with an optional cause
func Failed(cause error) ExecutionResult {
	return ExecutionResult{Status: StatusFailed, Cause: cause}
}

// Aborted returns an aborted result with an optional cause
func Aborted(cause error) ExecutionResult {
	return ExecutionResult{Status: StatusAborted, Cause: cause}
}

func (r ExecutionResult) String() string {
	if r.Cause == nil {
		return string(r.Status)
	}
	return fmt.Sprintf("%s: %v", r.Status, r.Cause)
}
