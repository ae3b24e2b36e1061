package types

import (
	"time"
)

// SummaryRecord is one finalized entry of the execution summary. Records are
// append-only and never mutated after creation.
type SummaryRecord struct {
	SuiteQualifiedName string `json:"suite"`
	DisplayName        string `json:"name"`
	Description        string `json:"description"`
	ErrorMessage       string `json:"errorMessage"` // empty unless failed or skipped
	StatusIcon         string `json:"statusIcon"`
	StatusLabel        string `json:"status"`
	HasOpenIssue       bool   `json:"hasOpenIssue"`
}

// Tally holds per-outcome counts
type Tally struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Total returns the sum of all outcomes
func (t Tally) Total() int {
	return t.Passed + t.Failed + t.Skipped
}

// Status derives the overall status. Failures take priority over skips.
func (t Tally) Status() Outcome {
	if t.Failed > 0 {
		return OutcomeFailed
	}
	if t.Passed == 0 && t.Skipped > 0 {
		return OutcomeSkipped
	}
	return OutcomePassed
}

// PassRate returns the percentage of passed tests over all classified tests
func (t Tally) PassRate() float64 {
	if t.Total() == 0 {
		return 0
	}
	return float64(t.Passed) / float64(t.Total()) * 100
}

// ExecutionSummary is the immutable artifact produced once per session
type ExecutionSummary struct {
	RunID     string          `json:"runId"`
	Passed    int             `json:"passed"`
	Failed    int             `json:"failed"`
	Skipped   int             `json:"skipped"`
	StartTime time.Time       `json:"startTime"`
	EndTime   time.Time       `json:"endTime"`
	Cases     []SummaryRecord `json:"cases"`
}

// Tally returns the summary counts
func (s *ExecutionSummary) Tally() Tally {
	return Tally{Passed: s.Passed, Failed: s.Failed, Skipped: s.Skipped}
}

// Total returns the number of classified tests
func (s *ExecutionSummary) Total() int {
	return s.Tally().Total()
}

// Status returns the overall session status
func (s *ExecutionSummary) Status() Outcome {
	return s.Tally().Status()
}

// Duration returns the wall clock time of the session
func (s *ExecutionSummary) Duration() time.Duration {
	if s.StartTime.IsZero() || s.EndTime.IsZero() || s.EndTime.Before(s.StartTime) {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// StartTimeMillis returns the start time in unix milliseconds
func (s *ExecutionSummary) StartTimeMillis() int64 {
	return s.StartTime.UnixMilli()
}

// EndTimeMillis returns the end time in unix milliseconds
func (s *ExecutionSummary) EndTimeMillis() int64 {
	return s.EndTime.UnixMilli()
}

// CasesWithOutcome returns the records that ended with the given outcome, in order
func (s *ExecutionSummary) CasesWithOutcome(o Outcome) []SummaryRecord {
	var out []SummaryRecord
	for _, c := range s.Cases {
		if c.StatusLabel == string(o) {
			out = append(out, c)
		}
	}
	return out
}
