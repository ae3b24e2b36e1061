package collector

import (
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-session/types"
)

// SummaryAggregator collects one SummaryRecord per leaf test
type SummaryAggregator struct {
	mu      sync.Mutex
	records []types.SummaryRecord
	tally   types.Tally
}

// NewSummaryAggregator creates an empty aggregator
func NewSummaryAggregator() *SummaryAggregator {
	return &SummaryAggregator{}
}

// Append builds a record for id and appends it. Non-leaf identifiers are
// ignored and reported by returning false.
func (a *SummaryAggregator) Append(id types.TestIdentifier, message string, outcome types.Outcome) bool {
	if !id.IsTest() {
		return false
	}
	record := NewSummaryRecord(id, message, outcome)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, record)
	switch outcome {
	case types.OutcomePassed:
		a.tally.Passed++
	case types.OutcomeFailed:
		a.tally.Failed++
	case types.OutcomeSkipped:
		a.tally.Skipped++
	}
	return true
}

// NewSummaryRecord derives a record from an identifier
func NewSummaryRecord(id types.TestIdentifier, message string, outcome types.Outcome) types.SummaryRecord {
	return types.SummaryRecord{
		SuiteQualifiedName: id.SuiteQualifiedName(),
		DisplayName:        id.DisplayName,
		Description:        id.LegacyReportingName,
		ErrorMessage:       cleanMessage(message),
		StatusIcon:         outcome.Icon(),
		StatusLabel:        string(outcome),
		HasOpenIssue:       false,
	}
}

// Tally returns the per-status counters
func (a *SummaryAggregator) Tally() types.Tally {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tally
}

// Len returns the number of records
func (a *SummaryAggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// Summary builds the immutable execution summary
func (a *SummaryAggregator) Summary(runID string, start, end time.Time) *types.ExecutionSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	cases := make([]types.SummaryRecord, len(a.records))
	copy(cases, a.records)
	return &types.ExecutionSummary{
		RunID:     runID,
		Passed:    a.tally.Passed,
		Failed:    a.tally.Failed,
		Skipped:   a.tally.Skipped,
		StartTime: start,
		EndTime:   end,
		Cases:     cases,
	}
}
