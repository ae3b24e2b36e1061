package collector

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-session/types"
)

func TestSummaryAggregator_Append(t *testing.T) {
	a := NewSummaryAggregator()

	id := leaf("example.com/pkg", "TestFoo")
	id.LegacyReportingName = "TestFoo (legacy)"
	require.True(t, a.Append(id, "", types.OutcomePassed))

	records := a.Summary("run", time.Time{}, time.Time{}).Cases
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "example.com/pkg.TestFoo", r.SuiteQualifiedName)
	assert.Equal(t, "TestFoo", r.DisplayName)
	assert.Equal(t, "TestFoo (legacy)", r.Description)
	assert.Equal(t, "", r.ErrorMessage)
	assert.Equal(t, "PASSED", r.StatusLabel)
	assert.Equal(t, types.OutcomePassed.Icon(), r.StatusIcon)
	assert.False(t, r.HasOpenIssue)
}

func TestSummaryAggregator_IgnoresContainers(t *testing.T) {
	a := NewSummaryAggregator()
	assert.False(t, a.Append(container("example.com/pkg"), "", types.OutcomePassed))
	assert.Equal(t, 0, a.Len())
	assert.Equal(t, types.Tally{}, a.Tally())
}

func TestSummaryAggregator_StripsANSI(t *testing.T) {
	a := NewSummaryAggregator()
	a.Append(leaf("p", "TestRed"), "\x1b[31mred failure\x1b[0m\n", types.OutcomeFailed)

	s := a.Summary("run", time.Time{}, time.Time{})
	require.Len(t, s.Cases, 1)
	assert.Equal(t, "red failure", s.Cases[0].ErrorMessage)
}

func TestSummaryAggregator_Summary(t *testing.T) {
	a := NewSummaryAggregator()
	a.Append(leaf("p", "TestA"), "", types.OutcomePassed)
	a.Append(leaf("p", "TestB"), "ignored", types.OutcomeSkipped)
	a.Append(leaf("p", "TestC"), "boom", types.OutcomeFailed)

	start := time.Unix(1000, 0)
	end := start.Add(3 * time.Second)
	s := a.Summary("run-1", start, end)

	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, 1, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 3*time.Second, s.Duration())
	assert.Equal(t, start.UnixMilli(), s.StartTimeMillis())
	assert.Equal(t, end.UnixMilli(), s.EndTimeMillis())
	assert.Equal(t, types.OutcomeFailed, s.Status())

	labels := make([]string, 0, len(s.Cases))
	for _, c := range s.Cases {
		labels = append(labels, c.StatusLabel)
	}
	assert.Equal(t, []string{"PASSED", "SKIPPED", "FAILED"}, labels)
	require.Len(t, s.CasesWithOutcome(types.OutcomeFailed), 1)
	assert.Equal(t, "boom", s.CasesWithOutcome(types.OutcomeFailed)[0].ErrorMessage)

	// The summary is a copy; later appends do not leak into it.
	a.Append(leaf("p", "TestD"), "", types.OutcomePassed)
	assert.Len(t, s.Cases, 3)
}

func TestSummaryAggregator_Concurrent(t *testing.T) {
	const n = 500
	a := NewSummaryAggregator()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome := types.Outcomes[i%len(types.Outcomes)]
			a.Append(leaf("p", fmt.Sprintf("Test%d", i)), "", outcome)
		}(i)
	}
	wg.Wait()

	tally := a.Tally()
	assert.Equal(t, n, tally.Total())
	assert.Equal(t, n, a.Len())
	assert.Equal(t, 167, tally.Passed)
	assert.Equal(t, 167, tally.Failed)
	assert.Equal(t, 166, tally.Skipped)
}
