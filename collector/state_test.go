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

func leaf(pkg, name string) types.TestIdentifier {
	return types.TestIdentifier{
		UniqueID: types.NewUniqueID(
			types.Segment{Type: types.SegmentEngine, Value: "go-test"},
			types.Segment{Type: types.SegmentPackage, Value: pkg},
			types.Segment{Type: types.SegmentTest, Value: name},
		),
		DisplayName:         name,
		LegacyReportingName: name,
		Type:                types.TestTypeTest,
	}
}

func container(pkg string) types.TestIdentifier {
	return types.TestIdentifier{
		UniqueID: types.NewUniqueID(
			types.Segment{Type: types.SegmentEngine, Value: "go-test"},
			types.Segment{Type: types.SegmentPackage, Value: pkg},
		),
		DisplayName: pkg,
		Type:        types.TestTypeContainer,
	}
}

func TestSessionState_RecordAndSnapshot(t *testing.T) {
	s := NewSessionState()
	require.NoError(t, s.RecordPassed(leaf("p", "TestA")))
	require.NoError(t, s.RecordSkipped(leaf("p", "TestB"), "ignored"))
	require.NoError(t, s.RecordFailed(leaf("p", "TestC"), "boom"))

	assert.Equal(t, types.Tally{Passed: 1, Failed: 1, Skipped: 1}, s.Tally())

	_, err := s.Snapshot()
	require.ErrorIs(t, err, ErrNotFrozen)

	s.Freeze()
	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Passed, 1)
	require.Len(t, snap.Failed, 1)
	require.Len(t, snap.Skipped, 1)
	assert.Equal(t, "boom", snap.Failed[0].Message)
	assert.Equal(t, "ignored", snap.Skipped[0].Message)
	assert.Equal(t, types.Tally{Passed: 1, Failed: 1, Skipped: 1}, snap.Tally())
}

func TestSessionState_DuplicateIsRejected(t *testing.T) {
	s := NewSessionState()
	id := leaf("p", "TestA")
	require.NoError(t, s.RecordPassed(id))

	assert.ErrorIs(t, s.RecordFailed(id, "late failure"), ErrDuplicate)
	assert.ErrorIs(t, s.RecordPassed(id), ErrDuplicate)

	outcome, ok := s.OutcomeOf(id)
	require.True(t, ok)
	assert.Equal(t, types.OutcomePassed, outcome)
	assert.Equal(t, types.Tally{Passed: 1}, s.Tally())
}

func TestSessionState_FrozenRejectsWrites(t *testing.T) {
	s := NewSessionState()
	s.Freeze()
	assert.ErrorIs(t, s.RecordPassed(leaf("p", "TestA")), ErrFrozen)
	assert.Equal(t, 0, s.Tally().Total())
}

func TestSessionState_TimesSetOnce(t *testing.T) {
	s := NewSessionState()
	t0 := time.Unix(100, 0)
	s.MarkStarted(t0)
	s.MarkStarted(t0.Add(time.Hour))
	s.MarkEnded(t0.Add(time.Minute))
	s.MarkEnded(t0.Add(time.Hour))

	start, end := s.Times()
	assert.Equal(t, t0, start)
	assert.Equal(t, t0.Add(time.Minute), end)
}

func TestSessionState_ConcurrentDistinctPasses(t *testing.T) {
	const n = 1000
	s := NewSessionState()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.RecordPassed(leaf("p", fmt.Sprintf("Test%04d", i))))
		}(i)
	}
	wg.Wait()
	s.Freeze()

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Passed, n)

	seen := make(map[string]bool, n)
	for _, e := range snap.Passed {
		assert.False(t, seen[e.ID.Key()], "duplicate entry %s", e.ID.Key())
		seen[e.ID.Key()] = true
	}
	assert.Len(t, seen, n)
}

func TestSessionState_ConcurrentSameIdentifier(t *testing.T) {
	s := NewSessionState()
	id := leaf("p", "TestRace")

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				err = s.RecordPassed(id)
			} else {
				err = s.RecordFailed(id, "boom")
			}
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, s.Tally().Total())
}

func TestSessionState_FreezeWaitsForWriters(t *testing.T) {
	s := NewSessionState()
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.RecordPassed(leaf("p", fmt.Sprintf("Test%d", i)))
		}(i)
	}
	s.Freeze()
	snap, err := s.Snapshot()
	require.NoError(t, err)
	frozenCount := len(snap.Passed)
	wg.Wait()

	after, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, frozenCount, len(after.Passed), "no writes may land after freeze")
}
