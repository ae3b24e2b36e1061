package collector

import (
	"errors"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-session/types"
)

var (
	// ErrNotFrozen is returned when reading outcome collections before teardown
	ErrNotFrozen = errors.New("session state is not frozen")
	// ErrFrozen is returned when recording into a frozen session
	ErrFrozen = errors.New("session state is frozen")
	// ErrDuplicate is returned when an identifier was already classified
	ErrDuplicate = errors.New("test identifier already classified")
)

// Entry is one classified identifier together with its message
type Entry struct {
	ID      types.TestIdentifier
	Message string
}

// outcomeList is an append-only list guarded by its own lock so that writers
// of different outcomes never contend with each other.
type outcomeList struct {
	mu      sync.Mutex
	entries []Entry
}

func (l *outcomeList) append(e Entry) {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
}

func (l *outcomeList) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *outcomeList) snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// SessionState holds the accumulated outcomes and timing of one session.
// Record* methods are safe for concurrent use. Reads through Snapshot are only
// permitted after Freeze.
type SessionState struct {
	// freezeMu is held shared by writers and exclusively by Freeze, so the
	// collections observed after Freeze are complete.
	freezeMu sync.RWMutex
	frozen   bool

	seen    sync.Map // key -> types.Outcome
	passed  outcomeList
	failed  outcomeList
	skipped outcomeList

	timeMu    sync.Mutex
	startTime time.Time
	endTime   time.Time
}

// NewSessionState creates an empty session state
func NewSessionState() *SessionState {
	return &SessionState{}
}

// RecordPassed records a passing test
func (s *SessionState) RecordPassed(id types.TestIdentifier) error {
	return s.record(id, types.OutcomePassed, "")
}

// RecordFailed records a failing test with its failure message
func (s *SessionState) RecordFailed(id types.TestIdentifier, message string) error {
	return s.record(id, types.OutcomeFailed, message)
}

// RecordSkipped records a skipped test with its reason
func (s *SessionState) RecordSkipped(id types.TestIdentifier, reason string) error {
	return s.record(id, types.OutcomeSkipped, reason)
}

// Record dispatches to the list matching outcome
func (s *SessionState) Record(id types.TestIdentifier, c Classification) error {
	return s.record(id, c.Outcome, c.Message)
}

func (s *SessionState) record(id types.TestIdentifier, outcome types.Outcome, message string) error {
	list := s.list(outcome)
	if list == nil {
		return errors.New("unknown outcome: " + string(outcome))
	}

	s.freezeMu.RLock()
	defer s.freezeMu.RUnlock()
	if s.frozen {
		return ErrFrozen
	}
	if _, loaded := s.seen.LoadOrStore(id.Key(), outcome); loaded {
		return ErrDuplicate
	}
	list.append(Entry{ID: id, Message: message})
	return nil
}

func (s *SessionState) list(outcome types.Outcome) *outcomeList {
	switch outcome {
	case types.OutcomePassed:
		return &s.passed
	case types.OutcomeFailed:
		return &s.failed
	case types.OutcomeSkipped:
		return &s.skipped
	default:
		return nil
	}
}

// OutcomeOf returns the outcome assigned to id, if any
func (s *SessionState) OutcomeOf(id types.TestIdentifier) (types.Outcome, bool) {
	v, ok := s.seen.Load(id.Key())
	if !ok {
		return "", false
	}
	return v.(types.Outcome), true
}

// Tally returns the current counts. It is safe to call at any time.
func (s *SessionState) Tally() types.Tally {
	return types.Tally{
		Passed:  s.passed.len(),
		Failed:  s.failed.len(),
		Skipped: s.skipped.len(),
	}
}

// MarkStarted sets the session start time. Only the first call has an effect.
func (s *SessionState) MarkStarted(t time.Time) {
	s.timeMu.Lock()
	defer s.timeMu.Unlock()
	if s.startTime.IsZero() {
		s.startTime = t
	}
}

// MarkEnded sets the session end time. Only the first call has an effect.
func (s *SessionState) MarkEnded(t time.Time) {
	s.timeMu.Lock()
	defer s.timeMu.Unlock()
	if s.endTime.IsZero() {
		s.endTime = t
	}
}

// Times returns the session start and end times
func (s *SessionState) Times() (start, end time.Time) {
	s.timeMu.Lock()
	defer s.timeMu.Unlock()
	return s.startTime, s.endTime
}

// Freeze stops accepting new records. It waits for in-flight writers.
func (s *SessionState) Freeze() {
	s.freezeMu.Lock()
	s.frozen = true
	s.freezeMu.Unlock()
}

// Frozen reports whether Freeze was called
func (s *SessionState) Frozen() bool {
	s.freezeMu.RLock()
	defer s.freezeMu.RUnlock()
	return s.frozen
}

// Snapshot is a read-only copy of a frozen session
type Snapshot struct {
	Passed    []Entry
	Failed    []Entry
	Skipped   []Entry
	StartTime time.Time
	EndTime   time.Time
}

// Tally returns the counts of the snapshot
func (s Snapshot) Tally() types.Tally {
	return types.Tally{Passed: len(s.Passed), Failed: len(s.Failed), Skipped: len(s.Skipped)}
}

// Snapshot returns copies of the outcome collections. It fails before Freeze.
func (s *SessionState) Snapshot() (Snapshot, error) {
	if !s.Frozen() {
		return Snapshot{}, ErrNotFrozen
	}
	start, end := s.Times()
	return Snapshot{
		Passed:    s.passed.snapshot(),
		Failed:    s.failed.snapshot(),
		Skipped:   s.skipped.snapshot(),
		StartTime: start,
		EndTime:   end,
	}, nil
}
