package collector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ethereum-optimism/infra/op-session/types"
)

type emptyError struct{}

func (emptyError) Error() string { return "" }

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		signal      Signal
		wantOutcome types.Outcome
		wantMessage string
	}{
		{
			name:        "successful",
			signal:      FinishedSignal(types.Successful()),
			wantOutcome: types.OutcomePassed,
			wantMessage: "",
		},
		{
			name:        "failed with cause",
			signal:      FinishedSignal(types.Failed(errors.New("boom"))),
			wantOutcome: types.OutcomeFailed,
			wantMessage: "boom",
		},
		{
			name:        "failed without cause",
			signal:      FinishedSignal(types.Failed(nil)),
			wantOutcome: types.OutcomeFailed,
			wantMessage: GenericFailureMessage,
		},
		{
			name:        "aborted without cause",
			signal:      FinishedSignal(types.Aborted(nil)),
			wantOutcome: types.OutcomeFailed,
			wantMessage: GenericFailureMessage,
		},
		{
			name:        "aborted with cause",
			signal:      FinishedSignal(types.Aborted(errors.New("interrupted"))),
			wantOutcome: types.OutcomeFailed,
			wantMessage: "interrupted",
		},
		{
			name:        "failed with empty cause message",
			signal:      FinishedSignal(types.Failed(emptyError{})),
			wantOutcome: types.OutcomeFailed,
			wantMessage: GenericFailureMessage,
		},
		{
			name:        "failed with whitespace cause",
			signal:      FinishedSignal(types.Failed(errors.New("   \n"))),
			wantOutcome: types.OutcomeFailed,
			wantMessage: GenericFailureMessage,
		},
		{
			name:        "failed with color codes only",
			signal:      FinishedSignal(types.Failed(errors.New("\x1b[31m\x1b[0m"))),
			wantOutcome: types.OutcomeFailed,
			wantMessage: GenericFailureMessage,
		},
		{
			name:        "aborted with colored cause",
			signal:      FinishedSignal(types.Aborted(errors.New("\x1b[31mtimeout\x1b[0m\n"))),
			wantOutcome: types.OutcomeFailed,
			wantMessage: "timeout",
		},
		{
			name:        "unknown status",
			signal:      FinishedSignal(types.ExecutionResult{Status: "WEIRD"}),
			wantOutcome: types.OutcomeFailed,
			wantMessage: GenericFailureMessage,
		},
		{
			name:        "skipped with reason",
			signal:      SkippedSignal("ignored"),
			wantOutcome: types.OutcomeSkipped,
			wantMessage: "ignored",
		},
		{
			name:        "skipped without reason",
			signal:      SkippedSignal(""),
			wantOutcome: types.OutcomeSkipped,
			wantMessage: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.signal)
			assert.Equal(t, tt.wantOutcome, got.Outcome)
			assert.Equal(t, tt.wantMessage, got.Message)
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	signals := []Signal{
		FinishedSignal(types.Successful()),
		FinishedSignal(types.Failed(errors.New("boom"))),
		FinishedSignal(types.Aborted(nil)),
		SkippedSignal("flaky"),
	}
	for _, sig := range signals {
		first := Classify(sig)
		for i := 0; i < 100; i++ {
			assert.Equal(t, first, Classify(sig))
		}
	}
}

func TestClassify_FailedMessageNeverEmpty(t *testing.T) {
	for _, status := range []types.ExecutionStatus{types.StatusFailed, types.StatusAborted} {
		got := Classify(FinishedSignal(types.ExecutionResult{Status: status}))
		assert.NotEmpty(t, got.Message, "status %s", status)
		assert.Equal(t, GenericFailureMessage, got.Message)
	}
}
