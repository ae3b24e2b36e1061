package collector

import (
	"strings"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-session/types"
)

// GenericFailureMessage is used when a failed or aborted test carries no cause
const GenericFailureMessage = "Test Failed"

// SignalKind distinguishes the three kinds of terminal notification
type SignalKind int

const (
	SignalFinished SignalKind = iota
	SignalSkipped
)

// Signal is one terminal notification for a single test
type Signal struct {
	Kind   SignalKind
	Result types.ExecutionResult // set for SignalFinished
	Reason string                // set for SignalSkipped
}

// FinishedSignal wraps an execution result
func FinishedSignal(result types.ExecutionResult) Signal {
	return Signal{Kind: SignalFinished, Result: result}
}

// SkippedSignal wraps a skip reason
func SkippedSignal(reason string) Signal {
	return Signal{Kind: SignalSkipped, Reason: reason}
}

// Classification is the result of classifying a signal
type Classification struct {
	Outcome types.Outcome
	Message string
}

// Classify maps a terminal signal to exactly one outcome. It has no side effects.
func Classify(sig Signal) Classification {
	if sig.Kind == SignalSkipped {
		return Classification{Outcome: types.OutcomeSkipped, Message: cleanMessage(sig.Reason)}
	}

	switch sig.Result.Status {
	case types.StatusSuccessful:
		return Classification{Outcome: types.OutcomePassed}
	case types.StatusFailed, types.StatusAborted:
		return Classification{Outcome: types.OutcomeFailed, Message: failureMessage(sig.Result.Cause)}
	default:
		return Classification{Outcome: types.OutcomeFailed, Message: GenericFailureMessage}
	}
}

func failureMessage(cause error) string {
	if cause == nil {
		return GenericFailureMessage
	}
	if msg := cleanMessage(cause.Error()); msg != "" {
		return msg
	}
	return GenericFailureMessage
}

// cleanMessage strips terminal colors and surrounding whitespace
func cleanMessage(message string) string {
	return strings.TrimSpace(stripansi.Strip(message))
}
