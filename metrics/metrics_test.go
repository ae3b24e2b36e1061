package metrics

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/ethereum-optimism/infra/op-session/types"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("test@error#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			validLabelRegex := regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
			if !validLabelRegex.MatchString(result) {
				t.Errorf("errLabel() = %v, is not a valid Prometheus label", result)
			}
		})
	}
}

func TestRecordError(t *testing.T) {
	// just test that it doesn't panic
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("RecordError panic'd")
		}
	}()

	RecordError("test_error")
	RecordErrorDetails("test", nil)
	RecordErrorDetails("test", errors.New("sample error"))
}

func TestRecordOutcome(t *testing.T) {
	before := testutil.ToFloat64(outcomesTotal.WithLabelValues(string(types.OutcomeSkipped)))
	RecordOutcome(types.OutcomeSkipped)
	RecordOutcome(types.Outcome("bogus"))
	after := testutil.ToFloat64(outcomesTotal.WithLabelValues(string(types.OutcomeSkipped)))
	assert.Equal(t, before+1, after)
}

func TestRecordStep(t *testing.T) {
	RecordStep("teardown", "secrets-encrypt", 2*time.Second, nil)
	assert.Equal(t, 2.0, testutil.ToFloat64(stepDuration.WithLabelValues("teardown", "secrets-encrypt")))
	assert.Equal(t, 0.0, testutil.ToFloat64(stepErrorsTotal.WithLabelValues("teardown", "secrets-encrypt")))

	RecordStep("teardown", "secrets-encrypt", time.Second, errors.New("kms down"))
	assert.Equal(t, 1.0, testutil.ToFloat64(stepErrorsTotal.WithLabelValues("teardown", "secrets-encrypt")))
}

func TestRecordSession(t *testing.T) {
	RecordSession("run1", types.Tally{Passed: 3, Failed: 1, Skipped: 2}, time.Minute)
	assert.Equal(t, 3.0, testutil.ToFloat64(sessionResults.WithLabelValues("run1", "PASSED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sessionResults.WithLabelValues("run1", "FAILED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(sessionResults.WithLabelValues("run1", "SKIPPED")))
	assert.Equal(t, 60.0, testutil.ToFloat64(sessionDuration.WithLabelValues("run1")))
}

func TestInFlight(t *testing.T) {
	before := testutil.ToFloat64(testsInFlight)
	TestStarted()
	TestStarted()
	TestSettled()
	assert.Equal(t, before+1, testutil.ToFloat64(testsInFlight))
	TestSettled()
}
