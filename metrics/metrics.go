package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ethereum-optimism/infra/op-session/types"
)

const (
	MetricsNamespace = "op_session"
)

var (
	Debug                bool = false
	validOutcomes             = types.Outcomes
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "outcomes_total",
		Help:      "Count of classified leaf tests by outcome",
	}, []string{
		"outcome",
	})

	integrityFaultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "integrity_faults_total",
		Help:      "Count of dropped events (duplicates, non-leaf, out of state)",
	}, []string{
		"kind",
	})

	stepDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "step_duration_seconds",
		Help:      "Duration of the last run of a lifecycle step",
	}, []string{
		"phase",
		"step",
	})

	stepErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "step_errors_total",
		Help:      "Count of failed lifecycle steps",
	}, []string{
		"phase",
		"step",
	})

	secretsOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "secrets_operations_total",
		Help:      "Count of secrets vault operations",
	}, []string{
		"provider",
		"operation",
		"result",
	})

	sinkErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "sink_errors_total",
		Help:      "Count of summary sink failures",
	}, []string{
		"sink",
	})

	sessionResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "session_results",
		Help:      "Per-outcome counts of a closed session",
	}, []string{
		"run_id",
		"outcome",
	})

	sessionDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "session_duration_seconds",
		Help:      "Duration of a closed session",
	}, []string{
		"run_id",
	})

	testsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_in_flight",
		Help:      "Number of tests started but not yet finished or skipped",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordOutcome(outcome types.Outcome) {
	if !slices.Contains(validOutcomes, outcome) {
		log.Error("RecordOutcome - invalid outcome", "outcome", outcome)
		return
	}
	if Debug {
		log.Debug("metric inc", "m", "outcomes_total", "outcome", outcome)
	}
	outcomesTotal.WithLabelValues(string(outcome)).Inc()
}

func RecordIntegrityFault(kind string) {
	integrityFaultsTotal.WithLabelValues(kind).Inc()
}

// RecordStep records the duration of a lifecycle step and counts it as failed when err is set
func RecordStep(phase string, step string, duration time.Duration, err error) {
	stepDuration.WithLabelValues(phase, step).Set(duration.Seconds())
	if err != nil {
		stepErrorsTotal.WithLabelValues(phase, step).Inc()
	}
}

func RecordSecretsOperation(provider string, operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	secretsOperationsTotal.WithLabelValues(provider, operation, result).Inc()
}

func RecordSinkError(sink string, err error) {
	if err == nil {
		return
	}
	sinkErrorsTotal.WithLabelValues(sink).Inc()
	RecordErrorDetails("sink."+sink, err)
}

func RecordSession(runID string, tally types.Tally, duration time.Duration) {
	sessionResults.WithLabelValues(runID, string(types.OutcomePassed)).Set(float64(tally.Passed))
	sessionResults.WithLabelValues(runID, string(types.OutcomeFailed)).Set(float64(tally.Failed))
	sessionResults.WithLabelValues(runID, string(types.OutcomeSkipped)).Set(float64(tally.Skipped))
	sessionDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func TestStarted() {
	testsInFlight.Inc()
}

func TestSettled() {
	testsInFlight.Dec()
}
