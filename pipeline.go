package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-session/metrics"
)

// Lifecycle phases
const (
	PhaseBootstrap = "bootstrap"
	PhaseTeardown  = "teardown"
)

// Step is one named unit of a lifecycle pipeline.
//
// A failing ordinary step skips the ordinary steps after it. Always steps run
// regardless of earlier failures. BestEffort failures are logged and never
// count as a pipeline failure.
type Step struct {
	Name       string
	Run        func(ctx context.Context) error
	Always     bool
	BestEffort bool
}

// StepResult records how a step went in the last run
type StepResult struct {
	Name     string
	Skipped  bool
	Duration time.Duration
	Err      error
}

// Pipeline runs steps in their declared order
type Pipeline struct {
	phase  string
	steps  []Step
	log    log.Logger
	tracer trace.Tracer
}

func NewPipeline(phase string, logger log.Logger, steps ...Step) *Pipeline {
	return &Pipeline{
		phase:  phase,
		steps:  steps,
		log:    logger,
		tracer: otel.Tracer("op-session " + phase),
	}
}

// Phase returns the phase name
func (p *Pipeline) Phase() string {
	return p.phase
}

// Names returns the step names in execution order
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name
	}
	return names
}

// Run executes the pipeline. The returned error joins one *StepError per failed
// step that was not best effort.
func (p *Pipeline) Run(ctx context.Context) ([]StepResult, error) {
	ctx, span := p.tracer.Start(ctx, p.phase)
	defer span.End()

	results := make([]StepResult, 0, len(p.steps))
	var errs []error
	failed := false
	for _, step := range p.steps {
		if failed && !step.Always {
			p.log.Warn("Skipping step after earlier failure", "phase", p.phase, "step", step.Name)
			results = append(results, StepResult{Name: step.Name, Skipped: true})
			continue
		}

		start := time.Now()
		err := p.runStep(ctx, step)
		duration := time.Since(start)
		metrics.RecordStep(p.phase, step.Name, duration, err)
		results = append(results, StepResult{Name: step.Name, Duration: duration, Err: err})

		if err == nil {
			p.log.Debug("Step completed", "phase", p.phase, "step", step.Name, "duration", duration)
			continue
		}
		stepErr := &StepError{Phase: p.phase, Step: step.Name, Err: err}
		if step.BestEffort {
			p.log.Warn("Best effort step failed", "phase", p.phase, "step", step.Name, "error", err)
			continue
		}
		p.log.Error("Step failed", "phase", p.phase, "step", step.Name, "error", err)
		errs = append(errs, stepErr)
		failed = true
	}

	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return results, err
}

func (p *Pipeline) runStep(ctx context.Context, step Step) (err error) {
	ctx, span := p.tracer.Start(ctx, fmt.Sprintf("step %s", step.Name))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Step panicked", "phase", p.phase, "step", step.Name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	if step.Run == nil {
		return nil
	}
	return step.Run(ctx)
}
