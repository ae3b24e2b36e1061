package reporting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-session/metrics"
	"github.com/ethereum-optimism/infra/op-session/types"
)

// SummarySink receives the execution summary once per session
type SummarySink interface {
	Name() string
	Emit(ctx context.Context, summary *types.ExecutionSummary) error
}

// MultiSink emits to every sink. A failing sink does not stop the others.
type MultiSink struct {
	log   log.Logger
	sinks []SummarySink
}

func NewMultiSink(logger log.Logger, sinks ...SummarySink) *MultiSink {
	return &MultiSink{log: logger, sinks: sinks}
}

// Add appends a sink
func (m *MultiSink) Add(s SummarySink) {
	m.sinks = append(m.sinks, s)
}

func (m *MultiSink) Name() string { return "multi" }

// Emit sends summary to all sinks and joins their errors
func (m *MultiSink) Emit(ctx context.Context, summary *types.ExecutionSummary) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Emit(ctx, summary); err != nil {
			m.log.Error("Summary sink failed", "sink", s.Name(), "error", err)
			metrics.RecordSinkError(s.Name(), err)
			errs = append(errs, fmt.Errorf("%s sink: %w", s.Name(), err))
			continue
		}
		m.log.Debug("Summary emitted", "sink", s.Name())
	}
	return errors.Join(errs...)
}

// TableSink prints the summary table
type TableSink struct {
	out io.Writer
}

func NewTableSink(out io.Writer) *TableSink {
	if out == nil {
		out = os.Stdout
	}
	return &TableSink{out: out}
}

func (s *TableSink) Name() string { return "table" }

func (s *TableSink) Emit(_ context.Context, summary *types.ExecutionSummary) error {
	RenderSummaryTable(s.out, summary)
	return nil
}
