package reporting

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-session/properties"
	"github.com/ethereum-optimism/infra/op-session/types"
)

// PropertySink emits to its static sinks plus the remote stores named in the
// properties. The remote stores are resolved at emit time, after the
// properties have been loaded.
type PropertySink struct {
	log    log.Logger
	props  func() *properties.Properties
	static []SummarySink

	openPostgres func(ctx context.Context, uri string) (Connection, error)
}

var _ SummarySink = (*PropertySink)(nil)

func NewPropertySink(logger log.Logger, props func() *properties.Properties, static ...SummarySink) *PropertySink {
	return &PropertySink{
		log:    logger,
		props:  props,
		static: static,
		openPostgres: func(ctx context.Context, uri string) (Connection, error) {
			return NewPGXDB(ctx, uri)
		},
	}
}

func (s *PropertySink) Name() string { return "properties" }

func (s *PropertySink) Emit(ctx context.Context, summary *types.ExecutionSummary) error {
	multi := NewMultiSink(s.log, s.static...)
	p := s.props()

	if url := p.String(properties.KeyRedisURL, ""); url != "" {
		client, err := NewRedisClient(ctx, url)
		if err != nil {
			s.log.Error("Failed to connect to redis summary store", "error", err)
			multi.Add(failedSink{name: "redis", err: err})
		} else {
			defer client.Close()
			multi.Add(NewRedisSink(client, p.String(properties.KeyRedisKey, DefaultRedisKey)))
		}
	}

	if uri := p.String(properties.KeyPostgresURL, ""); uri != "" {
		db, err := s.openPostgres(ctx, uri)
		if err == nil {
			err = db.Migrate(ctx)
			if err != nil {
				_ = db.Close()
			}
		}
		if err != nil {
			s.log.Error("Failed to open postgres summary store", "error", err)
			multi.Add(failedSink{name: "postgres", err: err})
		} else {
			defer db.Close()
			multi.Add(NewPostgresSink(db))
		}
	}

	return multi.Emit(ctx, summary)
}

// failedSink reports a store that could not be reached through the MultiSink
type failedSink struct {
	name string
	err  error
}

func (f failedSink) Name() string { return f.name }

func (f failedSink) Emit(context.Context, *types.ExecutionSummary) error {
	return fmt.Errorf("unavailable: %w", f.err)
}
