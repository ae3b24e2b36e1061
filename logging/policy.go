package logging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// Policy is the process-wide logging policy. Discrete mode raises the threshold to
// warnings so that noisy collaborators (vault, property loading) stay quiet; debug
// mode lowers the configured base threshold. Concurrent writers are last-write-wins.
type Policy struct {
	mu       sync.Mutex
	level    slog.LevelVar
	base     slog.Level
	discrete bool
	debug    bool
}

// NewPolicy creates a policy with base as the configured default threshold
func NewPolicy(base slog.Level) *Policy {
	p := &Policy{base: base}
	p.level.Set(base)
	return p
}

// SetDiscrete toggles discrete logging
func (p *Policy) SetDiscrete(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discrete = on
	p.apply()
}

// SetDebugMode toggles the debug threshold used outside discrete mode
func (p *Policy) SetDebugMode(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.debug = on
	p.apply()
}

// Restore turns discrete logging off and applies debug as the configured debug mode
func (p *Policy) Restore(debug bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discrete = false
	p.debug = debug
	p.apply()
}

func (p *Policy) apply() {
	lvl := p.base
	if p.debug && lvl > log.LevelDebug {
		lvl = log.LevelDebug
	}
	if p.discrete && lvl < log.LevelWarn {
		lvl = log.LevelWarn
	}
	p.level.Set(lvl)
}

// Discrete reports whether discrete mode is on
func (p *Policy) Discrete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.discrete
}

// Level returns the current effective threshold
func (p *Policy) Level() slog.Level {
	return p.level.Level()
}

// Leveler exposes the dynamic threshold
func (p *Policy) Leveler() slog.Leveler {
	return &p.level
}

// Wrap returns a handler that filters records through the policy before passing
// them to inner.
func (p *Policy) Wrap(inner slog.Handler) slog.Handler {
	return &policyHandler{inner: inner, level: &p.level}
}

// NewLogger wraps the handler of l with the policy
func (p *Policy) NewLogger(l log.Logger) log.Logger {
	return log.NewLogger(p.Wrap(l.Handler()))
}

type policyHandler struct {
	inner slog.Handler
	level slog.Leveler
}

func (h *policyHandler) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= h.level.Level()
}

func (h *policyHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h *policyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &policyHandler{inner: h.inner.WithAttrs(attrs), level: h.level}
}

func (h *policyHandler) WithGroup(name string) slog.Handler {
	return &policyHandler{inner: h.inner.WithGroup(name), level: h.level}
}
