package logging

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Transitions(t *testing.T) {
	p := NewPolicy(log.LevelInfo)
	assert.Equal(t, log.LevelInfo, p.Level())

	p.SetDiscrete(true)
	assert.True(t, p.Discrete())
	assert.Equal(t, log.LevelWarn, p.Level())

	// debug mode does not punch through discrete mode
	p.SetDebugMode(true)
	assert.Equal(t, log.LevelWarn, p.Level())

	p.SetDiscrete(false)
	assert.Equal(t, log.LevelDebug, p.Level())

	p.Restore(false)
	assert.False(t, p.Discrete())
	assert.Equal(t, log.LevelInfo, p.Level())
}

func TestPolicy_DiscreteKeepsHigherBase(t *testing.T) {
	p := NewPolicy(log.LevelError)
	p.SetDiscrete(true)
	assert.Equal(t, log.LevelError, p.Level())
}

func TestPolicy_FiltersRecords(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: log.LevelTrace})
	p := NewPolicy(log.LevelInfo)
	logger := log.NewLogger(p.Wrap(inner)).With("component", "test")

	logger.Info("visible")
	p.SetDiscrete(true)
	logger.Info("hidden")
	logger.Warn("loud")
	p.SetDiscrete(false)

	out := buf.String()
	require.Contains(t, out, "visible")
	require.Contains(t, out, "loud")
	require.Contains(t, out, "component=test")
	assert.NotContains(t, out, "hidden")
}

func TestPolicy_ConcurrentToggles(t *testing.T) {
	p := NewPolicy(log.LevelInfo)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.SetDiscrete(i%2 == 0)
		}(i)
	}
	wg.Wait()
	p.SetDiscrete(false)
	assert.Equal(t, log.LevelInfo, p.Level())
}
