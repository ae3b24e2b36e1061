package session

import (
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-session/engine"
	"github.com/ethereum-optimism/infra/op-session/flags"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

// Config holds the application configuration
type Config struct {
	TestDir       string        // Directory 'go test' runs in, empty when replaying
	Input         string        // Recorded 'go test -json' stream to replay instead of running tests
	GoBinary      string        // Go binary used to run the tests
	GoTestArgs    []string      // Extra arguments passed through to 'go test'
	PropertiesDir string        // Directory holding the session property files
	StatusAddr    string        // Healthz and status listen address, empty disables it
	MetricsAddr   string        // Prometheus listen address, empty disables it
	Timeout       time.Duration // Passed to 'go test -timeout'
	RunID         string        // Identifier stamped on every report of the session
	Out           io.Writer     // Console for banners and the summary table, stdout when nil
	Guard         *Guard        // Bootstrap guard, ProcessGuard when nil
	Log           log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	var testDir string
	input := ctx.String(flags.Input.Name)
	if input == "" {
		abs, err := filepath.Abs(ctx.String(flags.TestDir.Name))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for test directory '%s': %w", ctx.String(flags.TestDir.Name), err)
		}
		testDir = abs
	} else if input != engine.StdinInput {
		abs, err := filepath.Abs(input)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for input '%s': %w", input, err)
		}
		input = abs
	}

	propsDir, err := filepath.Abs(ctx.String(flags.PropertiesDir.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for properties '%s': %w", ctx.String(flags.PropertiesDir.Name), err)
	}

	timeout := ctx.Duration(flags.Timeout.Name)
	if timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative, got %s", timeout)
	}

	runID := ctx.String(flags.RunID.Name)
	if runID == "" {
		runID = uuid.New().String()
	}

	var metricsAddr string
	if metricsCfg := opmetrics.ReadCLIConfig(ctx); metricsCfg.Enabled {
		if err := metricsCfg.Check(); err != nil {
			return nil, fmt.Errorf("invalid metrics config: %w", err)
		}
		metricsAddr = net.JoinHostPort(metricsCfg.ListenAddr, strconv.Itoa(metricsCfg.ListenPort))
	}

	return &Config{
		TestDir:       testDir,
		Input:         input,
		GoBinary:      ctx.String(flags.GoBinary.Name),
		GoTestArgs:    ctx.Args().Slice(),
		PropertiesDir: propsDir,
		StatusAddr:    ctx.String(flags.StatusAddr.Name),
		MetricsAddr:   metricsAddr,
		Timeout:       timeout,
		RunID:         runID,
		Log:           log,
	}, nil
}
