package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	session "github.com/ethereum-optimism/infra/op-session"
	"github.com/ethereum-optimism/infra/op-session/flags"
	"github.com/ethereum-optimism/infra/op-session/logging"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = session.AppName
	app.Usage = "Test session lifecycle aggregator"
	app.Description = "op-session runs 'go test -json' (or replays a recorded stream), brackets it with the session bootstrap and teardown, and aggregates the results"
	app.ArgsUsage = "[go test args...]"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			if session.IsRuntimeError(err) {
				// bootstrap, teardown and engine failures
				cli.HandleExitCoder(cli.Exit(err.Error(), 2))
			} else if session.IsTestFailureError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), 1))
			} else {
				cli.HandleExitCoder(cli.Exit(err.Error(), 1))
			}
		}
	}

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	// The policy owns the threshold so the session can switch debug and discrete
	// logging at runtime.
	policy := logging.NewPolicy(logCfg.Level)
	logCfg.Level = log.LevelTrace
	log := policy.NewLogger(oplog.NewLogger(oplog.AppOut(ctx), logCfg))
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := session.NewConfig(ctx, log)
	if err != nil {
		return nil, session.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	cfg.Log.Debug("Config", "config", cfg)

	s, err := session.New(ctx.Context, cfg, Version, policy, closeApp)
	if err != nil {
		return nil, session.NewRuntimeError(fmt.Errorf("failed to create session: %w", err))
	}

	return s, nil
}
