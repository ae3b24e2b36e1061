package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-session/engine"
	"github.com/ethereum-optimism/infra/op-session/exitcodes"
	"github.com/ethereum-optimism/infra/op-session/issues"
	"github.com/ethereum-optimism/infra/op-session/logging"
	"github.com/ethereum-optimism/infra/op-session/properties"
	"github.com/ethereum-optimism/infra/op-session/proxy"
	"github.com/ethereum-optimism/infra/op-session/reporting"
	"github.com/ethereum-optimism/infra/op-session/secrets"
	"github.com/ethereum-optimism/infra/op-session/service"
	"github.com/ethereum-optimism/infra/op-session/vision"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// AppName prefixes the banners and reports of a session
const AppName = "op-session"

var _ cliapp.Lifecycle = (*app)(nil)

// app runs one test session: the engine drives the controller, which brackets
// the tests with the bootstrap and teardown of every collaborator.
type app struct {
	config  *Config
	version string

	controller *Controller
	driver     *engine.Driver
	source     engine.Source
	service    *service.Service
	result     *engine.Result

	out              io.Writer
	running          atomic.Bool
	done             chan struct{}
	shutdownCallback func(error)
}

// New wires the collaborators of a session. policy is the process logging policy
// the controller toggles; it may be nil.
func New(ctx context.Context, config *Config, version string, policy *logging.Policy, shutdownCallback func(error)) (*app, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Log == nil {
		config.Log = log.Root()
	}
	if config.Out == nil {
		config.Out = os.Stdout
	}
	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}

	config.Log.Debug("Creating session with config",
		"runID", config.RunID,
		"testDir", config.TestDir,
		"input", config.Input,
		"properties", config.PropertiesDir)

	a := &app{
		config:           config,
		version:          version,
		out:              config.Out,
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}

	source, err := a.newSource()
	if err != nil {
		return nil, fmt.Errorf("failed to create test source: %w", err)
	}
	a.source = source

	collab, err := a.collaborators(policy)
	if err != nil {
		return nil, err
	}
	a.controller = NewController(config.Log, ControllerConfig{
		RunID:   config.RunID,
		Version: version,
		Guard:   config.Guard,
	}, collab)
	a.driver = engine.NewDriver(a.controller, config.Log)
	a.service = service.New(config.StatusAddr, config.MetricsAddr, func() any {
		return a.controller.Status()
	})
	return a, nil
}

func (a *app) newSource() (engine.Source, error) {
	if a.config.Input != "" {
		return engine.FileSource(a.config.Input), nil
	}
	executor, err := engine.NewExecutor(a.config.TestDir, a.config.GoBinary, a.config.Timeout, a.config.GoTestArgs, a.config.Log)
	if err != nil {
		return nil, err
	}
	return executor.Source(), nil
}

func (a *app) collaborators(policy *logging.Policy) (Collaborators, error) {
	logger := a.config.Log
	store := properties.NewStore(a.config.PropertiesDir, logger)
	props := store.Properties
	layout := func() reporting.Layout {
		return reporting.LayoutFromProperties(props())
	}

	fileSink, err := reporting.NewFileSink(func() string { return layout().SummaryDir })
	if err != nil {
		return Collaborators{}, fmt.Errorf("failed to create summary file sink: %w", err)
	}

	collab := Collaborators{
		Properties: store,
		Proxy:      proxy.New(props, logger, nil),
		Structure: ProjectStructureFunc(func(ctx context.Context) error {
			return layout().Ensure(ctx)
		}),
		Secrets: secrets.NewBracket(secrets.NewPropertyVault(props, logger), logger),
		Reporting: reporting.NewEnvironment(logger, AppName, a.out, layout,
			reporting.NewResultsBackend(func() string { return layout().ResultsDir }, props, a.version),
			reporting.NewHTMLBackend(func() string { return layout().HTMLDir }),
		),
		Vision:    vision.NewLoader(props, logger),
		Issues:    issues.NewJiraTracker(props, logger, a.config.RunID),
		Publisher: reporting.NewPublisher(logger, layout, a.config.RunID),
		Sink:      reporting.NewPropertySink(logger, props, reporting.NewTableSink(a.out), fileSink),
	}
	if policy != nil {
		collab.Logging = policy
	}
	return collab, nil
}

// Start runs the session to completion. Test failures are reported as a
// TestFailureError, lifecycle and engine failures as a RuntimeError.
func (a *app) Start(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			a.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	a.done = make(chan struct{})
	a.running.Store(true)
	a.service.Start(ctx)

	a.config.Log.Info("Starting op-session", "runID", a.config.RunID)
	res, err := a.driver.Run(ctx, a.source)
	a.result = res
	if err != nil {
		var planErr *engine.PlanError
		if errors.As(err, &planErr) {
			a.config.Log.Error("Session bootstrap failed", "error", planErr.Err)
		} else {
			a.config.Log.Error("Runtime error running session", "error", err)
		}
		return NewRuntimeError(err)
	}

	if failure := a.failure(); failure != "" {
		a.config.Log.Warn("Session completed with failures, returning exit code 1")
		return NewTestFailureError(failure)
	}

	a.config.Log.Info("Session completed, exiting")
	go func() {
		a.shutdownCallback(nil)
	}()
	return nil
}

// failure describes why the session failed, or returns "" when it passed
func (a *app) failure() string {
	summary := a.controller.Summary()
	if summary != nil && summary.Failed > 0 {
		return fmt.Sprintf("%d of %d tests failed", summary.Failed, summary.Tally().Total())
	}
	if a.result != nil && len(a.result.FailedPackages) > 0 {
		return fmt.Sprintf("packages failed without a failing test: %v", a.result.FailedPackages)
	}
	return ""
}

func (a *app) Stop(ctx context.Context) error {
	a.config.Log.Info("Stopping op-session")
	if !a.running.Load() {
		a.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	a.running.Store(false)
	a.service.Shutdown()
	close(a.done)
	a.config.Log.Info("op-session stopped successfully")
	return nil
}

// Stopped implements the cliapp.Lifecycle interface.
func (a *app) Stopped() bool {
	return !a.running.Load()
}

// Controller returns the session controller
func (a *app) Controller() *Controller {
	return a.controller
}

// Result returns the engine result of the last Start
func (a *app) Result() *engine.Result {
	return a.result
}
