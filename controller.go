package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-session/collector"
	"github.com/ethereum-optimism/infra/op-session/metrics"
	"github.com/ethereum-optimism/infra/op-session/properties"
	"github.com/ethereum-optimism/infra/op-session/types"
)

// State is the lifecycle state of a session controller
type State int32

const (
	StateIdle State = iota
	StateBootstrapped
	StateRunning
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateBootstrapped:
		return "BOOTSTRAPPED"
	case StateRunning:
		return "RUNNING"
	case StateTornDown:
		return "TORN_DOWN"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(s))
	}
}

// MarshalText renders the state name in JSON payloads
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Integrity fault kinds
const (
	FaultDuplicate  = "duplicate"
	FaultNonLeaf    = "non_leaf"
	FaultOutOfState = "out_of_state"
)

// Lifecycle step names
const (
	StepDiscreteLoggingOn           = "discrete-logging-on"
	StepPropertiesInitialize        = "properties-initialize"
	StepEnvironmentConfigure        = "environment-configure"
	StepSecretsDecrypt              = "secrets-decrypt"
	StepDiscreteLoggingOff          = "discrete-logging-off"
	StepVersionBanner               = "version-banner"
	StepVisionLibraryLoad           = "vision-library-load"
	StepPriorReportCleanup          = "prior-report-cleanup"
	StepReportingBackendsInitialize = "reporting-backends-initialize"
	StepLoggingPolicyRestore        = "logging-policy-restore"
	StepIssueTrackerSync            = "issue-tracker-sync"
	StepSecretsEncrypt              = "secrets-encrypt"
	StepReportArchive               = "report-archive"
	StepReportViewerOpen            = "report-viewer-open"
	StepCaptureEndTime              = "capture-end-time"
	StepSummaryEmit                 = "summary-emit"
	StepClosureBanner               = "closure-banner"
)

// ControllerConfig holds the per-session settings of a Controller
type ControllerConfig struct {
	RunID   string
	Version string
	// Guard gates the bootstrap. Defaults to ProcessGuard.
	Guard *Guard
	// Now defaults to time.Now
	Now func() time.Time
}

// Status is a point-in-time view of the controller used by the status endpoint
type Status struct {
	RunID           string      `json:"runId"`
	State           State       `json:"state"`
	Opens           int64       `json:"opens"`
	Bootstrapped    bool        `json:"bootstrapped"`
	IntegrityFaults int64       `json:"integrityFaults"`
	Tally           types.Tally `json:"tally"`
	StartTime       time.Time   `json:"startTime"`
	EndTime         time.Time   `json:"endTime"`
}

// Controller drives one test session: bootstrap on plan start, classification of
// every terminal test event, and teardown on close.
type Controller struct {
	log    log.Logger
	cfg    ControllerConfig
	collab Collaborators

	state    atomic.Int32
	opens    atomic.Int64
	faults   atomic.Int64
	inFlight sync.Map // key -> struct{}
	session  *collector.SessionState
	agg      *collector.SummaryAggregator

	// eventMu is held shared by per-test events and exclusively while closing,
	// so every accepted event is in both the session state and the aggregator.
	eventMu sync.RWMutex

	bootstrapErr error
	closeOnce    sync.Once
	closeErr     error
	summary      atomic.Pointer[types.ExecutionSummary]

	bootstrap *Pipeline
	teardown  *Pipeline
}

var _ Listener = (*Controller)(nil)

// NewController creates a controller in the IDLE state
func NewController(logger log.Logger, cfg ControllerConfig, collab Collaborators) *Controller {
	if cfg.Guard == nil {
		cfg.Guard = ProcessGuard
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	c := &Controller{
		log:     logger,
		cfg:     cfg,
		collab:  collab,
		session: collector.NewSessionState(),
		agg:     collector.NewSummaryAggregator(),
	}
	c.bootstrap = NewPipeline(PhaseBootstrap, logger, c.bootstrapSteps()...)
	c.teardown = NewPipeline(PhaseTeardown, logger, c.teardownSteps()...)
	return c
}

func (c *Controller) bootstrapSteps() []Step {
	return []Step{
		{Name: StepDiscreteLoggingOn, Run: c.setDiscrete(true)},
		{Name: StepPropertiesInitialize, Run: func(ctx context.Context) error {
			if c.collab.Properties == nil {
				return nil
			}
			return c.collab.Properties.Initialize(ctx)
		}},
		{Name: StepEnvironmentConfigure, Run: func(ctx context.Context) error {
			if c.collab.Structure != nil {
				if err := c.collab.Structure.Ensure(ctx); err != nil {
					return fmt.Errorf("failed to create project structure: %w", err)
				}
			}
			if c.collab.Proxy != nil {
				if err := c.collab.Proxy.Configure(ctx); err != nil {
					return fmt.Errorf("failed to configure proxy: %w", err)
				}
			}
			return nil
		}},
		{Name: StepSecretsDecrypt, Run: func(ctx context.Context) error {
			if c.collab.Secrets == nil {
				return nil
			}
			return c.collab.Secrets.Decrypt(ctx)
		}},
		{Name: StepDiscreteLoggingOff, Run: c.setDiscrete(false)},
		{Name: StepVersionBanner, Run: func(ctx context.Context) error {
			if c.collab.Reporting != nil {
				c.collab.Reporting.LogVersionBanner(c.cfg.Version)
			}
			return nil
		}},
		{Name: StepVisionLibraryLoad, Run: func(ctx context.Context) error {
			if c.collab.Vision == nil {
				return nil
			}
			return c.collab.Vision.Load(ctx)
		}},
		{Name: StepPriorReportCleanup, Run: func(ctx context.Context) error {
			if c.collab.Reporting == nil {
				return nil
			}
			return c.collab.Reporting.CleanPriorArtifacts(ctx)
		}},
		{Name: StepReportingBackendsInitialize, Run: func(ctx context.Context) error {
			if c.collab.Reporting == nil {
				return nil
			}
			return c.collab.Reporting.InitializeBackends(ctx)
		}},
		// Always, so a failed bootstrap does not leave logging suppressed
		{Name: StepLoggingPolicyRestore, Always: true, Run: func(ctx context.Context) error {
			if c.collab.Logging == nil {
				return nil
			}
			c.collab.Logging.SetDiscrete(c.discreteDefault())
			c.collab.Logging.SetDebugMode(c.properties().Bool(properties.KeyDebugMode, false))
			return nil
		}},
	}
}

func (c *Controller) teardownSteps() []Step {
	return []Step{
		{Name: StepDiscreteLoggingOn, Run: c.setDiscrete(true)},
		{Name: StepIssueTrackerSync, BestEffort: true, Run: func(ctx context.Context) error {
			if c.collab.Issues == nil {
				return nil
			}
			return c.collab.Issues.SyncExecutionStatus(ctx, c.session.Tally())
		}},
		{Name: StepSecretsEncrypt, Always: true, Run: func(ctx context.Context) error {
			if c.collab.Secrets == nil {
				return nil
			}
			return c.collab.Secrets.Encrypt(ctx)
		}},
		{Name: StepReportArchive, Run: func(ctx context.Context) error {
			if c.collab.Publisher == nil {
				return nil
			}
			path, err := c.collab.Publisher.Archive(ctx)
			if err != nil {
				return err
			}
			c.log.Info("Archived reports", "path", path)
			return nil
		}},
		{Name: StepReportViewerOpen, Run: func(ctx context.Context) error {
			if c.collab.Publisher == nil || !c.properties().Bool(properties.KeyViewerOpen, false) {
				return nil
			}
			return c.collab.Publisher.OpenViewer(ctx)
		}},
		{Name: StepCaptureEndTime, Always: true, Run: func(ctx context.Context) error {
			c.session.MarkEnded(c.cfg.Now())
			return nil
		}},
		{Name: StepSummaryEmit, Always: true, Run: func(ctx context.Context) error {
			c.emitSummary(ctx)
			return nil
		}},
		{Name: StepClosureBanner, Always: true, Run: func(ctx context.Context) error {
			if c.collab.Logging != nil {
				c.collab.Logging.SetDiscrete(false)
			}
			if c.collab.Reporting != nil {
				c.collab.Reporting.LogClosureBanner(c.Summary())
			}
			return nil
		}},
	}
}

func (c *Controller) setDiscrete(on bool) func(context.Context) error {
	return func(context.Context) error {
		if c.collab.Logging != nil {
			c.collab.Logging.SetDiscrete(on)
		}
		return nil
	}
}

// discreteDefault is the configured discrete-logging mode outside of the
// bootstrap and teardown brackets
func (c *Controller) discreteDefault() bool {
	return c.properties().Bool(properties.KeyDiscreteLogging, false)
}

func (c *Controller) properties() *properties.Properties {
	if c.collab.Properties == nil {
		return properties.New(nil)
	}
	return c.collab.Properties.Properties()
}

// BootstrapSteps returns the bootstrap step names in execution order
func (c *Controller) BootstrapSteps() []string {
	return c.bootstrap.Names()
}

// TeardownSteps returns the teardown step names in execution order
func (c *Controller) TeardownSteps() []string {
	return c.teardown.Names()
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	return State(c.state.Load())
}

// SessionOpened records the session open. Re-entrant opens are accepted.
func (c *Controller) SessionOpened(ctx context.Context) {
	n := c.opens.Add(1)
	if n > 1 {
		c.log.Debug("Session opened again", "opens", n, "runID", c.cfg.RunID)
		return
	}
	c.log.Info("Session opened", "runID", c.cfg.RunID)
}

// PlanStarted runs the bootstrap on the first call in the process. Later calls,
// and calls on other controllers sharing the guard, only mark the session started.
func (c *Controller) PlanStarted(ctx context.Context) error {
	if c.opens.Load() == 0 {
		c.log.Warn("Plan started without a session open", "runID", c.cfg.RunID)
	}
	if c.State() == StateTornDown {
		c.recordFault(FaultOutOfState, "plan started after session closed")
		return nil
	}

	c.session.MarkStarted(c.cfg.Now())
	ran := c.cfg.Guard.Do(func() {
		c.log.Info("Bootstrapping session", "runID", c.cfg.RunID, "steps", len(c.bootstrap.Names()))
		_, c.bootstrapErr = c.bootstrap.Run(ctx)
	})
	c.state.CompareAndSwap(int32(StateIdle), int32(StateBootstrapped))
	if !ran {
		c.log.Debug("Bootstrap already done", "runID", c.cfg.RunID)
		return nil
	}
	if c.bootstrapErr != nil {
		return fmt.Errorf("session bootstrap failed: %w", c.bootstrapErr)
	}
	return nil
}

// TestStarted is bookkeeping only
func (c *Controller) TestStarted(ctx context.Context, id types.TestIdentifier) {
	if !id.IsTest() {
		return
	}
	if _, loaded := c.inFlight.LoadOrStore(id.Key(), struct{}{}); !loaded {
		metrics.TestStarted()
	}
	c.log.Debug("Test started", "test", id.DisplayName, "id", id.Key())
}

// settle releases the in-flight slot taken by TestStarted. A test that started as
// a leaf may finish as a container once its subtests are known.
func (c *Controller) settle(id types.TestIdentifier) {
	if _, ok := c.inFlight.LoadAndDelete(id.Key()); ok {
		metrics.TestSettled()
	}
}

// TestSkipped classifies a skipped leaf test
func (c *Controller) TestSkipped(ctx context.Context, id types.TestIdentifier, reason string) {
	c.afterInvocation(ctx, id)
	c.settle(id)
	if !id.IsTest() {
		c.log.Debug("Ignoring skipped container", "id", id.Key())
		return
	}
	c.record(id, collector.SkippedSignal(reason))
}

// TestFinished classifies a finished leaf test. Container results are ignored.
func (c *Controller) TestFinished(ctx context.Context, id types.TestIdentifier, result types.ExecutionResult) {
	c.afterInvocation(ctx, id)
	c.settle(id)
	if !id.IsTest() {
		c.log.Debug("Ignoring finished container", "id", id.Key(), "status", result.Status)
		return
	}
	c.record(id, collector.FinishedSignal(result))
}

func (c *Controller) afterInvocation(ctx context.Context, id types.TestIdentifier) {
	if c.collab.Logging != nil {
		c.collab.Logging.SetDiscrete(c.discreteDefault())
	}
	for _, hook := range c.collab.Hooks {
		hook.AfterInvocation(ctx, id)
	}
}

func (c *Controller) record(id types.TestIdentifier, sig collector.Signal) {
	c.eventMu.RLock()
	defer c.eventMu.RUnlock()

	switch c.State() {
	case StateBootstrapped:
		c.state.CompareAndSwap(int32(StateBootstrapped), int32(StateRunning))
	case StateRunning:
	default:
		c.recordFault(FaultOutOfState, "test event outside of a running session", "id", id.Key(), "state", c.State())
		return
	}

	cls := collector.Classify(sig)
	if err := c.session.Record(id, cls); err != nil {
		kind := FaultOutOfState
		if errors.Is(err, collector.ErrDuplicate) {
			kind = FaultDuplicate
		}
		c.recordFault(kind, "dropping test event", "id", id.Key(), "outcome", cls.Outcome, "err", err)
		return
	}
	if !c.agg.Append(id, cls.Message, cls.Outcome) {
		c.recordFault(FaultNonLeaf, "identifier is not a test", "id", id.Key())
		return
	}
	metrics.RecordOutcome(cls.Outcome)
	c.log.Debug("Test classified", "test", id.DisplayName, "outcome", cls.Outcome)
}

func (c *Controller) recordFault(kind string, msg string, kv ...any) {
	c.faults.Add(1)
	metrics.RecordIntegrityFault(kind)
	c.log.Warn(msg, append([]any{"fault", kind}, kv...)...)
}

// SessionClosed freezes the session and runs the teardown. Only the first call
// has an effect.
func (c *Controller) SessionClosed(ctx context.Context) error {
	c.closeOnce.Do(func() {
		if c.State() == StateIdle {
			c.log.Warn("Session closed before the plan started", "runID", c.cfg.RunID)
		}
		c.eventMu.Lock()
		c.state.Store(int32(StateTornDown))
		c.session.Freeze()
		c.eventMu.Unlock()

		c.log.Info("Tearing down session", "runID", c.cfg.RunID)
		if _, err := c.teardown.Run(ctx); err != nil {
			c.closeErr = fmt.Errorf("session teardown failed: %w", err)
		}
	})
	return c.closeErr
}

// emitSummary builds the summary from the frozen session and hands it to the
// sink. It never fails.
func (c *Controller) emitSummary(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Summary emission panicked", "panic", r)
		}
	}()

	snap, err := c.session.Snapshot()
	if err != nil {
		c.log.Error("Session state unavailable for summary", "err", err)
	}
	summary := c.agg.Summary(c.cfg.RunID, snap.StartTime, snap.EndTime)
	if summary.Tally() != snap.Tally() && err == nil {
		c.log.Warn("Summary counts differ from session state", "summary", summary.Tally(), "session", snap.Tally())
	}
	c.summary.Store(summary)
	metrics.RecordSession(c.cfg.RunID, summary.Tally(), summary.Duration())

	if c.collab.Sink == nil {
		return
	}
	if err := c.collab.Sink.Emit(ctx, summary); err != nil {
		c.log.Error("Failed to emit summary", "err", err)
	}
}

// Summary returns the execution summary, nil until the session is closed
func (c *Controller) Summary() *types.ExecutionSummary {
	return c.summary.Load()
}

// Snapshot returns the frozen session collections
func (c *Controller) Snapshot() (collector.Snapshot, error) {
	return c.session.Snapshot()
}

// Status returns the live controller status
func (c *Controller) Status() Status {
	start, end := c.session.Times()
	return Status{
		RunID:           c.cfg.RunID,
		State:           c.State(),
		Opens:           c.opens.Load(),
		Bootstrapped:    c.cfg.Guard.Initialized(),
		IntegrityFaults: c.faults.Load(),
		Tally:           c.session.Tally(),
		StartTime:       start,
		EndTime:         end,
	}
}
