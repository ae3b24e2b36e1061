package session

import (
	"context"

	"github.com/ethereum-optimism/infra/op-session/properties"
	"github.com/ethereum-optimism/infra/op-session/types"
)

// Listener receives the six session events emitted by a test engine.
// Per-test events may be delivered concurrently.
type Listener interface {
	SessionOpened(ctx context.Context)
	PlanStarted(ctx context.Context) error
	TestStarted(ctx context.Context, id types.TestIdentifier)
	TestSkipped(ctx context.Context, id types.TestIdentifier, reason string)
	TestFinished(ctx context.Context, id types.TestIdentifier, result types.ExecutionResult)
	SessionClosed(ctx context.Context) error
}

// PropertyStore loads the session properties. Initialize must be idempotent.
type PropertyStore interface {
	Initialize(ctx context.Context) error
	Properties() *properties.Properties
}

// LoggingPolicy holds the process-wide logging flags
type LoggingPolicy interface {
	SetDiscrete(on bool)
	SetDebugMode(on bool)
}

// ProxyConfigurator applies the network proxy from the properties
type ProxyConfigurator interface {
	Configure(ctx context.Context) error
}

// ProjectStructure creates the output directories of the project
type ProjectStructure interface {
	Ensure(ctx context.Context) error
}

// SecretsBracket decrypts secrets before tests and seals them afterwards
type SecretsBracket interface {
	Decrypt(ctx context.Context) error
	Encrypt(ctx context.Context) error
}

// ReportingEnvironment prepares report backends and prints banners
type ReportingEnvironment interface {
	CleanPriorArtifacts(ctx context.Context) error
	InitializeBackends(ctx context.Context) error
	LogVersionBanner(version string)
	LogClosureBanner(summary *types.ExecutionSummary)
}

// VisionLibraryLoader loads the native vision library
type VisionLibraryLoader interface {
	Load(ctx context.Context) error
}

// IssueTracker reports the execution status to an external tracker
type IssueTracker interface {
	SyncExecutionStatus(ctx context.Context, tally types.Tally) error
}

// ArtifactPublisher packages and presents the reports
type ArtifactPublisher interface {
	Archive(ctx context.Context) (string, error)
	OpenViewer(ctx context.Context) error
}

// SummarySink receives the final execution summary
type SummarySink interface {
	Emit(ctx context.Context, summary *types.ExecutionSummary) error
}

// PostInvocationHook runs after each test invocation, before classification
type PostInvocationHook interface {
	AfterInvocation(ctx context.Context, id types.TestIdentifier)
}

// PostInvocationHookFunc adapts a function to PostInvocationHook
type PostInvocationHookFunc func(ctx context.Context, id types.TestIdentifier)

func (f PostInvocationHookFunc) AfterInvocation(ctx context.Context, id types.TestIdentifier) {
	f(ctx, id)
}

// Collaborators are the external services driven by the controller.
// Every field is optional; a nil collaborator turns its step into a no-op.
type Collaborators struct {
	Properties PropertyStore
	Logging    LoggingPolicy
	Proxy      ProxyConfigurator
	Structure  ProjectStructure
	Secrets    SecretsBracket
	Reporting  ReportingEnvironment
	Vision     VisionLibraryLoader
	Issues     IssueTracker
	Publisher  ArtifactPublisher
	Sink       SummarySink
	Hooks      []PostInvocationHook
}

// ProjectStructureFunc adapts a function to ProjectStructure
type ProjectStructureFunc func(ctx context.Context) error

func (f ProjectStructureFunc) Ensure(ctx context.Context) error {
	return f(ctx)
}
