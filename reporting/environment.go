package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/infra/op-session/properties"
	"github.com/ethereum-optimism/infra/op-session/types"
)

// Backend is a report backend prepared before the first test runs
type Backend interface {
	Name() string
	Initialize(ctx context.Context) error
}

// Environment prepares report output and prints the session banners
type Environment struct {
	log      log.Logger
	name     string
	out      io.Writer
	layout   func() Layout
	backends []Backend
}

// NewEnvironment creates a reporting environment. layout is resolved lazily
// because properties are only available after bootstrap starts.
func NewEnvironment(logger log.Logger, name string, out io.Writer, layout func() Layout, backends ...Backend) *Environment {
	if out == nil {
		out = os.Stdout
	}
	return &Environment{
		log:      logger,
		name:     name,
		out:      out,
		layout:   layout,
		backends: backends,
	}
}

// CleanPriorArtifacts removes the results and html output of earlier sessions
func (e *Environment) CleanPriorArtifacts(ctx context.Context) error {
	l := e.layout()
	for _, dir := range []string{l.ResultsDir, l.HTMLDir, l.SummaryDir} {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", dir, err)
		}
		for _, entry := range entries {
			if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
				return fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
			}
		}
		e.log.Debug("Cleaned prior artifacts", "dir", dir, "removed", len(entries))
	}
	return nil
}

// InitializeBackends initializes all backends concurrently
func (e *Environment) InitializeBackends(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range e.backends {
		b := b
		g.Go(func() error {
			if err := b.Initialize(gctx); err != nil {
				return fmt.Errorf("failed to initialize %s backend: %w", b.Name(), err)
			}
			e.log.Debug("Initialized reporting backend", "backend", b.Name())
			return nil
		})
	}
	return g.Wait()
}

// LogVersionBanner prints the name and version of the tool
func (e *Environment) LogVersionBanner(version string) {
	RenderVersionBanner(e.out, e.name, version)
}

// LogClosureBanner prints the final counts of the session
func (e *Environment) LogClosureBanner(summary *types.ExecutionSummary) {
	RenderClosureBanner(e.out, summary)
}

// ResultsBackend writes the environment description consumed by report viewers
type ResultsBackend struct {
	dir     func() string
	props   func() *properties.Properties
	version string
}

func NewResultsBackend(dir func() string, props func() *properties.Properties, version string) *ResultsBackend {
	return &ResultsBackend{dir: dir, props: props, version: version}
}

func (b *ResultsBackend) Name() string { return "results" }

func (b *ResultsBackend) Initialize(ctx context.Context) error {
	dir := b.dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	redacted := b.props().Redacted()
	keys := make([]string, 0, len(redacted))
	for k := range redacted {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	fmt.Fprintf(&sb, "go.version=%s\n", runtime.Version())
	fmt.Fprintf(&sb, "os=%s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&sb, "op-session.version=%s\n", b.version)
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s=%s\n", k, redacted[k])
	}
	if err := os.WriteFile(filepath.Join(dir, "environment.properties"), []byte(sb.String()), 0644); err != nil {
		return err
	}

	hostname, _ := os.Hostname()
	executor, err := json.MarshalIndent(map[string]string{
		"name":    hostname,
		"type":    "op-session",
		"version": b.version,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "executor.json"), executor, 0644)
}

// HTMLBackend prepares the html report directory and its stylesheet
type HTMLBackend struct {
	dir func() string
}

func NewHTMLBackend(dir func() string) *HTMLBackend {
	return &HTMLBackend{dir: dir}
}

func (b *HTMLBackend) Name() string { return "html" }

func (b *HTMLBackend) Initialize(ctx context.Context) error {
	dir := b.dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "style.css"), []byte(stylesheet), 0644)
}
