// Package vision loads the native computer-vision library used by image based
// assertions. Loading only verifies and registers the library path; tests
// resolve it through Path.
package vision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-session/properties"
)

// EnvLibraryPath is exported to child processes once the library is loaded
const EnvLibraryPath = "OP_SESSION_VISION_LIBRARY"

// Loader registers the vision library exactly once per process
type Loader struct {
	props  func() *properties.Properties
	log    log.Logger
	setenv func(key, value string) error

	once sync.Once
	path string
	err  error
}

func NewLoader(props func() *properties.Properties, logger log.Logger) *Loader {
	return &Loader{props: props, log: logger, setenv: os.Setenv}
}

// Load verifies the configured library. Without a configured library it is a no-op.
func (l *Loader) Load(ctx context.Context) error {
	l.once.Do(func() {
		l.err = l.load(ctx)
	})
	return l.err
}

func (l *Loader) load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	configured := l.props().String(properties.KeyVisionLibrary, "")
	if configured == "" {
		l.log.Debug("No vision library configured")
		return nil
	}
	abs, err := filepath.Abs(configured)
	if err != nil {
		return fmt.Errorf("failed to resolve vision library path '%s': %w", configured, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("vision library unavailable: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("vision library path '%s' is a directory", abs)
	}
	if err := l.setenv(EnvLibraryPath, abs); err != nil {
		return fmt.Errorf("failed to export vision library path: %w", err)
	}
	l.path = abs
	l.log.Info("Loaded vision library", "path", abs)
	return nil
}

// Path returns the loaded library path, empty when none was loaded
func (l *Loader) Path() string {
	return l.path
}
