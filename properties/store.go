package properties

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables that override property keys.
// OP_SESSION_PROP_REPORT_VIEWER_OPEN overrides report.viewer.open.
const EnvPrefix = "OP_SESSION_PROP_"

// Store loads property files from a directory. Initialize is idempotent.
type Store struct {
	dir     string
	log     log.Logger
	environ func() []string

	mu    sync.Mutex
	done  bool
	err   error
	props *Properties
}

// NewStore creates a store reading *.yaml, *.yml and *.toml files from dir. An empty
// dir means environment overrides only.
func NewStore(dir string, logger log.Logger) *Store {
	return &Store{
		dir:     dir,
		log:     logger,
		environ: os.Environ,
		props:   New(nil),
	}
}

// Initialize loads the property files once. Later calls return the first result.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return s.err
	}
	s.done = true

	values := make(map[string]string)
	if s.dir != "" {
		files, err := propertyFiles(s.dir)
		if err != nil {
			s.err = err
			return err
		}
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				s.err = err
				return err
			}
			if err := loadFile(f, values); err != nil {
				s.err = fmt.Errorf("failed to load properties from %s: %w", f, err)
				return s.err
			}
			s.log.Debug("Loaded property file", "file", f)
		}
	}
	applyEnv(s.environ(), values)
	s.props = New(values)
	s.log.Info("Properties initialized", "dir", s.dir, "count", s.props.Len())
	return nil
}

// Properties returns the loaded properties. Before Initialize it is empty.
func (s *Store) Properties() *Properties {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.props
}

func propertyFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read property directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".toml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func loadFile(path string, values map[string]string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	raw := make(map[string]any)
	if strings.ToLower(filepath.Ext(path)) == ".toml" {
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return err
		}
	} else if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	flatten("", raw, values)
	return nil
}

func applyEnv(environ []string, values map[string]string) {
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
		if key == "" {
			continue
		}
		values[strings.ReplaceAll(key, "_", ".")] = value
	}
}
