package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// go test invocation
const (
	DefaultGoBinary    = "go"
	TestCommand        = "test"
	JSONFlag           = "-json"
	CountFlag          = "-count=1"
	TimeoutFlag        = "-timeout"
	AllPackagesPattern = "./..."
	StdinInput         = "-"
)

// Executor runs go test -json in a directory and exposes its event stream
type Executor struct {
	testDir    string
	goBinary   string
	timeout    time.Duration
	args       []string
	log        log.Logger
	cmdBuilder func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewExecutor creates an executor. args are passed to go test after the
// executor's own flags; without package patterns ./... is used.
func NewExecutor(testDir string, goBinary string, timeout time.Duration, args []string, logger log.Logger) (*Executor, error) {
	if testDir == "" {
		return nil, fmt.Errorf("testDir cannot be empty")
	}
	if goBinary == "" {
		goBinary = DefaultGoBinary
	}
	return &Executor{
		testDir:    testDir,
		goBinary:   goBinary,
		timeout:    timeout,
		args:       args,
		log:        logger,
		cmdBuilder: exec.CommandContext,
	}, nil
}

func (e *Executor) buildTestArgs() []string {
	args := []string{TestCommand, JSONFlag, CountFlag}
	if e.timeout > 0 {
		args = append(args, TimeoutFlag, e.timeout.String())
	}
	args = append(args, e.args...)
	if !hasPackagePattern(e.args) {
		args = append(args, AllPackagesPattern)
	}
	return args
}

// hasPackagePattern reports whether args name packages. Flags and their
// values are not packages.
func hasPackagePattern(args []string) bool {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "-") {
			if !strings.Contains(a, "=") && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") && flagTakesValue(a) {
				i++
			}
			continue
		}
		return true
	}
	return false
}

var valueFlags = map[string]bool{
	"run": true, "skip": true, "tags": true, "timeout": true, "parallel": true,
	"count": true, "cpu": true, "p": true, "bench": true, "coverprofile": true,
}

func flagTakesValue(flag string) bool {
	return valueFlags[strings.TrimLeft(flag, "-")]
}

// Source starts go test when the driver asks for the stream
func (e *Executor) Source() Source {
	return func(ctx context.Context) (io.ReadCloser, error) {
		args := e.buildTestArgs()
		cmd := e.cmdBuilder(ctx, e.goBinary, args...)
		cmd.Dir = e.testDir
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to open go test output: %w", err)
		}
		stderr := &bytes.Buffer{}
		cmd.Stderr = stderr

		e.log.Info("Running tests", "dir", e.testDir, "cmd", e.goBinary+" "+strings.Join(args, " "))
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("failed to start go test: %w", err)
		}
		return &commandStream{ReadCloser: stdout, cmd: cmd, stderr: stderr}, nil
	}
}

// commandStream waits for the command when closed
type commandStream struct {
	io.ReadCloser
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	once   sync.Once
	err    error
}

func (s *commandStream) Close() error {
	s.once.Do(func() {
		// drain so the process is never blocked on a full pipe
		_, _ = io.Copy(io.Discard, s.ReadCloser)
		s.err = commandError(s.cmd.Wait(), s.stderr.String())
	})
	return s.err
}

// commandError maps the go test exit status. Exit code 1 means tests failed,
// which the event stream already reports.
func commandError(err error, stderr string) error {
	if err == nil {
		return nil
	}
	exitErr := &exec.ExitError{}
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == 1 {
			return nil
		}
		if exitErr.ExitCode() == 2 {
			return fmt.Errorf("test compilation failed: %s", strings.TrimSpace(stderr))
		}
		return fmt.Errorf("test execution failed with exit code %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr))
	}
	return fmt.Errorf("failed to run tests: %w", err)
}

// FileSource replays a recorded test2json stream. "-" reads stdin.
func FileSource(path string) Source {
	return func(ctx context.Context) (io.ReadCloser, error) {
		if path == StdinInput {
			return io.NopCloser(os.Stdin), nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open recorded events: %w", err)
		}
		return f, nil
	}
}

// ReaderSource replays events from r
func ReaderSource(r io.Reader) Source {
	return func(ctx context.Context) (io.ReadCloser, error) {
		return io.NopCloser(r), nil
	}
}
