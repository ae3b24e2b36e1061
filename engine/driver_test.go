package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-session/types"
)

type call struct {
	Kind    string
	ID      types.TestIdentifier
	Status  types.ExecutionStatus
	Message string
}

// fakeListener records listener calls
type fakeListener struct {
	mu       sync.Mutex
	calls    []call
	opened   int
	closed   int
	planErr  error
	closeErr error
}

func (f *fakeListener) add(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeListener) SessionOpened(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
}

func (f *fakeListener) PlanStarted(context.Context) error { return f.planErr }

func (f *fakeListener) TestStarted(_ context.Context, id types.TestIdentifier) {
	f.add(call{Kind: "started", ID: id})
}

func (f *fakeListener) TestSkipped(_ context.Context, id types.TestIdentifier, reason string) {
	f.add(call{Kind: "skipped", ID: id, Message: reason})
}

func (f *fakeListener) TestFinished(_ context.Context, id types.TestIdentifier, result types.ExecutionResult) {
	msg := ""
	if result.Cause != nil {
		msg = result.Cause.Error()
	}
	f.add(call{Kind: "finished", ID: id, Status: result.Status, Message: msg})
}

func (f *fakeListener) SessionClosed(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return f.closeErr
}

func (f *fakeListener) terminal(key string) (call, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.ID.Key() == key && c.Kind != "started" {
			return c, true
		}
	}
	return call{}, false
}

func (f *fakeListener) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

const timeoutForTest = time.Minute

func testLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func key(pkg, test string) string {
	if test == "" {
		return PackageID(pkg).Key()
	}
	return TestID(pkg, test, types.TestTypeTest).Key()
}

func openTestdata(t *testing.T, name string) Source {
	t.Helper()
	return FileSource(filepath.Join("testdata", name))
}

func TestDriver_Run(t *testing.T) {
	l := &fakeListener{}
	d := NewDriver(l, testLogger())

	res, err := d.Run(context.Background(), openTestdata(t, "session.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 1, l.opened)
	assert.Equal(t, 1, l.closed)
	assert.Equal(t, 3, res.Packages)
	assert.Equal(t, []string{"example.com/broken"}, res.FailedPackages)

	tests := []struct {
		key     string
		kind    string
		status  types.ExecutionStatus
		message string
		leaf    bool
	}{
		{key: key("example.com/a", "TestA"), kind: "finished", status: types.StatusSuccessful, leaf: true},
		{key: key("example.com/a", "TestB"), kind: "skipped", message: "b_test.go:5: ignored", leaf: true},
		{key: key("example.com/a", "TestC"), kind: "finished", status: types.StatusFailed, message: "c_test.go:9: boom", leaf: true},
		{key: key("example.com/a", "TestD/one"), kind: "finished", status: types.StatusSuccessful, leaf: true},
		{key: key("example.com/a", "TestD/two"), kind: "finished", status: types.StatusFailed, message: "d_test.go:20: want 2, got 3", leaf: true},
		{key: key("example.com/a", "TestD"), kind: "finished", status: types.StatusFailed},
		{key: key("example.com/a", ""), kind: "finished", status: types.StatusFailed},
		{key: key("example.com/broken", ""), kind: "finished", status: types.StatusFailed, message: "# example.com/broken\nbroken.go:3:1: syntax error: non-declaration statement outside function body"},
		{key: key("example.com/empty", ""), kind: "skipped"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			c, ok := l.terminal(tt.key)
			require.True(t, ok, "no terminal event")
			assert.Equal(t, tt.kind, c.Kind)
			if tt.kind == "finished" {
				assert.Equal(t, tt.status, c.Status)
			}
			if tt.message != "" {
				assert.Equal(t, tt.message, c.Message)
			}
			assert.Equal(t, tt.leaf, c.ID.IsTest())
		})
	}

	// six tests and three packages
	assert.Equal(t, 9, l.count("started"))
}

func TestDriver_IdentifierSegments(t *testing.T) {
	id := TestID("example.com/a", "TestD/two", types.TestTypeTest)
	assert.Equal(t, "[engine:go-test]/[package:example.com/a]/[test:TestD]/[subtest:two]", id.Key())
	assert.Equal(t, "two", id.DisplayName)
	assert.Equal(t, "example.com/a.TestD/two", id.LegacyReportingName)
	assert.Equal(t, "example.com/a.two", id.SuiteQualifiedName())
	assert.Equal(t, "[engine:go-test]/[package:example.com/a]/[test:TestD]", id.ParentID.String())

	pkg := PackageID("example.com/a")
	assert.False(t, pkg.IsTest())
	assert.Equal(t, "[engine:go-test]", pkg.ParentID.String())
}

func TestDriver_TruncatedStreamAbortsOpenTests(t *testing.T) {
	stream := strings.Join([]string{
		`{"Action":"start","Package":"p"}`,
		`{"Action":"run","Package":"p","Test":"TestHang"}`,
		`{"Action":"output","Package":"p","Test":"TestHang","Output":"=== RUN   TestHang\n"}`,
		`{"Action":"output","Package":"p","Output":"panic: test timed out after 1s\n"}`,
	}, "\n")
	l := &fakeListener{}
	res, err := NewDriver(l, testLogger()).Run(context.Background(), ReaderSource(strings.NewReader(stream)))
	require.NoError(t, err)

	c, ok := l.terminal(key("p", "TestHang"))
	require.True(t, ok)
	assert.Equal(t, types.StatusAborted, c.Status)
	assert.Equal(t, "panic: test timed out after 1s", c.Message)
	assert.Empty(t, res.FailedPackages)
}

func TestDriver_PlanFailureStillCloses(t *testing.T) {
	l := &fakeListener{planErr: errors.New("decrypt failed")}
	opened := false
	src := func(context.Context) (io.ReadCloser, error) {
		opened = true
		return io.NopCloser(strings.NewReader("")), nil
	}

	_, err := NewDriver(l, testLogger()).Run(context.Background(), src)
	require.Error(t, err)
	var planErr *PlanError
	require.ErrorAs(t, err, &planErr)
	assert.ErrorContains(t, err, "decrypt failed")
	assert.False(t, opened, "tests must not start before bootstrap completed")
	assert.Equal(t, 1, l.closed)
}

func TestDriver_CloseErrorIsReturned(t *testing.T) {
	l := &fakeListener{closeErr: errors.New("encrypt failed")}
	_, err := NewDriver(l, testLogger()).Run(context.Background(), ReaderSource(strings.NewReader("")))
	require.ErrorContains(t, err, "encrypt failed")
}

func TestDriver_SourceError(t *testing.T) {
	l := &fakeListener{}
	_, err := NewDriver(l, testLogger()).Run(context.Background(), FileSource(filepath.Join(t.TempDir(), "missing.jsonl")))
	require.ErrorContains(t, err, "failed to open recorded events")
	assert.Equal(t, 1, l.closed)
}

func TestDriver_ManyPackagesConcurrently(t *testing.T) {
	var b strings.Builder
	const packages, perPackage = 20, 50
	for p := 0; p < packages; p++ {
		for i := 0; i < perPackage; i++ {
			fmt.Fprintf(&b, `{"Action":"run","Package":"p%d","Test":"Test%d"}`+"\n", p, i)
		}
	}
	for i := 0; i < perPackage; i++ {
		for p := 0; p < packages; p++ {
			fmt.Fprintf(&b, `{"Action":"pass","Package":"p%d","Test":"Test%d"}`+"\n", p, i)
		}
	}
	for p := 0; p < packages; p++ {
		fmt.Fprintf(&b, `{"Action":"pass","Package":"p%d"}`+"\n", p)
	}

	l := &fakeListener{}
	res, err := NewDriver(l, testLogger()).Run(context.Background(), ReaderSource(strings.NewReader(b.String())))
	require.NoError(t, err)
	assert.Equal(t, packages, res.Packages)
	assert.Equal(t, packages*perPackage+packages, l.count("finished"))
}

func TestDecode_SkipsNonEvents(t *testing.T) {
	input := "# building\n{not json}\n\n" + `{"Action":"pass","Package":"p","Test":"TestX"}` + "\nok  \tp\t0.1s\n"
	var got []TestEvent
	require.NoError(t, Decode(strings.NewReader(input), func(ev TestEvent) error {
		got = append(got, ev)
		return nil
	}))
	require.Len(t, got, 1)
	assert.Equal(t, "TestX", got[0].Test)
	assert.True(t, got[0].IsTerminal())
}

func TestCleanOutput(t *testing.T) {
	lines := []string{
		"=== RUN   TestC\n",
		"    c_test.go:9: \x1b[31mboom\x1b[0m\n",
		"--- FAIL: TestC (0.00s)\n",
		"FAIL\n",
	}
	assert.Equal(t, "c_test.go:9: boom", cleanOutput(lines))
	assert.Empty(t, cleanOutput(nil))
}

func TestExecutor_BuildArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{name: "defaults", want: []string{"test", "-json", "-count=1", "-timeout", "1m0s", "./..."}},
		{name: "flags only", args: []string{"-run", "TestA", "-v"}, want: []string{"test", "-json", "-count=1", "-timeout", "1m0s", "-run", "TestA", "-v", "./..."}},
		{name: "explicit package", args: []string{"-run=TestA", "./pkg/..."}, want: []string{"test", "-json", "-count=1", "-timeout", "1m0s", "-run=TestA", "./pkg/..."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewExecutor(t.TempDir(), "", timeoutForTest, tt.args, testLogger())
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.buildTestArgs())
			assert.Equal(t, DefaultGoBinary, e.goBinary)
		})
	}

	_, err := NewExecutor("", "go", 0, nil, testLogger())
	require.Error(t, err)
}

func TestExecutor_Source(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	tests := []struct {
		name    string
		script  string
		wantErr string
	}{
		{
			name:   "tests failed",
			script: `echo '{"Action":"fail","Package":"p","Test":"TestA"}'; echo '{"Action":"fail","Package":"p"}'; exit 1`,
		},
		{
			name:    "go command error",
			script:  `echo 'bad flag' >&2; exit 2`,
			wantErr: "test compilation failed: bad flag",
		},
		{
			name:    "crash",
			script:  `exit 3`,
			wantErr: "exit code 3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewExecutor(t.TempDir(), "go", 0, nil, testLogger())
			require.NoError(t, err)
			e.cmdBuilder = func(ctx context.Context, _ string, _ ...string) *exec.Cmd {
				return exec.CommandContext(ctx, "sh", "-c", tt.script)
			}

			l := &fakeListener{}
			_, err = NewDriver(l, testLogger()).Run(context.Background(), e.Source())
			if tt.wantErr == "" {
				require.NoError(t, err)
				c, ok := l.terminal(key("p", "TestA"))
				require.True(t, ok)
				assert.Equal(t, types.StatusFailed, c.Status)
				assert.Equal(t, "", c.Message)
			} else {
				require.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestFileSource_Stdin(t *testing.T) {
	rc, err := FileSource(StdinInput)(context.Background())
	require.NoError(t, err)
	assert.NoError(t, rc.Close())
}
