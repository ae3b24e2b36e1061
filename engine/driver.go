// Package engine hosts go test as the test engine of a session. It decodes the
// test2json stream and drives a session listener with one ordered worker per
// package, so events of a package keep their order while packages run in
// parallel.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/ethereum-optimism/infra/op-session/types"
)

const packageQueueSize = 256

// Listener receives session events
type Listener interface {
	SessionOpened(ctx context.Context)
	PlanStarted(ctx context.Context) error
	TestStarted(ctx context.Context, id types.TestIdentifier)
	TestSkipped(ctx context.Context, id types.TestIdentifier, reason string)
	TestFinished(ctx context.Context, id types.TestIdentifier, result types.ExecutionResult)
	SessionClosed(ctx context.Context) error
}

// Source opens the event stream. It is only called after the plan started, so
// nothing runs before the session bootstrap completed.
type Source func(ctx context.Context) (io.ReadCloser, error)

// Result describes what the driver saw
type Result struct {
	Events   int
	Packages int
	// FailedPackages failed without a failing test, e.g. build errors
	FailedPackages []string
}

// PlanError is returned when the session bootstrap failed and no test ran
type PlanError struct {
	Err error
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("session could not start: %v", e.Err)
}

func (e *PlanError) Unwrap() error {
	return e.Err
}

// Driver feeds one event stream into a Listener
type Driver struct {
	listener Listener
	log      log.Logger
}

func NewDriver(listener Listener, logger log.Logger) *Driver {
	return &Driver{listener: listener, log: logger}
}

// Run opens the session, replays the stream from src and always closes the
// session, so teardown runs even when the stream or the bootstrap fails.
func (d *Driver) Run(ctx context.Context, src Source) (res *Result, err error) {
	d.listener.SessionOpened(ctx)
	defer func() {
		if closeErr := d.listener.SessionClosed(context.WithoutCancel(ctx)); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	if err := d.listener.PlanStarted(ctx); err != nil {
		return nil, &PlanError{Err: err}
	}

	stream, err := src(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open test events: %w", err)
	}

	res, runErr := d.dispatch(ctx, stream)
	if closeErr := stream.Close(); closeErr != nil {
		runErr = errors.Join(runErr, closeErr)
	}
	return res, runErr
}

func (d *Driver) dispatch(ctx context.Context, r io.Reader) (*Result, error) {
	workers := pool.New().WithErrors().WithContext(ctx)
	queues := make(map[string]chan TestEvent)
	var states []*packageWorker
	events := 0

	decodeErr := Decode(r, func(ev TestEvent) error {
		events++
		q, ok := queues[ev.Package]
		if !ok {
			q = make(chan TestEvent, packageQueueSize)
			queues[ev.Package] = q
			w := newPackageWorker(ev.Package, d.listener, d.log)
			states = append(states, w)
			workers.Go(func(ctx context.Context) error {
				return w.run(ctx, q)
			})
		}
		select {
		case q <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	for _, q := range queues {
		close(q)
	}
	workerErr := workers.Wait()

	res := &Result{Events: events, Packages: len(queues)}
	for _, w := range states {
		if w.failedWithoutTest() {
			res.FailedPackages = append(res.FailedPackages, w.pkg)
		}
	}
	sort.Strings(res.FailedPackages)
	return res, errors.Join(decodeErr, workerErr)
}

type testState struct {
	name        string
	output      []string
	hasChildren bool
	done        bool
}

// packageWorker turns the ordered events of one package into listener calls
type packageWorker struct {
	pkg      string
	listener Listener
	log      log.Logger

	mu           sync.Mutex
	tests        map[string]*testState
	order        []string
	output       []string
	failed       bool
	failedLeaves int
	finished     bool
}

func newPackageWorker(pkg string, listener Listener, logger log.Logger) *packageWorker {
	return &packageWorker{
		pkg:      pkg,
		listener: listener,
		log:      logger.With("package", pkg),
		tests:    make(map[string]*testState),
	}
}

func (w *packageWorker) run(ctx context.Context, events <-chan TestEvent) error {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if !w.finished {
					// the stream ended without a package result, e.g. the binary crashed
					w.finishPackage(ctx, ActionFail)
				}
				return nil
			}
			w.handle(ctx, ev)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *packageWorker) handle(ctx context.Context, ev TestEvent) {
	if ev.Test == "" {
		w.handlePackage(ctx, ev)
		return
	}

	switch ev.Action {
	case ActionRun:
		st := w.test(ev.Test)
		if parent, ok := parentTest(ev.Test); ok {
			w.test(parent).hasChildren = true
		}
		w.listener.TestStarted(ctx, TestID(w.pkg, st.name, types.TestTypeTest))
	case ActionOutput:
		st := w.test(ev.Test)
		st.output = append(st.output, ev.Output)
	case ActionPass, ActionFail, ActionSkip:
		w.finishTest(ctx, w.test(ev.Test), ev.Action)
	}
}

func (w *packageWorker) handlePackage(ctx context.Context, ev TestEvent) {
	switch ev.Action {
	case ActionStart:
		w.listener.TestStarted(ctx, PackageID(w.pkg))
	case ActionOutput:
		w.output = append(w.output, ev.Output)
	case ActionPass, ActionFail, ActionSkip:
		w.finishPackage(ctx, ev.Action)
	}
}

func (w *packageWorker) test(name string) *testState {
	st, ok := w.tests[name]
	if !ok {
		st = &testState{name: name}
		w.tests[name] = st
		w.order = append(w.order, name)
	}
	return st
}

func (w *packageWorker) finishTest(ctx context.Context, st *testState, action string) {
	if st.done {
		return
	}
	st.done = true

	typ := types.TestTypeTest
	if st.hasChildren {
		typ = types.TestTypeContainer
	}
	id := TestID(w.pkg, st.name, typ)
	message := cleanOutput(st.output)

	switch action {
	case ActionPass:
		w.listener.TestFinished(ctx, id, types.Successful())
	case ActionSkip:
		w.listener.TestSkipped(ctx, id, message)
	case ActionFail:
		if typ.IsTest() {
			w.mu.Lock()
			w.failedLeaves++
			w.mu.Unlock()
		}
		w.listener.TestFinished(ctx, id, types.Failed(causeOf(message)))
	}
}

// finishPackage aborts the tests left open, e.g. by a panic or a timeout, then
// reports the package container itself
func (w *packageWorker) finishPackage(ctx context.Context, action string) {
	if w.finished {
		return
	}
	w.finished = true

	pkgOutput := cleanOutput(w.output)
	for i := len(w.order) - 1; i >= 0; i-- {
		st := w.tests[w.order[i]]
		if st.done {
			continue
		}
		st.done = true
		typ := types.TestTypeTest
		if st.hasChildren {
			typ = types.TestTypeContainer
		}
		msg := cleanOutput(st.output)
		if msg == "" {
			msg = pkgOutput
		}
		w.log.Warn("Test did not complete", "test", st.name)
		if typ.IsTest() {
			w.mu.Lock()
			w.failedLeaves++
			w.mu.Unlock()
		}
		w.listener.TestFinished(ctx, TestID(w.pkg, st.name, typ), types.Aborted(causeOf(msg)))
	}

	id := PackageID(w.pkg)
	switch action {
	case ActionPass:
		w.listener.TestFinished(ctx, id, types.Successful())
	case ActionSkip:
		w.listener.TestSkipped(ctx, id, pkgOutput)
	case ActionFail:
		w.mu.Lock()
		w.failed = true
		w.mu.Unlock()
		w.log.Debug("Package failed", "output", pkgOutput)
		w.listener.TestFinished(ctx, id, types.Failed(causeOf(pkgOutput)))
	}
}

func (w *packageWorker) failedWithoutTest() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failed && w.failedLeaves == 0
}

func causeOf(message string) error {
	if message == "" {
		return nil
	}
	return errors.New(message)
}
