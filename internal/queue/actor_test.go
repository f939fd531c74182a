package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewWithOutput(logging.LevelError, io.Discard)
}

// fakeActor loads each message exactly once and records outcomes.
type fakeActor struct {
	mu        sync.Mutex
	pending   []int
	processed []int
	succeeded []int
	failed    map[int]error
	process   func(msg int) error
	done      chan struct{}
	remaining int
}

func newFakeActor(msgs []int, process func(msg int) error) *fakeActor {
	return &fakeActor{
		pending:   msgs,
		failed:    map[int]error{},
		process:   process,
		done:      make(chan struct{}),
		remaining: len(msgs),
	}
}

func (a *fakeActor) Name() string { return "fake-queue" }

func (a *fakeActor) LoadMessages(ctx context.Context) ([]int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	msgs := a.pending
	a.pending = nil
	return msgs, nil
}

func (a *fakeActor) ProcessMessage(ctx context.Context, msg int) error {
	a.mu.Lock()
	a.processed = append(a.processed, msg)
	a.mu.Unlock()
	return a.process(msg)
}

func (a *fakeActor) OnSuccess(ctx context.Context, msg int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.succeeded = append(a.succeeded, msg)
	a.finishOne()
}

func (a *fakeActor) OnFailure(ctx context.Context, msg int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failed[msg] = err
	a.finishOne()
}

// finishOne closes done when every loaded message has an outcome.
// Callers hold the mutex.
func (a *fakeActor) finishOne() {
	a.remaining--
	if a.remaining == 0 {
		close(a.done)
	}
}

func waitDone(t *testing.T, a *fakeActor) {
	t.Helper()
	select {
	case <-a.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for queue to drain")
	}
}

func TestRunnerRoutesOutcomes(t *testing.T) {
	actor := newFakeActor([]int{1, 2, 3, 4}, func(msg int) error {
		if msg%2 == 0 {
			return fmt.Errorf("boom %d", msg)
		}
		return nil
	})
	runner := NewRunner[int](actor, Options{Workers: 2, PollingDelay: 10 * time.Millisecond}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(stopped)
	}()
	waitDone(t, actor)
	cancel()
	<-stopped

	actor.mu.Lock()
	defer actor.mu.Unlock()
	assert.ElementsMatch(t, []int{1, 3}, actor.succeeded)
	require.Len(t, actor.failed, 2)
	assert.ErrorContains(t, actor.failed[2], "boom 2")
	assert.ErrorContains(t, actor.failed[4], "boom 4")
}

func TestRunnerContainsPanics(t *testing.T) {
	actor := newFakeActor([]int{1, 2, 3}, func(msg int) error {
		if msg == 2 {
			panic("worker fault")
		}
		return nil
	})
	runner := NewRunner[int](actor, Options{Workers: 1, PollingDelay: 10 * time.Millisecond}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(stopped)
	}()
	waitDone(t, actor)
	cancel()
	<-stopped

	actor.mu.Lock()
	defer actor.mu.Unlock()
	// The panicking directive failed; its siblings still ran.
	assert.ElementsMatch(t, []int{1, 3}, actor.succeeded)
	require.Contains(t, actor.failed, 2)
	assert.ErrorContains(t, actor.failed[2], "worker fault")
}

func TestRunnerStopsOnCancel(t *testing.T) {
	actor := newFakeActor(nil, func(int) error { return nil })
	runner := NewRunner[int](actor, Options{Workers: 2, PollingDelay: time.Millisecond}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(stopped)
	}()
	cancel()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
}

func TestRunnerFinishesInFlightDirectiveAfterCancel(t *testing.T) {
	actor := &slowActor{
		started: make(chan struct{}),
		release: make(chan struct{}),
		done:    make(chan struct{}),
	}
	runner := NewRunner[int](actor, Options{Workers: 1, PollingDelay: 10 * time.Millisecond}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(stopped)
	}()

	<-actor.started
	cancel()
	close(actor.release)
	<-stopped

	select {
	case <-actor.done:
	case <-time.After(5 * time.Second):
		t.Fatal("directive outcome never arrived")
	}
	// The run context was cancelled mid-directive, but the worker's
	// context stayed live so the directive could finish cleanly.
	assert.NoError(t, actor.ctxErr)
	assert.True(t, actor.succeeded)
}

// slowActor loads a single directive, then blocks in ProcessMessage
// until released, recording what its context reports at that point.
type slowActor struct {
	mu        sync.Mutex
	loaded    bool
	started   chan struct{}
	release   chan struct{}
	done      chan struct{}
	ctxErr    error
	succeeded bool
}

func (a *slowActor) Name() string { return "slow-queue" }

func (a *slowActor) LoadMessages(ctx context.Context) ([]int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loaded {
		return nil, nil
	}
	a.loaded = true
	return []int{1}, nil
}

func (a *slowActor) ProcessMessage(ctx context.Context, msg int) error {
	close(a.started)
	<-a.release
	a.ctxErr = ctx.Err()
	return nil
}

func (a *slowActor) OnSuccess(ctx context.Context, msg int) {
	a.succeeded = true
	close(a.done)
}

func (a *slowActor) OnFailure(ctx context.Context, msg int, err error) {
	close(a.done)
}

func TestRunnerRetriesOnLoadError(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	loaded := make(chan struct{})
	actor := &loadErrActor{
		load: func() ([]int, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls < 3 {
				return nil, errors.New("db unavailable")
			}
			select {
			case <-loaded:
			default:
				close(loaded)
			}
			return nil, nil
		},
	}
	runner := NewRunner[int](actor, Options{Workers: 1, PollingDelay: time.Millisecond}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-loaded
		cancel()
	}()
	runner.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, calls, 3)
}

type loadErrActor struct {
	load func() ([]int, error)
}

func (a *loadErrActor) Name() string                                { return "load-err-queue" }
func (a *loadErrActor) LoadMessages(context.Context) ([]int, error) { return a.load() }
func (a *loadErrActor) ProcessMessage(context.Context, int) error   { return nil }
func (a *loadErrActor) OnSuccess(context.Context, int)              {}
func (a *loadErrActor) OnFailure(context.Context, int, error)       {}
