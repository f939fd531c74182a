// Package queue implements the generic actor framework that drives the
// per-record state machines: one producer polling a loader on a fixed
// delay, fanning directives out over an unbuffered channel to a pool of
// isolated workers.
package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/logging"
)

// Actor is the contract a queue component implements. LoadMessages is
// polled every cycle; each returned directive is handed to exactly one
// worker, which invokes ProcessMessage and routes the outcome to
// OnSuccess or OnFailure.
type Actor[M any] interface {
	// Name identifies the queue in logs and metrics.
	Name() string

	// LoadMessages returns the directives ready for processing. It is
	// re-invoked every polling cycle, so work that fails without a
	// persisted state change is naturally retried.
	LoadMessages(ctx context.Context) ([]M, error)

	// ProcessMessage handles one directive. An error (or panic) is
	// contained to this directive.
	ProcessMessage(ctx context.Context, msg M) error

	// OnSuccess is invoked after ProcessMessage returns nil.
	OnSuccess(ctx context.Context, msg M)

	// OnFailure is invoked after ProcessMessage returns an error or panics.
	OnFailure(ctx context.Context, msg M, err error)
}

// Options tunes a runner.
type Options struct {
	Workers      int
	PollingDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.PollingDelay <= 0 {
		o.PollingDelay = time.Second
	}
	return o
}

// Runner drives an Actor with one producer goroutine and a pool of
// worker goroutines. The handoff channel is unbuffered so a slow pool
// backpressures the producer instead of queueing work in memory.
type Runner[M any] struct {
	actor Actor[M]
	opts  Options
	log   *logging.Logger
}

// NewRunner creates a runner for an actor.
func NewRunner[M any](actor Actor[M], opts Options, log *logging.Logger) *Runner[M] {
	return &Runner[M]{
		actor: actor,
		opts:  opts.withDefaults(),
		log:   log.Component(actor.Name()),
	}
}

// Run blocks until the context is cancelled. Shutdown is cooperative:
// the producer stops handing out work and closes the channel; workers
// finish their in-flight directive and exit.
func (r *Runner[M]) Run(ctx context.Context) {
	ch := make(chan M)

	// Cancellation stops the producer only; an in-flight directive keeps
	// an uncancelled context so its DB and HTTP calls run to completion.
	workCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < r.opts.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for msg := range ch {
				r.process(workCtx, worker, msg)
			}
		}(i)
	}

	r.log.Infof("queue started with %d workers, polling every %s", r.opts.Workers, r.opts.PollingDelay)

	r.produce(ctx, ch)
	close(ch)
	wg.Wait()
	r.log.Info("queue stopped")
}

func (r *Runner[M]) produce(ctx context.Context, ch chan<- M) {
	for {
		msgs, err := r.actor.LoadMessages(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.WithError(err).Warn("failed to load messages")
		}
		for _, msg := range msgs {
			select {
			case ch <- msg:
			case <-ctx.Done():
				return
			}
		}
		select {
		case <-time.After(r.opts.PollingDelay):
		case <-ctx.Done():
			return
		}
	}
}

// process runs one directive with panic containment: a fault in
// ProcessMessage never takes down the worker, its siblings, or the
// producer.
func (r *Runner[M]) process(ctx context.Context, worker int, msg M) {
	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic in %s worker %d: %v\n%s", r.actor.Name(), worker, rec, debug.Stack())
			}
		}()
		return r.actor.ProcessMessage(ctx, msg)
	}()

	if err != nil {
		messagesFailed.WithLabelValues(r.actor.Name()).Inc()
		r.actor.OnFailure(ctx, msg, err)
		return
	}
	messagesProcessed.WithLabelValues(r.actor.Name()).Inc()
	r.actor.OnSuccess(ctx, msg)
}
