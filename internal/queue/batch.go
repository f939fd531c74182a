package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/logging"
)

// BatchActor is the batch variant of Actor: the loader returns one
// bounded batch per cycle and the whole batch is processed by a single
// worker invocation, so one remote call (e.g. one broadcast carrying
// many mints) amortizes its cost over the batch.
type BatchActor[M any] interface {
	// Name identifies the queue in logs and metrics.
	Name() string

	// BatchSize caps how many directives LoadBatch may return.
	BatchSize() int

	// LoadBatch returns at most BatchSize directives ready for processing.
	LoadBatch(ctx context.Context) ([]M, error)

	// ProcessBatch handles one whole batch.
	ProcessBatch(ctx context.Context, batch []M) error

	// OnSuccess is invoked after ProcessBatch returns nil.
	OnSuccess(ctx context.Context, batch []M)

	// OnFailure is invoked after ProcessBatch returns an error or panics.
	OnFailure(ctx context.Context, batch []M, err error)
}

// BatchRunner drives a BatchActor the same way Runner drives an Actor;
// only the unit handed to workers is a whole batch.
type BatchRunner[M any] struct {
	actor BatchActor[M]
	opts  Options
	log   *logging.Logger
}

// NewBatchRunner creates a runner for a batch actor.
func NewBatchRunner[M any](actor BatchActor[M], opts Options, log *logging.Logger) *BatchRunner[M] {
	return &BatchRunner[M]{
		actor: actor,
		opts:  opts.withDefaults(),
		log:   log.Component(actor.Name()),
	}
}

// Run blocks until the context is cancelled.
func (r *BatchRunner[M]) Run(ctx context.Context) {
	ch := make(chan []M)

	// As in Runner.Run, an in-flight batch finishes even after the run
	// context is cancelled.
	workCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < r.opts.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for batch := range ch {
				r.process(workCtx, worker, batch)
			}
		}(i)
	}

	r.log.Infof("batch queue started with %d workers, polling every %s", r.opts.Workers, r.opts.PollingDelay)

	r.produce(ctx, ch)
	close(ch)
	wg.Wait()
	r.log.Info("batch queue stopped")
}

func (r *BatchRunner[M]) produce(ctx context.Context, ch chan<- []M) {
	for {
		batch, err := r.actor.LoadBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.WithError(err).Warn("failed to load batch")
		}
		if max := r.actor.BatchSize(); max > 0 && len(batch) > max {
			batch = batch[:max]
		}
		if len(batch) > 0 {
			select {
			case ch <- batch:
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

func (r *BatchRunner[M]) process(ctx context.Context, worker int, batch []M) {
	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic in %s worker %d: %v\n%s", r.actor.Name(), worker, rec, debug.Stack())
			}
		}()
		return r.actor.ProcessBatch(ctx, batch)
	}()

	if err != nil {
		messagesFailed.WithLabelValues(r.actor.Name()).Add(float64(len(batch)))
		r.actor.OnFailure(ctx, batch, err)
		return
	}
	messagesProcessed.WithLabelValues(r.actor.Name()).Add(float64(len(batch)))
	r.actor.OnSuccess(ctx, batch)
}
