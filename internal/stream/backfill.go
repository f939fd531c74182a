package stream

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/chain"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/logging"
)

// Backfiller replays a historical height range through a dispatch
// callback. Chunks of the range are fetched concurrently by a bounded
// worker pool, but completed chunks are re-sequenced so dispatch always
// happens in ascending height order regardless of fetch completion
// order.
type Backfiller struct {
	source    chain.BlockSource
	filter    *EventFilter
	limiter   *rate.Limiter
	workers   int
	chunkSize int64
	log       *logging.Logger
}

// NewBackfiller creates a backfiller. fetchRPS throttles block queries
// against the node; workers bounds concurrent chunk fetches.
func NewBackfiller(source chain.BlockSource, filter *EventFilter, workers int, chunkSize int64, fetchRPS int, log *logging.Logger) *Backfiller {
	if workers <= 0 {
		workers = 1
	}
	if chunkSize <= 0 {
		chunkSize = 20
	}
	limit := rate.Inf
	if fetchRPS > 0 {
		limit = rate.Limit(fetchRPS)
	}
	return &Backfiller{
		source:    source,
		filter:    filter,
		limiter:   rate.NewLimiter(limit, 1),
		workers:   workers,
		chunkSize: chunkSize,
		log:       log.Component("backfill"),
	}
}

type chunkResult struct {
	index  int
	blocks []BlockData
	err    error
}

// Run replays [from, to] through dispatch, in height order. A dispatch
// or fetch error aborts the run; since the caller only advances its
// bookmark on successful dispatch, an aborted run is safely re-read.
func (b *Backfiller) Run(ctx context.Context, from, to int64, dispatch func(context.Context, BlockData) error) error {
	if from > to {
		return nil
	}

	chunks := b.splitRange(from, to)
	b.log.Infof("backfilling heights %d-%d in %d chunks", from, to, len(chunks))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	results := make(chan chunkResult)

	var wg sync.WaitGroup
	for w := 0; w < b.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res := chunkResult{index: i}
				res.blocks, res.err = b.fetchChunk(ctx, chunks[i][0], chunks[i][1])
				select {
				case results <- res:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range chunks {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Re-sequence: hold completed chunks until every earlier chunk has
	// been dispatched, so height order survives concurrent fetching.
	pending := make(map[int][]BlockData)
	next := 0
	for res := range results {
		if res.err != nil {
			cancel()
			return fmt.Errorf("backfill chunk %d failed: %w", res.index, res.err)
		}
		pending[res.index] = res.blocks
		for {
			blocks, ok := pending[next]
			if !ok {
				break
			}
			for _, block := range blocks {
				if err := dispatch(ctx, block); err != nil {
					cancel()
					return fmt.Errorf("backfill dispatch at height %d failed: %w", block.Height, err)
				}
				backfillBlocksDispatched.Inc()
			}
			delete(pending, next)
			next++
		}
	}
	if next != len(chunks) {
		return ctx.Err()
	}

	b.log.Infof("backfill of heights %d-%d complete", from, to)
	return nil
}

// splitRange cuts [from, to] into ascending chunks of at most chunkSize
// heights.
func (b *Backfiller) splitRange(from, to int64) [][2]int64 {
	var chunks [][2]int64
	for lo := from; lo <= to; lo += b.chunkSize {
		hi := lo + b.chunkSize - 1
		if hi > to {
			hi = to
		}
		chunks = append(chunks, [2]int64{lo, hi})
	}
	return chunks
}

// fetchChunk fetches the filtered events of every tx-bearing block in
// [lo, hi], ascending.
func (b *Backfiller) fetchChunk(ctx context.Context, lo, hi int64) ([]BlockData, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	heights, err := b.source.FetchBlocksWithTransactions(ctx, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate blocks %d-%d: %w", lo, hi, err)
	}

	blocks := make([]BlockData, 0, len(heights))
	for _, height := range heights {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		events, err := b.source.FetchBlockEvents(ctx, height)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch events at height %d: %w", height, err)
		}
		blocks = append(blocks, BlockData{Height: height, Events: b.filter.Apply(events)})
	}
	return blocks, nil
}
