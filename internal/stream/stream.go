package stream

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/chain"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/domain"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/logging"
)

// ErrStreamStale is raised by the liveness monitor when no new block
// has been observed for a full staleness interval. It is a transport
// failure: the subscription is torn down and reopened, and no data is
// lost because the bookmark never advanced past unprocessed batches.
var ErrStreamStale = errors.New("event stream stale: no new blocks observed")

// Consumer receives each accepted block exactly in height order. The
// stream advances its bookmark only after HandleBlock returns nil, so a
// crash mid-block re-reads the same range on restart; consumers must be
// idempotent.
type Consumer interface {
	HandleBlock(ctx context.Context, block BlockData) error
}

// BookmarkStore is the slice of the storage layer the stream needs.
type BookmarkStore interface {
	Initialize(ctx context.Context, streamID string, epochHeight int64) (*domain.StreamBookmark, error)
	Advance(ctx context.Context, streamID string, height int64) error
}

// Options tunes an EventStream.
type Options struct {
	StreamID          string
	EpochHeight       int64
	BackfillWorkers   int
	ChunkSize         int64
	FetchRPS          int
	StalenessInterval time.Duration
	ReconnectDelay    time.Duration
}

func (o Options) withDefaults() Options {
	if o.StalenessInterval <= 0 {
		o.StalenessInterval = 30 * time.Second
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 5 * time.Second
	}
	if o.EpochHeight < 1 {
		o.EpochHeight = 1
	}
	return o
}

// EventStream feeds the consumer with filtered chain events: historical
// backfill from the bookmark to the chain's current height, then live
// subscription, with a liveness monitor forcing reconnects when the
// feed goes quiet.
type EventStream struct {
	source    chain.BlockSource
	heights   chain.HeightSource
	filter    *EventFilter
	consumer  Consumer
	bookmarks BookmarkStore
	opts      Options
	log       *logging.Logger

	lastSeen atomic.Int64
}

// New creates an event stream.
func New(source chain.BlockSource, heights chain.HeightSource, filter *EventFilter, consumer Consumer, bookmarks BookmarkStore, opts Options, log *logging.Logger) *EventStream {
	return &EventStream{
		source:    source,
		heights:   heights,
		filter:    filter,
		consumer:  consumer,
		bookmarks: bookmarks,
		opts:      opts.withDefaults(),
		log:       log.Component("event-stream"),
	}
}

// Run drives the stream until the context is cancelled, reconnecting
// after transport failures (including staleness).
func (s *EventStream) Run(ctx context.Context) {
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			s.log.Info("event stream stopped")
			return
		}
		streamReconnects.Inc()
		s.log.WithError(err).Warnf("event stream disconnected, reconnecting in %s", s.opts.ReconnectDelay)
		select {
		case <-time.After(s.opts.ReconnectDelay):
		case <-ctx.Done():
			s.log.Info("event stream stopped")
			return
		}
	}
}

// runOnce performs one connect cycle: catch up from the bookmark, then
// stream live until the transport dies or goes stale.
func (s *EventStream) runOnce(ctx context.Context) error {
	bookmark, err := s.bookmarks.Initialize(ctx, s.opts.StreamID, s.opts.EpochHeight)
	if err != nil {
		return fmt.Errorf("failed to load bookmark: %w", err)
	}
	s.lastSeen.Store(bookmark.BlockHeight)
	streamHeight.Set(float64(bookmark.BlockHeight))

	current, err := s.heights.GetCurrentBlockHeight(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current height: %w", err)
	}

	processed := bookmark.BlockHeight
	if bookmark.BlockHeight < current {
		backfiller := NewBackfiller(s.source, s.filter, s.opts.BackfillWorkers, s.opts.ChunkSize, s.opts.FetchRPS, s.log)
		if err := backfiller.Run(ctx, bookmark.BlockHeight+1, current, s.dispatch); err != nil {
			return err
		}
		// Blocks without transactions produce no dispatch; close the
		// gap so the next cycle does not re-scan them.
		if err := s.bookmarks.Advance(ctx, s.opts.StreamID, current); err != nil {
			return err
		}
		s.lastSeen.Store(current)
		streamHeight.Set(float64(current))
		processed = current
	}

	return s.live(ctx, processed)
}

// live consumes the push subscription until it closes or the liveness
// monitor declares it stale. processed is the last height already
// dispatched; every block above it is fetched in order, so blocks
// minted between the backfill's height sample and the subscription's
// first announcement are not skipped.
func (s *EventStream) live(ctx context.Context, processed int64) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	blocks, err := s.source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe for new blocks: %w", err)
	}
	s.log.Info("live subscription open")

	stale := make(chan struct{})
	go s.monitor(ctx, stale)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stale:
			streamStaleness.Inc()
			return ErrStreamStale
		case nb, ok := <-blocks:
			if !ok {
				return fmt.Errorf("block subscription closed")
			}
			// The subscription only announces the latest height, so an
			// announcement can cover several new blocks at once.
			for h := processed + 1; h <= nb.Height; h++ {
				events, err := s.source.FetchBlockEvents(ctx, h)
				if err != nil {
					return fmt.Errorf("failed to fetch events at height %d: %w", h, err)
				}
				block := BlockData{Height: h, Events: s.filter.Apply(events)}
				if err := s.dispatch(ctx, block); err != nil {
					return err
				}
				processed = h
			}
		}
	}
}

// monitor watches the last-seen height and signals staleness when it
// has not moved for a full interval.
func (s *EventStream) monitor(ctx context.Context, stale chan<- struct{}) {
	ticker := time.NewTicker(s.opts.StalenessInterval)
	defer ticker.Stop()

	prev := s.lastSeen.Load()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			seen := s.lastSeen.Load()
			if seen == prev {
				close(stale)
				return
			}
			prev = seen
		}
	}
}

// dispatch hands one block to the consumer and, only on success,
// advances the bookmark to its height.
func (s *EventStream) dispatch(ctx context.Context, block BlockData) error {
	if err := s.consumer.HandleBlock(ctx, block); err != nil {
		return fmt.Errorf("consumer failed at height %d: %w", block.Height, err)
	}
	if err := s.bookmarks.Advance(ctx, s.opts.StreamID, block.Height); err != nil {
		return err
	}
	s.lastSeen.Store(block.Height)
	streamHeight.Set(float64(block.Height))
	return nil
}
