package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/chain"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/domain"
)

// fakeBookmarks tracks the bookmark in memory.
type fakeBookmarks struct {
	mu     sync.Mutex
	height int64
}

func (b *fakeBookmarks) Initialize(ctx context.Context, streamID string, epochHeight int64) (*domain.StreamBookmark, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.height < epochHeight {
		b.height = epochHeight
	}
	return &domain.StreamBookmark{StreamID: streamID, BlockHeight: b.height}, nil
}

func (b *fakeBookmarks) Advance(ctx context.Context, streamID string, height int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if height > b.height {
		b.height = height
	}
	return nil
}

func (b *fakeBookmarks) current() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.height
}

// fakeHeights serves a fixed current height.
type fakeHeights struct{ height int64 }

func (h *fakeHeights) GetCurrentBlockHeight(ctx context.Context) (int64, error) {
	return h.height, nil
}

// recordingConsumer records handled heights and can reject a height.
type recordingConsumer struct {
	mu      sync.Mutex
	heights []int64
	reject  map[int64]error
}

func (c *recordingConsumer) HandleBlock(ctx context.Context, block BlockData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.reject[block.Height]; err != nil {
		return err
	}
	c.heights = append(c.heights, block.Height)
	return nil
}

func (c *recordingConsumer) handled() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, len(c.heights))
	copy(out, c.heights)
	return out
}

func streamOptions() Options {
	return Options{
		StreamID:          "test-stream",
		EpochHeight:       1,
		BackfillWorkers:   2,
		ChunkSize:         5,
		StalenessInterval: 50 * time.Millisecond,
		ReconnectDelay:    10 * time.Millisecond,
	}
}

func TestRunOnceBackfillsToCurrentAndGoesLive(t *testing.T) {
	source := &fakeSource{
		events: map[int64][]chain.Event{
			3: {eventAt(3, "wanted")},
			7: {eventAt(7, "wanted")},
		},
		blocksCh: make(chan chain.NewBlock),
	}
	bookmarks := &fakeBookmarks{}
	consumer := &recordingConsumer{}
	opts := streamOptions()
	// Keep the monitor quiet; this test drives the feed by hand.
	opts.StalenessInterval = time.Minute
	s := New(source, &fakeHeights{height: 10}, NewEventFilter([]string{"wanted"}), consumer, bookmarks, opts, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.runOnce(ctx) }()

	// Backfill dispatches the two tx-bearing blocks, then the bookmark
	// jumps to the current height even though 8-10 were empty.
	require.Eventually(t, func() bool { return bookmarks.current() == 10 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{3, 7}, consumer.handled())

	// A live block past the bookmark is fetched, dispatched, and advances
	// the bookmark.
	source.events[11] = []chain.Event{eventAt(11, "wanted")}
	source.blocksCh <- chain.NewBlock{Height: 11}
	require.Eventually(t, func() bool { return bookmarks.current() == 11 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{3, 7, 11}, consumer.handled())

	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLiveCatchesUpWhenAnnouncementSkipsHeights(t *testing.T) {
	// The height sample taken before backfill can lag the subscription:
	// blocks 11 and 12 land after the sample at 10, and the feed's first
	// announcement is already 13. Every height in between must still be
	// fetched and dispatched, in order, before 13.
	source := &fakeSource{
		events: map[int64][]chain.Event{
			3:  {eventAt(3, "wanted")},
			11: {eventAt(11, "wanted")},
			12: {eventAt(12, "wanted")},
		},
		blocksCh: make(chan chain.NewBlock),
	}
	bookmarks := &fakeBookmarks{}
	consumer := &recordingConsumer{}
	opts := streamOptions()
	opts.StalenessInterval = time.Minute
	s := New(source, &fakeHeights{height: 10}, NewEventFilter([]string{"wanted"}), consumer, bookmarks, opts, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.runOnce(ctx) }()

	require.Eventually(t, func() bool { return bookmarks.current() == 10 }, 2*time.Second, 5*time.Millisecond)

	source.blocksCh <- chain.NewBlock{Height: 13}
	require.Eventually(t, func() bool { return bookmarks.current() == 13 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{3, 11, 12, 13}, consumer.handled())

	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLiveReturnsStaleWhenFeedGoesQuiet(t *testing.T) {
	source := &fakeSource{
		events:   map[int64][]chain.Event{},
		blocksCh: make(chan chain.NewBlock),
	}
	bookmarks := &fakeBookmarks{height: 5}
	s := New(source, &fakeHeights{height: 5}, NewEventFilter(nil), &recordingConsumer{}, bookmarks, streamOptions(), testLogger())

	done := make(chan error, 1)
	go func() { done <- s.runOnce(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStreamStale)
	case <-time.After(5 * time.Second):
		t.Fatal("stream never went stale")
	}
}

func TestBookmarkHoldsWhenConsumerFails(t *testing.T) {
	source := &fakeSource{
		events: map[int64][]chain.Event{
			3: {eventAt(3, "wanted")},
		},
	}
	bookmarks := &fakeBookmarks{}
	rejected := errors.New("conflicting write")
	consumer := &recordingConsumer{reject: map[int64]error{3: rejected}}
	s := New(source, &fakeHeights{height: 5}, NewEventFilter([]string{"wanted"}), consumer, bookmarks, streamOptions(), testLogger())

	err := s.runOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, rejected)
	// The failed block was never bookmarked, so a reconnect re-reads it.
	assert.Less(t, bookmarks.current(), int64(3))
}

func TestRunReconnectsAfterSubscriptionCloses(t *testing.T) {
	source := &closingSource{}
	bookmarks := &fakeBookmarks{height: 5}
	s := New(source, &fakeHeights{height: 5}, NewEventFilter(nil), &recordingConsumer{}, bookmarks, streamOptions(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(stopped)
	}()

	require.Eventually(t, func() bool { return source.subscribes() >= 2 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop after cancellation")
	}
}

// closingSource closes every subscription immediately, simulating a
// dying transport.
type closingSource struct {
	mu   sync.Mutex
	subs int
}

func (s *closingSource) FetchBlock(ctx context.Context, height int64) (*chain.Block, error) {
	return &chain.Block{Height: height}, nil
}

func (s *closingSource) FetchBlockEvents(ctx context.Context, height int64) ([]chain.Event, error) {
	return nil, nil
}

func (s *closingSource) FetchBlocksWithTransactions(ctx context.Context, minHeight, maxHeight int64) ([]int64, error) {
	return nil, nil
}

func (s *closingSource) Subscribe(ctx context.Context) (<-chan chain.NewBlock, error) {
	s.mu.Lock()
	s.subs++
	s.mu.Unlock()
	ch := make(chan chain.NewBlock)
	close(ch)
	return ch, nil
}

func (s *closingSource) subscribes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs
}
