package chain

import (
	"context"
	"sync"
	"time"
)

// HeightSource is the single method the timeout cache needs from the
// chain client.
type HeightSource interface {
	GetCurrentBlockHeight(ctx context.Context) (int64, error)
}

// TimeoutHeightCache computes the timeout height attached to new
// broadcasts (current height + timeoutBlocks) without querying the
// chain on every broadcast. The cached value is reused until the
// refresh interval elapses, bounding both query volume and staleness.
type TimeoutHeightCache struct {
	source        HeightSource
	timeoutBlocks int64
	refresh       time.Duration

	mu          sync.Mutex
	cached      int64
	refreshedAt time.Time
	refreshing  bool
}

// NewTimeoutHeightCache creates a cache adding timeoutBlocks to the
// current height, refreshed at most once per refresh interval.
func NewTimeoutHeightCache(source HeightSource, timeoutBlocks int64, refresh time.Duration) *TimeoutHeightCache {
	return &TimeoutHeightCache{
		source:        source,
		timeoutBlocks: timeoutBlocks,
		refresh:       refresh,
	}
}

// TimeoutHeight returns the height past which a broadcast submitted now
// should be considered timed out.
func (c *TimeoutHeightCache) TimeoutHeight(ctx context.Context) (int64, error) {
	c.mu.Lock()
	if c.cached > 0 && (time.Since(c.refreshedAt) < c.refresh || c.refreshing) {
		// Fresh enough, or another caller is already mid-refresh and a
		// slightly stale value beats queueing behind a slow node.
		cached := c.cached
		c.mu.Unlock()
		return cached, nil
	}
	c.refreshing = true
	c.mu.Unlock()

	// The lock is not held across the network call.
	height, err := c.source.GetCurrentBlockHeight(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshing = false

	if err != nil {
		// A stale value beats no value while the node is flaky.
		if c.cached > 0 {
			return c.cached, nil
		}
		return 0, err
	}

	c.cached = height + c.timeoutBlocks
	c.refreshedAt = time.Now()
	return c.cached, nil
}
