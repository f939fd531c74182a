package chain

import (
	"context"
	"time"
)

// Block is the header-level view of one block.
type Block struct {
	Height  int64
	Time    time.Time
	TxCount int
}

// NewBlock is one push notification from the block subscription.
type NewBlock struct {
	Height int64
	Time   time.Time
}

// Event is one typed event emitted by a transaction, in the chain's
// {type, attributes} shape. EventIndex disambiguates multiple events
// within one transaction.
type Event struct {
	BlockHeight int64
	TxHash      string
	EventIndex  int
	Type        string
	Attributes  []Attribute
}

// Attribute returns the value of the named attribute and whether it exists.
func (e Event) Attribute(key string) (string, bool) {
	for _, attr := range e.Attributes {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}

// BlockSource is the block/event feed contract: historical fetches for
// backfill plus a push subscription for live delivery.
type BlockSource interface {
	// FetchBlock returns the block at a height.
	FetchBlock(ctx context.Context, height int64) (*Block, error)

	// FetchBlockEvents returns the events emitted by transactions in
	// the block at a height.
	FetchBlockEvents(ctx context.Context, height int64) ([]Event, error)

	// FetchBlocksWithTransactions returns, in ascending order, the
	// heights in [minHeight, maxHeight] whose blocks contain at least
	// one transaction.
	FetchBlocksWithTransactions(ctx context.Context, minHeight, maxHeight int64) ([]int64, error)

	// Subscribe opens a push subscription for new blocks. The returned
	// channel is closed when the subscription dies; the consumer is
	// expected to reconnect.
	Subscribe(ctx context.Context) (<-chan NewBlock, error)
}
