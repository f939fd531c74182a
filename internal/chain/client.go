// Package chain defines the contracts the middleware consumes from the
// blockchain side: the signing/broadcasting client and the block/event
// source. Implementations (RPC transport, signing, key derivation) live
// outside this module.
package chain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrTxNotFound is returned by GetTransaction when the chain has no
// record of the hash.
var ErrTxNotFound = errors.New("transaction not found")

// Action is the on-chain operation a message performs.
type Action string

const (
	ActionMint     Action = "MINT"
	ActionBurn     Action = "BURN"
	ActionRedeem   Action = "REDEEM"
	ActionTag      Action = "TAG"
	ActionDetag    Action = "DETAG"
	ActionTransfer Action = "TRANSFER"
)

// Msg is one message inside a broadcast. The concrete client translates
// it into the chain's wire format and signs it.
type Msg struct {
	Action Action
	// Address is the subject of the action: mint/transfer recipient-side
	// owner, burn source, tag/detag target.
	Address string
	// Recipient is set for transfers.
	Recipient string
	Amount    decimal.Decimal
	Denom     string
}

// BroadcastResult is the outcome of submitting a signed transaction.
type BroadcastResult struct {
	TxHash string
	Code   uint32
	RawLog string
	Height int64
}

// Succeeded reports whether the broadcast was accepted.
func (r *BroadcastResult) Succeeded() bool { return r.Code == 0 }

// TxResult is the chain's record of a confirmed or failed transaction.
type TxResult struct {
	TxHash string
	Height int64
	Code   uint32
	RawLog string
}

// Succeeded reports whether the transaction executed without error.
func (r *TxResult) Succeeded() bool { return r.Code == 0 && r.Height > 0 }

// Attribute is a key/value tag attached to an address or event.
type Attribute struct {
	Key   string
	Value string
}

// Client is the signing/broadcasting chain client contract.
type Client interface {
	// Broadcast signs and submits the messages as one transaction that
	// expires at timeoutHeight.
	Broadcast(ctx context.Context, msgs []Msg, timeoutHeight int64) (*BroadcastResult, error)

	// GetTransaction looks up a transaction by hash. Returns
	// ErrTxNotFound when the chain has no record of it.
	GetTransaction(ctx context.Context, txHash string) (*TxResult, error)

	// GetAttribute returns the named attribute on an address, or nil
	// when the address does not carry it.
	GetAttribute(ctx context.Context, address, name string) (*Attribute, error)

	// GetCoinBalance returns the address's balance of the denom.
	GetCoinBalance(ctx context.Context, address, denom string) (decimal.Decimal, error)

	// GetCurrentBlockHeight returns the chain's latest committed height.
	GetCurrentBlockHeight(ctx context.Context) (int64, error)
}
