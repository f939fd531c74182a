package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by repositories when a row does not exist.
var ErrNotFound = errors.New("not found")

// TransactionRequest is one pending financial operation. A row is created
// once by the API layer (or by a chained flow), mutated only by the queue
// pair assigned to its kind, and becomes immutable in a terminal status.
type TransactionRequest struct {
	ID      uuid.UUID   `json:"id" db:"id"`
	Kind    RequestKind `json:"kind" db:"kind"`
	Status  Status      `json:"status" db:"status"`
	TxHash  *string     `json:"txHash,omitempty" db:"tx_hash"`
	Address string      `json:"address" db:"address"`
	// Recipient is set for marker transfers only.
	Recipient  *string         `json:"recipient,omitempty" db:"recipient"`
	CoinAmount decimal.Decimal `json:"coinAmount" db:"coin_amount"`
	FiatAmount decimal.Decimal `json:"fiatAmount" db:"fiat_amount"`
	// SourceID links a chained request to the request that spawned it,
	// e.g. the burn created when a redemption completes.
	SourceID *uuid.UUID `json:"sourceId,omitempty" db:"source_id"`
	Created  time.Time  `json:"created" db:"created"`
	Updated  time.Time  `json:"updated" db:"updated"`
}

// NewRequest creates a request of the given kind in its initial status.
func NewRequest(kind RequestKind, address string, coinAmount, fiatAmount decimal.Decimal) (*TransactionRequest, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	if coinAmount.IsNegative() || fiatAmount.IsNegative() {
		return nil, fmt.Errorf("amounts must be non-negative: coin=%s fiat=%s", coinAmount, fiatAmount)
	}
	now := time.Now().UTC()
	return &TransactionRequest{
		ID:         uuid.New(),
		Kind:       kind,
		Status:     InitialStatus(kind),
		Address:    address,
		CoinAmount: coinAmount,
		FiatAmount: fiatAmount,
		Created:    now,
		Updated:    now,
	}, nil
}

// NewBurnForRedemption creates the burn request that a completed
// redemption chains into.
func NewBurnForRedemption(redemption *TransactionRequest) (*TransactionRequest, error) {
	if redemption.Kind != KindRedemption {
		return nil, fmt.Errorf("cannot chain burn from %s request %s", redemption.Kind, redemption.ID)
	}
	burn, err := NewRequest(KindBurn, redemption.Address, redemption.CoinAmount, redemption.FiatAmount)
	if err != nil {
		return nil, err
	}
	id := redemption.ID
	burn.SourceID = &id
	return burn, nil
}

// NewTransfer creates a queued marker transfer between two addresses.
func NewTransfer(from, to string, coinAmount decimal.Decimal) (*TransactionRequest, error) {
	req, err := NewRequest(KindTransfer, from, coinAmount, decimal.Zero)
	if err != nil {
		return nil, err
	}
	if err := ValidateAddress(to); err != nil {
		return nil, err
	}
	req.Recipient = &to
	return req, nil
}

// TxStatusRecord records one broadcast attempt for a request. Multiple
// records may exist per request id only when earlier attempts ended in
// ERROR; the store enforces at most one non-error record per id.
type TxStatusRecord struct {
	ID        uuid.UUID `json:"id" db:"id"`
	RequestID uuid.UUID `json:"requestId" db:"request_id"`
	TxHash    string    `json:"txHash" db:"tx_hash"`
	Type      TxType    `json:"type" db:"type"`
	Status    TxStatus  `json:"status" db:"status"`
	RawLog    *string   `json:"rawLog,omitempty" db:"raw_log"`
	Height    int64     `json:"height" db:"height"`
	Created   time.Time `json:"created" db:"created"`
}

// NewTxStatusRecord creates a PENDING record for a fresh broadcast.
func NewTxStatusRecord(requestID uuid.UUID, txHash string, txType TxType) *TxStatusRecord {
	return &TxStatusRecord{
		ID:        uuid.New(),
		RequestID: requestID,
		TxHash:    txHash,
		Type:      txType,
		Status:    TxStatusPending,
		Created:   time.Now().UTC(),
	}
}

// StreamBookmark is the persisted last-processed block height for one
// logical event stream. It advances monotonically and is never rewound
// except at initialization.
type StreamBookmark struct {
	StreamID    string    `json:"streamId" db:"stream_id"`
	BlockHeight int64     `json:"blockHeight" db:"block_height"`
	Created     time.Time `json:"created" db:"created"`
	Updated     time.Time `json:"updated" db:"updated"`
}

// CoinMovement is one observed on-chain transfer, recorded for audit and
// reporting. Keyed by (txHash, eventIndex) since one transaction can emit
// several transfer events.
type CoinMovement struct {
	TxHash      string          `json:"txHash" db:"tx_hash"`
	EventIndex  int             `json:"eventIndex" db:"event_index"`
	BlockHeight int64           `json:"blockHeight" db:"block_height"`
	Denom       string          `json:"denom" db:"denom"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	FromAddress string          `json:"fromAddress" db:"from_address"`
	ToAddress   string          `json:"toAddress" db:"to_address"`
	Created     time.Time       `json:"created" db:"created"`
}

// PendingTransferStatus is the lifecycle of an observed inbound transfer.
type PendingTransferStatus string

const (
	TransferReceived PendingTransferStatus = "RECEIVED"
	TransferNotified PendingTransferStatus = "NOTIFIED"
	TransferError    PendingTransferStatus = "ERROR"
)

// PendingTransfer is an inbound marker transfer observed on chain that
// still needs its sender resolved against known registrations and the
// bank notified of the resulting fiat deposit.
type PendingTransfer struct {
	ID          uuid.UUID             `json:"id" db:"id"`
	TxHash      string                `json:"txHash" db:"tx_hash"`
	EventIndex  int                   `json:"eventIndex" db:"event_index"`
	BlockHeight int64                 `json:"blockHeight" db:"block_height"`
	Denom       string                `json:"denom" db:"denom"`
	Amount      decimal.Decimal       `json:"amount" db:"amount"`
	FromAddress string                `json:"fromAddress" db:"from_address"`
	ToAddress   string                `json:"toAddress" db:"to_address"`
	Status      PendingTransferStatus `json:"status" db:"status"`
	Created     time.Time             `json:"created" db:"created"`
	Updated     time.Time             `json:"updated" db:"updated"`
}
