package domain

import "fmt"

// Status is the lifecycle state of a transaction request row.
type Status string

const (
	// Initial statuses. Requests created by the API start INSERTED;
	// settlement transfers produced by the netting batch start QUEUED.
	StatusInserted Status = "INSERTED"
	StatusQueued   Status = "QUEUED"

	// Pending statuses mean a broadcast happened and the row is waiting
	// for the on-chain event to be observed.
	StatusPendingMint     Status = "PENDING_MINT"
	StatusPendingBurn     Status = "PENDING_BURN"
	StatusPendingRedeem   Status = "PENDING_REDEEM"
	StatusPendingTag      Status = "PENDING_TAG"
	StatusPendingDetag    Status = "PENDING_DETAG"
	StatusPendingTransfer Status = "PENDING_TRANSFER"

	// StatusTxnComplete means the on-chain event was confirmed.
	StatusTxnComplete Status = "TXN_COMPLETE"
	// StatusActionComplete means the post-chain bank notification was
	// delivered. Only kinds with a notification step reach it.
	StatusActionComplete Status = "ACTION_COMPLETE"

	// Terminal failure statuses. Never retried automatically.
	StatusError            Status = "ERROR"
	StatusValidationFailed Status = "VALIDATION_FAILED"
	StatusException        Status = "EXCEPTION"
)

// IsTerminal reports whether a row in this status is immutable.
func (s Status) IsTerminal(kind RequestKind) bool {
	switch s {
	case StatusError, StatusValidationFailed, StatusException, StatusActionComplete:
		return true
	case StatusTxnComplete:
		// Kinds with a notification step still have work to do.
		return !hasNotification(kind)
	}
	return false
}

// IsFailure reports whether the status is a terminal failure.
func (s Status) IsFailure() bool {
	return s == StatusError || s == StatusValidationFailed || s == StatusException
}

// hasNotification reports whether a kind notifies the bank after the
// on-chain transaction completes.
func hasNotification(kind RequestKind) bool {
	switch kind {
	case KindMint, KindBurn:
		return true
	}
	return false
}

// InitialStatus returns the status a freshly created request of the
// given kind carries.
func InitialStatus(kind RequestKind) Status {
	if kind == KindTransfer {
		return StatusQueued
	}
	return StatusInserted
}

// PendingStatus returns the broadcast-in-flight status for a kind.
func PendingStatus(kind RequestKind) Status {
	switch kind {
	case KindMint:
		return StatusPendingMint
	case KindBurn:
		return StatusPendingBurn
	case KindRedemption:
		return StatusPendingRedeem
	case KindTag:
		return StatusPendingTag
	case KindDetag:
		return StatusPendingDetag
	case KindTransfer:
		return StatusPendingTransfer
	}
	return ""
}

// forward holds the forward edges of every kind's status graph. Terminal
// failure statuses are reachable from any non-terminal status and are not
// listed here.
var forward = map[RequestKind]map[Status]Status{
	KindMint:       {StatusInserted: StatusPendingMint, StatusPendingMint: StatusTxnComplete, StatusTxnComplete: StatusActionComplete},
	KindBurn:       {StatusInserted: StatusPendingBurn, StatusPendingBurn: StatusTxnComplete, StatusTxnComplete: StatusActionComplete},
	KindRedemption: {StatusInserted: StatusPendingRedeem, StatusPendingRedeem: StatusTxnComplete},
	KindTag:        {StatusInserted: StatusPendingTag, StatusPendingTag: StatusTxnComplete},
	KindDetag:      {StatusInserted: StatusPendingDetag, StatusPendingDetag: StatusTxnComplete},
	KindTransfer:   {StatusQueued: StatusPendingTransfer, StatusPendingTransfer: StatusTxnComplete},
}

// CanTransition reports whether moving a request of the given kind from
// one status to another is legal. Legal moves are the kind's forward
// edges, a move into a terminal failure from any non-terminal status,
// and the explicit retry reset from the pending status back to the
// initial status.
func CanTransition(kind RequestKind, from, to Status) bool {
	if from.IsTerminal(kind) {
		return false
	}
	if to.IsFailure() {
		return true
	}
	if forward[kind][from] == to {
		return true
	}
	// Retry reset after a confirmed broadcast failure.
	if from == PendingStatus(kind) && to == InitialStatus(kind) {
		return true
	}
	return false
}

// Transition validates a status move and returns an error describing the
// violation when the move is illegal.
func Transition(kind RequestKind, from, to Status) error {
	if !CanTransition(kind, from, to) {
		return fmt.Errorf("illegal %s status transition %s -> %s", kind, from, to)
	}
	return nil
}

// TxStatus is the outcome of one broadcast attempt.
type TxStatus string

const (
	TxStatusPending  TxStatus = "PENDING"
	TxStatusComplete TxStatus = "COMPLETE"
	TxStatusError    TxStatus = "ERROR"
)
