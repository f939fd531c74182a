// Package bank defines the contract for the bank middleware the
// consortium notifies after on-chain actions complete. Calls are
// fire-and-forget idempotent: a failure leaves the owning request row
// untouched so the notification queue retries next cycle.
package bank

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DepositNotification describes an observed inbound transfer that
// resolved to a registered customer address.
type DepositNotification struct {
	ID          uuid.UUID       `json:"id"`
	TxHash      string          `json:"txHash"`
	FromAddress string          `json:"fromAddress"`
	ToAddress   string          `json:"toAddress"`
	Amount      decimal.Decimal `json:"amount"`
	Denom       string          `json:"denom"`
}

// Client is the bank middleware notification contract.
type Client interface {
	// NotifyMintComplete reports that the mint with the given request
	// id settled on chain.
	NotifyMintComplete(ctx context.Context, requestID uuid.UUID) error

	// NotifyBurnComplete reports that the burn with the given request
	// id settled on chain.
	NotifyBurnComplete(ctx context.Context, requestID uuid.UUID) error

	// NotifyFiatDeposit reports an observed inbound transfer so the
	// bank can credit the customer's fiat account.
	NotifyFiatDeposit(ctx context.Context, dep DepositNotification) error
}
