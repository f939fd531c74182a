package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/bank"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/domain"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/logging"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/storage"
)

// NotificationQueue finalizes mint and burn requests by notifying the
// bank middleware after the on-chain transaction completes. A failed
// notification leaves the row in TXN_COMPLETE so the next cycle
// retries; the bank treats the calls as idempotent.
type NotificationQueue struct {
	kind     domain.RequestKind
	db       *storage.PostgresDB
	requests *storage.RequestRepository
	bank     bank.Client
	log      *logging.Logger
}

// NewNotificationQueue creates the bank notification queue for a kind.
// Only mint and burn carry a notification step.
func NewNotificationQueue(kind domain.RequestKind, db *storage.PostgresDB, requests *storage.RequestRepository, bankClient bank.Client, log *logging.Logger) (*NotificationQueue, error) {
	if kind != domain.KindMint && kind != domain.KindBurn {
		return nil, fmt.Errorf("kind %s has no notification step", kind)
	}
	q := &NotificationQueue{
		kind:     kind,
		db:       db,
		requests: requests,
		bank:     bankClient,
	}
	q.log = log.Component(q.Name())
	return q, nil
}

// Name identifies the queue in logs and metrics.
func (q *NotificationQueue) Name() string {
	return fmt.Sprintf("%s-notification-queue", kindSlug(q.kind))
}

// LoadMessages returns the ids of rows awaiting bank notification.
func (q *NotificationQueue) LoadMessages(ctx context.Context) ([]uuid.UUID, error) {
	return q.requests.ListIDs(ctx, q.kind, domain.StatusTxnComplete, loadLimit)
}

// ProcessMessage notifies the bank for one request under its row lock
// and advances it to ACTION_COMPLETE.
func (q *NotificationQueue) ProcessMessage(ctx context.Context, id uuid.UUID) error {
	return q.db.WithTx(ctx, func(tx pgx.Tx) error {
		req, err := q.requests.GetForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		}
		if req.Status != domain.StatusTxnComplete {
			return nil
		}

		if q.kind == domain.KindMint {
			err = q.bank.NotifyMintComplete(ctx, req.ID)
		} else {
			err = q.bank.NotifyBurnComplete(ctx, req.ID)
		}
		if err != nil {
			return fmt.Errorf("bank notification failed for request %s: %w", req.ID, err)
		}
		return q.requests.SetStatus(ctx, tx, req, domain.StatusActionComplete)
	})
}

// OnSuccess logs a processed directive.
func (q *NotificationQueue) OnSuccess(ctx context.Context, id uuid.UUID) {
	q.log.WithField("requestId", id).Debug("processed")
}

// OnFailure logs a failed directive for retry next cycle.
func (q *NotificationQueue) OnFailure(ctx context.Context, id uuid.UUID, err error) {
	q.log.WithField("requestId", id).WithError(err).Warn("notification failed, will retry next cycle")
}

// DepositQueue notifies the bank of observed inbound transfers so it
// can credit the customer's fiat account. A sender that does not
// resolve to a known registration is a data problem, not a transient
// one, and moves the row straight to ERROR.
type DepositQueue struct {
	db            *storage.PostgresDB
	movements     *storage.MovementRepository
	registrations *RegistrationService
	bank          bank.Client
	log           *logging.Logger
}

// NewDepositQueue creates the fiat deposit notification queue.
func NewDepositQueue(db *storage.PostgresDB, movements *storage.MovementRepository, registrations *RegistrationService, bankClient bank.Client, log *logging.Logger) *DepositQueue {
	q := &DepositQueue{
		db:            db,
		movements:     movements,
		registrations: registrations,
		bank:          bankClient,
	}
	q.log = log.Component(q.Name())
	return q
}

// Name identifies the queue in logs and metrics.
func (q *DepositQueue) Name() string { return "fiat-deposit-queue" }

// LoadMessages returns the ids of received transfers awaiting
// notification.
func (q *DepositQueue) LoadMessages(ctx context.Context) ([]uuid.UUID, error) {
	return q.movements.ListPendingTransferIDs(ctx, loadLimit)
}

// ProcessMessage resolves one pending transfer's sender and notifies
// the bank under the row lock.
func (q *DepositQueue) ProcessMessage(ctx context.Context, id uuid.UUID) error {
	return q.db.WithTx(ctx, func(tx pgx.Tx) error {
		pt, err := q.movements.GetPendingTransferForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		}
		if pt.Status != domain.TransferReceived {
			return nil
		}

		registered, err := q.registrations.IsRegistered(ctx, pt.FromAddress)
		if err != nil {
			return err
		}
		if !registered {
			q.log.WithFields(map[string]interface{}{"transferId": pt.ID, "from": pt.FromAddress}).Error("inbound transfer sender is not a known registration")
			return q.movements.SetPendingTransferStatus(ctx, tx, pt, domain.TransferError)
		}

		dep := bank.DepositNotification{
			ID:          pt.ID,
			TxHash:      pt.TxHash,
			FromAddress: pt.FromAddress,
			ToAddress:   pt.ToAddress,
			Amount:      pt.Amount,
			Denom:       pt.Denom,
		}
		if err := q.bank.NotifyFiatDeposit(ctx, dep); err != nil {
			return fmt.Errorf("fiat deposit notification failed for transfer %s: %w", pt.ID, err)
		}
		return q.movements.SetPendingTransferStatus(ctx, tx, pt, domain.TransferNotified)
	})
}

// OnSuccess logs a processed directive.
func (q *DepositQueue) OnSuccess(ctx context.Context, id uuid.UUID) {
	q.log.WithField("transferId", id).Debug("processed")
}

// OnFailure logs a failed directive for retry next cycle.
func (q *DepositQueue) OnFailure(ctx context.Context, id uuid.UUID, err error) {
	q.log.WithField("transferId", id).WithError(err).Warn("notification failed, will retry next cycle")
}
