package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/chain"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/domain"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/logging"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/storage"
)

// TransferQueue is the create-event queue for marker transfers. Unlike
// the single-message kinds it is a batch actor: one broadcast carries
// every transfer in the batch, amortizing network and gas cost across
// a settlement round.
type TransferQueue struct {
	db            *storage.PostgresDB
	requests      *storage.RequestRepository
	statuses      *storage.TxStatusRepository
	registrations *RegistrationService
	client        chain.Client
	timeouts      *chain.TimeoutHeightCache
	denom         string
	batchSize     int
	log           *logging.Logger
}

// NewTransferQueue creates the marker transfer batch queue.
func NewTransferQueue(
	db *storage.PostgresDB,
	requests *storage.RequestRepository,
	statuses *storage.TxStatusRepository,
	registrations *RegistrationService,
	client chain.Client,
	timeouts *chain.TimeoutHeightCache,
	denom string,
	batchSize int,
	log *logging.Logger,
) *TransferQueue {
	q := &TransferQueue{
		db:            db,
		requests:      requests,
		statuses:      statuses,
		registrations: registrations,
		client:        client,
		timeouts:      timeouts,
		denom:         denom,
		batchSize:     batchSize,
	}
	q.log = log.Component(q.Name())
	return q
}

// Name identifies the queue in logs and metrics.
func (q *TransferQueue) Name() string { return "marker-transfer-create-queue" }

// BatchSize caps one broadcast's transfer count.
func (q *TransferQueue) BatchSize() int { return q.batchSize }

// LoadBatch returns the ids of queued transfers.
func (q *TransferQueue) LoadBatch(ctx context.Context) ([]uuid.UUID, error) {
	return q.requests.ListIDs(ctx, domain.KindTransfer, domain.StatusQueued, q.batchSize)
}

// ProcessBatch locks the batch's rows, drops senders that cannot be
// resolved against known registrations (a data problem, moved straight
// to ERROR with no retry), and broadcasts the rest as one transaction.
func (q *TransferQueue) ProcessBatch(ctx context.Context, ids []uuid.UUID) error {
	return q.db.WithTx(ctx, func(tx pgx.Tx) error {
		var (
			reqs []*domain.TransactionRequest
			msgs []chain.Msg
		)
		for _, id := range ids {
			req, err := q.requests.GetForUpdate(ctx, tx, id)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					continue
				}
				return err
			}
			if req.Status != domain.StatusQueued {
				continue
			}
			if req.Recipient == nil {
				q.log.WithField("requestId", req.ID).Error("transfer has no recipient")
				if err := q.requests.SetStatus(ctx, tx, req, domain.StatusValidationFailed); err != nil {
					return err
				}
				continue
			}

			registered, err := q.registrations.IsRegistered(ctx, req.Address)
			if err != nil {
				return err
			}
			if !registered {
				q.log.WithFields(map[string]interface{}{"requestId": req.ID, "address": req.Address}).Error("transfer sender is not a known registration")
				if err := q.requests.SetStatus(ctx, tx, req, domain.StatusError); err != nil {
					return err
				}
				continue
			}

			msgs = append(msgs, chain.Msg{
				Action:    chain.ActionTransfer,
				Address:   req.Address,
				Recipient: *req.Recipient,
				Amount:    req.CoinAmount,
				Denom:     q.denom,
			})
			reqs = append(reqs, req)
		}
		if len(msgs) == 0 {
			return nil
		}

		timeoutHeight, err := q.timeouts.TimeoutHeight(ctx)
		if err != nil {
			return fmt.Errorf("failed to compute timeout height: %w", err)
		}
		res, err := q.client.Broadcast(ctx, msgs, timeoutHeight)
		if err != nil {
			return fmt.Errorf("transfer batch broadcast failed: %w", err)
		}
		if !res.Succeeded() {
			return fmt.Errorf("transfer batch broadcast rejected (code %d): %s", res.Code, res.RawLog)
		}

		for _, req := range reqs {
			rec := domain.NewTxStatusRecord(req.ID, res.TxHash, domain.TxTypeTransfer)
			if err := q.statuses.Insert(ctx, tx, rec); err != nil {
				return err
			}
			if err := q.requests.SetBroadcast(ctx, tx, req, res.TxHash); err != nil {
				return err
			}
		}
		q.log.WithFields(map[string]interface{}{"txHash": res.TxHash, "transfers": len(reqs)}).Info("transfer batch broadcast")
		return nil
	})
}

// OnSuccess logs a processed batch.
func (q *TransferQueue) OnSuccess(ctx context.Context, ids []uuid.UUID) {
	q.log.WithField("batch", len(ids)).Debug("processed")
}

// OnFailure logs a failed batch. No row advanced, so the next cycle
// reloads and retries the whole batch.
func (q *TransferQueue) OnFailure(ctx context.Context, ids []uuid.UUID, err error) {
	q.log.WithField("batch", len(ids)).WithError(err).Warn("batch failed, will retry next cycle")
}
