package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/chain"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/domain"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/logging"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/storage"
)

// Reaper resolves broadcast attempts stuck PENDING past the timeout by
// querying the chain directly. It is the fallback consistency path for
// transactions the event stream never observed, for example when the
// node's event filter missed them or the transaction failed without
// emitting the expected event.
type Reaper struct {
	db       *storage.PostgresDB
	statuses *storage.TxStatusRepository
	client   chain.Client
	timeout  time.Duration
	log      *logging.Logger
}

// NewReaper creates the expired-event reaper. timeout is how long an
// attempt may stay PENDING before it is checked against the chain.
func NewReaper(db *storage.PostgresDB, statuses *storage.TxStatusRepository, client chain.Client, timeout time.Duration, log *logging.Logger) *Reaper {
	r := &Reaper{
		db:       db,
		statuses: statuses,
		client:   client,
		timeout:  timeout,
	}
	r.log = log.Component(r.Name())
	return r
}

// Name identifies the queue in logs and metrics.
func (r *Reaper) Name() string { return "expired-event-reaper" }

// LoadMessages returns the ids of attempts pending past the timeout.
func (r *Reaper) LoadMessages(ctx context.Context) ([]uuid.UUID, error) {
	return r.statuses.ListExpiredPendingIDs(ctx, r.timeout, loadLimit)
}

// ProcessMessage resolves one expired attempt under its row lock: the
// chain's answer decides COMPLETE, ERROR, or leave PENDING for the next
// sweep when the transaction is still unconfirmed.
func (r *Reaper) ProcessMessage(ctx context.Context, id uuid.UUID) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		rec, err := r.statuses.GetForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		}
		if rec.Status != domain.TxStatusPending {
			// The stream resolved it between load and lock.
			return nil
		}

		result, err := r.client.GetTransaction(ctx, rec.TxHash)
		if err != nil {
			if errors.Is(err, chain.ErrTxNotFound) {
				// Still in the mempool or dropped; the next sweep
				// checks again.
				return nil
			}
			return fmt.Errorf("chain lookup failed for tx %s: %w", rec.TxHash, err)
		}

		switch {
		case result.Succeeded():
			r.log.WithFields(map[string]interface{}{"txHash": rec.TxHash, "requestId": rec.RequestID, "height": result.Height}).Info("expired attempt confirmed complete")
			return r.statuses.Resolve(ctx, tx, rec, domain.TxStatusComplete, result.Height, nil)
		case result.Code != 0:
			r.log.WithFields(map[string]interface{}{"txHash": rec.TxHash, "requestId": rec.RequestID, "code": result.Code}).Warn("expired attempt failed on chain")
			rawLog := result.RawLog
			return r.statuses.Resolve(ctx, tx, rec, domain.TxStatusError, result.Height, &rawLog)
		default:
			// Accepted but not yet in a block.
			return nil
		}
	})
}

// OnSuccess logs a processed directive.
func (r *Reaper) OnSuccess(ctx context.Context, id uuid.UUID) {
	r.log.WithField("txStatusId", id).Debug("processed")
}

// OnFailure logs a failed directive for the next sweep.
func (r *Reaper) OnFailure(ctx context.Context, id uuid.UUID, err error) {
	r.log.WithField("txStatusId", id).WithError(err).Warn("reap failed, will retry next sweep")
}
