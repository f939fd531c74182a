// Package service wires the actor framework to the request state
// machines: per-kind create and complete queues, the settlement transfer
// batch, the bank notification queues, the event consumer fed by the
// stream pipeline, and the expired-event reaper.
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

// loadLimit caps how many directives a queue loader returns per cycle.
const loadLimit = 50

// CreateQueue is the create-event half of a kind's state machine: it
// loads rows in the initial status, broadcasts the on-chain action, and
// records the attempt. Marker transfers are batched and use
// TransferQueue instead.
type CreateQueue struct {
	kind     domain.RequestKind
	db       *storage.PostgresDB
	requests *storage.RequestRepository
	statuses *storage.TxStatusRepository
	client   chain.Client
	timeouts *chain.TimeoutHeightCache
	denom    string
	log      *logging.Logger
}

// NewCreateQueue creates the create-event queue for a kind.
func NewCreateQueue(
	kind domain.RequestKind,
	db *storage.PostgresDB,
	requests *storage.RequestRepository,
	statuses *storage.TxStatusRepository,
	client chain.Client,
	timeouts *chain.TimeoutHeightCache,
	denom string,
	log *logging.Logger,
) *CreateQueue {
	q := &CreateQueue{
		kind:     kind,
		db:       db,
		requests: requests,
		statuses: statuses,
		client:   client,
		timeouts: timeouts,
		denom:    denom,
	}
	q.log = log.Component(q.Name())
	return q
}

// Name identifies the queue in logs and metrics.
func (q *CreateQueue) Name() string {
	return fmt.Sprintf("%s-create-queue", kindSlug(q.kind))
}

// LoadMessages returns the ids of rows awaiting broadcast.
func (q *CreateQueue) LoadMessages(ctx context.Context) ([]uuid.UUID, error) {
	return q.requests.ListIDs(ctx, q.kind, domain.InitialStatus(q.kind), loadLimit)
}

// ProcessMessage broadcasts one request under its row lock. A remote
// failure leaves the row untouched so the next cycle retries it; a
// prior surviving broadcast attempt is an invariant violation and moves
// the row to EXCEPTION.
func (q *CreateQueue) ProcessMessage(ctx context.Context, id uuid.UUID) error {
	return q.db.WithTx(ctx, func(tx pgx.Tx) error {
		req, err := q.requests.GetForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		}
		if req.Status != domain.InitialStatus(q.kind) {
			// Another worker already advanced this row.
			return nil
		}

		if _, err := q.statuses.FindLive(ctx, tx, req.ID); err == nil {
			q.log.WithField("requestId", req.ID).Error("request has a surviving broadcast attempt but never left its initial status")
			return q.requests.SetStatus(ctx, tx, req, domain.StatusException)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		timeoutHeight, err := q.timeouts.TimeoutHeight(ctx)
		if err != nil {
			return fmt.Errorf("failed to compute timeout height: %w", err)
		}
		res, err := q.client.Broadcast(ctx, []chain.Msg{q.msgFor(req)}, timeoutHeight)
		if err != nil {
			return fmt.Errorf("broadcast failed for request %s: %w", req.ID, err)
		}
		if !res.Succeeded() {
			return fmt.Errorf("broadcast rejected for request %s (code %d): %s", req.ID, res.Code, res.RawLog)
		}

		rec := domain.NewTxStatusRecord(req.ID, res.TxHash, domain.TxTypeFor(q.kind))
		if err := q.statuses.Insert(ctx, tx, rec); err != nil {
			return err
		}
		return q.requests.SetBroadcast(ctx, tx, req, res.TxHash)
	})
}

// OnSuccess logs a processed directive.
func (q *CreateQueue) OnSuccess(ctx context.Context, id uuid.UUID) {
	q.log.WithField("requestId", id).Debug("processed")
}

// OnFailure logs a failed directive. The row was not advanced, so the
// next polling cycle retries it.
func (q *CreateQueue) OnFailure(ctx context.Context, id uuid.UUID, err error) {
	q.log.WithField("requestId", id).WithError(err).Warn("processing failed, will retry next cycle")
}

func (q *CreateQueue) msgFor(req *domain.TransactionRequest) chain.Msg {
	return chain.Msg{
		Action:  actionFor(req.Kind),
		Address: req.Address,
		Amount:  req.CoinAmount,
		Denom:   q.denom,
	}
}

func actionFor(kind domain.RequestKind) chain.Action {
	switch kind {
	case domain.KindMint:
		return chain.ActionMint
	case domain.KindBurn:
		return chain.ActionBurn
	case domain.KindRedemption:
		return chain.ActionRedeem
	case domain.KindTag:
		return chain.ActionTag
	case domain.KindDetag:
		return chain.ActionDetag
	case domain.KindTransfer:
		return chain.ActionTransfer
	}
	return chain.Action(kind)
}

func kindSlug(kind domain.RequestKind) string {
	switch kind {
	case domain.KindMint:
		return "mint"
	case domain.KindBurn:
		return "burn"
	case domain.KindRedemption:
		return "redemption"
	case domain.KindTag:
		return "tag"
	case domain.KindDetag:
		return "detag"
	case domain.KindTransfer:
		return "marker-transfer"
	}
	return "unknown"
}
