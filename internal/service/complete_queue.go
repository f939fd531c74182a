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

// CompleteQueue is the complete-event half of a kind's state machine:
// it loads rows in the kind's pending status and advances them once the
// broadcast attempt resolves. Tag and detag rows additionally confirm
// the attribute state on chain before advancing; a completed redemption
// chains a burn request inside the same row-lock transaction.
type CompleteQueue struct {
	kind     domain.RequestKind
	db       *storage.PostgresDB
	requests *storage.RequestRepository
	statuses *storage.TxStatusRepository

	// client and attribute are set for tag/detag, whose completion is
	// confirmed against on-chain attribute state.
	client    chain.Client
	attribute string

	// registrations is set for tag/detag to drop the stale cache entry
	// once the registration state changes.
	registrations *RegistrationService

	log *logging.Logger
}

// NewCompleteQueue creates the complete-event queue for a kind.
func NewCompleteQueue(
	kind domain.RequestKind,
	db *storage.PostgresDB,
	requests *storage.RequestRepository,
	statuses *storage.TxStatusRepository,
	log *logging.Logger,
) *CompleteQueue {
	q := &CompleteQueue{
		kind:     kind,
		db:       db,
		requests: requests,
		statuses: statuses,
	}
	q.log = log.Component(q.Name())
	return q
}

// WithAttributeCheck confirms tag/detag completion against the named
// on-chain attribute and invalidates the registration cache afterwards.
func (q *CompleteQueue) WithAttributeCheck(client chain.Client, attribute string, registrations *RegistrationService) *CompleteQueue {
	q.client = client
	q.attribute = attribute
	q.registrations = registrations
	return q
}

// Name identifies the queue in logs and metrics.
func (q *CompleteQueue) Name() string {
	return fmt.Sprintf("%s-complete-queue", kindSlug(q.kind))
}

// LoadMessages returns the ids of rows awaiting on-chain confirmation.
func (q *CompleteQueue) LoadMessages(ctx context.Context) ([]uuid.UUID, error) {
	return q.requests.ListIDs(ctx, q.kind, domain.PendingStatus(q.kind), loadLimit)
}

// ProcessMessage advances one pending request under its row lock based
// on its broadcast attempt history:
//   - no attempts at all: fatal invariant violation, VALIDATION_FAILED
//   - every attempt errored: confirmed broadcast failure, reset for retry
//   - one surviving attempt still PENDING: leave for the next cycle
//   - one surviving attempt COMPLETE: advance to TXN_COMPLETE
func (q *CompleteQueue) ProcessMessage(ctx context.Context, id uuid.UUID) error {
	var completed *domain.TransactionRequest

	err := q.db.WithTx(ctx, func(tx pgx.Tx) error {
		req, err := q.requests.GetForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		}
		if req.Status != domain.PendingStatus(q.kind) {
			return nil
		}

		recs, err := q.statuses.ListByRequest(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			q.log.WithField("requestId", req.ID).Error("pending request has no broadcast attempt history")
			return q.requests.SetStatus(ctx, tx, req, domain.StatusValidationFailed)
		}

		var live *domain.TxStatusRecord
		for _, rec := range recs {
			if rec.Status == domain.TxStatusError {
				continue
			}
			if live != nil {
				q.log.WithField("requestId", req.ID).Error("pending request has multiple surviving broadcast attempts")
				return q.requests.SetStatus(ctx, tx, req, domain.StatusValidationFailed)
			}
			live = rec
		}
		if live == nil {
			// Every attempt is confirmed failed: clear the hash and let
			// the create queue broadcast again.
			q.log.WithField("requestId", req.ID).Info("all broadcast attempts failed, resetting for retry")
			return q.requests.ResetForRetry(ctx, tx, req)
		}
		if live.Type != domain.TxTypeFor(q.kind) {
			q.log.WithFields(map[string]interface{}{"requestId": req.ID, "type": live.Type}).Error("surviving broadcast attempt has the wrong type")
			return q.requests.SetStatus(ctx, tx, req, domain.StatusValidationFailed)
		}
		if live.Status != domain.TxStatusComplete {
			// Still waiting on the stream or the reaper.
			return nil
		}

		if q.client != nil {
			confirmed, err := q.attributeConfirmed(ctx, req.Address)
			if err != nil {
				return err
			}
			if !confirmed {
				// The transaction completed but the node has not caught
				// up on attribute state. Check again next cycle.
				return nil
			}
		}

		if err := q.requests.SetStatus(ctx, tx, req, domain.StatusTxnComplete); err != nil {
			return err
		}
		if req.Kind == domain.KindRedemption {
			burn, err := domain.NewBurnForRedemption(req)
			if err != nil {
				return err
			}
			if err := q.requests.Insert(ctx, tx, burn); err != nil {
				return err
			}
			q.log.WithFields(map[string]interface{}{"requestId": req.ID, "burnId": burn.ID}).Info("redemption complete, burn chained")
		}

		completed = req
		return nil
	})
	if err != nil {
		return err
	}

	if completed != nil && q.registrations != nil {
		// Best effort: a stale cache entry expires on its own TTL.
		q.registrations.Invalidate(ctx, completed.Address)
	}
	return nil
}

// attributeConfirmed checks the chain's attribute state against what a
// completed tag (present) or detag (absent) implies.
func (q *CompleteQueue) attributeConfirmed(ctx context.Context, address string) (bool, error) {
	attr, err := q.client.GetAttribute(ctx, address, q.attribute)
	if err != nil {
		return false, fmt.Errorf("failed to query attribute %s on %s: %w", q.attribute, address, err)
	}
	if q.kind == domain.KindTag {
		return attr != nil, nil
	}
	return attr == nil, nil
}

// OnSuccess logs a processed directive.
func (q *CompleteQueue) OnSuccess(ctx context.Context, id uuid.UUID) {
	q.log.WithField("requestId", id).Debug("processed")
}

// OnFailure logs a failed directive for retry next cycle.
func (q *CompleteQueue) OnFailure(ctx context.Context, id uuid.UUID, err error) {
	q.log.WithField("requestId", id).WithError(err).Warn("processing failed, will retry next cycle")
}
