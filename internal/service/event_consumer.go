package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/chain"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/domain"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/logging"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/storage"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/stream"
)

// Event shapes the middleware reacts to, in the chain's {type,
// attributes} format.
const (
	EventMarkerTransfer = "provenance.marker.v1.EventMarkerTransfer"
	EventMarkerMint     = "provenance.marker.v1.EventMarkerMint"
	EventMarkerBurn     = "provenance.marker.v1.EventMarkerBurn"

	attrAmount = "amount"
	attrDenom  = "denom"
	attrFrom   = "from_address"
	attrTo     = "to_address"
)

// StreamID names the single logical event stream whose bookmark tracks
// ingestion progress.
const StreamID = "coin-movements"

// EventTypes lists the event types the stream filter should accept.
func EventTypes() []string {
	return []string{EventMarkerTransfer, EventMarkerMint, EventMarkerBurn}
}

// EventConsumer turns each dispatched block into persisted facts: it
// records observed coin movements, resolves pending broadcast attempts
// whose hash appears in the block, and captures inbound transfers to
// the member address as fiat deposits. Every write is idempotent, so
// replaying a block after a crash converges to the same state.
type EventConsumer struct {
	db        *storage.PostgresDB
	movements *storage.MovementRepository
	statuses  *storage.TxStatusRepository
	archive   *storage.ClickHouseDB

	denom         string
	memberAddress string
	log           *logging.Logger
}

// NewEventConsumer creates an event consumer. archive may be nil when
// the ClickHouse reporting archive is disabled.
func NewEventConsumer(
	db *storage.PostgresDB,
	movements *storage.MovementRepository,
	statuses *storage.TxStatusRepository,
	archive *storage.ClickHouseDB,
	denom, memberAddress string,
	log *logging.Logger,
) *EventConsumer {
	return &EventConsumer{
		db:            db,
		movements:     movements,
		statuses:      statuses,
		archive:       archive,
		denom:         denom,
		memberAddress: memberAddress,
		log:           log.Component("event-consumer"),
	}
}

// HandleBlock processes one block's filtered events. The stream
// advances its bookmark only after this returns nil.
func (c *EventConsumer) HandleBlock(ctx context.Context, block stream.BlockData) error {
	var (
		moves  []*domain.CoinMovement
		hashes []string
		seen   = map[string]bool{}
	)
	for _, ev := range block.Events {
		if !seen[ev.TxHash] {
			seen[ev.TxHash] = true
			hashes = append(hashes, ev.TxHash)
		}
		if ev.Type != EventMarkerTransfer {
			continue
		}
		m, err := movementFromEvent(ev)
		if err != nil {
			c.log.WithError(err).WithFields(map[string]interface{}{"txHash": ev.TxHash, "eventIndex": ev.EventIndex}).Warn("skipping malformed transfer event")
			continue
		}
		if m.Denom != c.denom {
			continue
		}
		moves = append(moves, m)
	}

	for _, m := range moves {
		if err := c.movements.InsertMovement(ctx, c.db.Pool(), m); err != nil {
			return err
		}
	}

	for _, hash := range hashes {
		if err := c.resolvePending(ctx, hash, block.Height); err != nil {
			return err
		}
	}

	if err := c.captureDeposits(ctx, moves); err != nil {
		return err
	}

	if c.archive != nil && len(moves) > 0 {
		// Postgres is committed; the archive write is advisory and must
		// not hold up bookmark advancement.
		go func(moves []*domain.CoinMovement) {
			actx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := c.archive.ArchiveMovements(actx, moves); err != nil {
				c.log.WithError(err).Warn("movement archive write failed")
			}
		}(moves)
	}

	if len(moves) > 0 || len(hashes) > 0 {
		c.log.WithFields(map[string]interface{}{"height": block.Height, "movements": len(moves), "txs": len(hashes)}).Debug("block processed")
	}
	return nil
}

// resolvePending marks every open broadcast attempt with this hash as
// COMPLETE. Observing the hash in a committed block is the confirmation
// the complete queues wait on.
func (c *EventConsumer) resolvePending(ctx context.Context, txHash string, height int64) error {
	recs, err := c.statuses.ListPendingByTxHash(ctx, c.db.Pool(), txHash)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		err := c.db.WithTx(ctx, func(tx pgx.Tx) error {
			locked, err := c.statuses.GetForUpdate(ctx, tx, rec.ID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return nil
				}
				return err
			}
			if locked.Status != domain.TxStatusPending {
				// The reaper beat us to it.
				return nil
			}
			return c.statuses.Resolve(ctx, tx, locked, domain.TxStatusComplete, height, nil)
		})
		if err != nil {
			return err
		}
		c.log.WithFields(map[string]interface{}{"txHash": txHash, "requestId": rec.RequestID, "height": height}).Info("broadcast attempt confirmed")
	}
	return nil
}

// captureDeposits records inbound transfers to the member address that
// the middleware did not originate. The (txHash, eventIndex) key makes
// the insert a no-op on replay.
func (c *EventConsumer) captureDeposits(ctx context.Context, moves []*domain.CoinMovement) error {
	if c.memberAddress == "" {
		return nil
	}
	for _, m := range moves {
		if m.ToAddress != c.memberAddress {
			continue
		}
		ours, err := c.statuses.ExistsForTxHash(ctx, c.db.Pool(), m.TxHash)
		if err != nil {
			return err
		}
		if ours {
			continue
		}
		now := time.Now().UTC()
		pt := &domain.PendingTransfer{
			ID:          uuid.New(),
			TxHash:      m.TxHash,
			EventIndex:  m.EventIndex,
			BlockHeight: m.BlockHeight,
			Denom:       m.Denom,
			Amount:      m.Amount,
			FromAddress: m.FromAddress,
			ToAddress:   m.ToAddress,
			Status:      domain.TransferReceived,
			Created:     now,
			Updated:     now,
		}
		if err := c.movements.InsertPendingTransfer(ctx, c.db.Pool(), pt); err != nil {
			return err
		}
		c.log.WithFields(map[string]interface{}{"txHash": m.TxHash, "from": m.FromAddress, "amount": m.Amount}).Info("inbound transfer observed")
	}
	return nil
}

// movementFromEvent parses one marker transfer event into a movement row.
func movementFromEvent(ev chain.Event) (*domain.CoinMovement, error) {
	amountStr, ok := ev.Attribute(attrAmount)
	if !ok {
		return nil, errors.New("transfer event missing amount attribute")
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, err
	}
	denom, ok := ev.Attribute(attrDenom)
	if !ok {
		return nil, errors.New("transfer event missing denom attribute")
	}
	from, ok := ev.Attribute(attrFrom)
	if !ok {
		return nil, errors.New("transfer event missing from_address attribute")
	}
	to, ok := ev.Attribute(attrTo)
	if !ok {
		return nil, errors.New("transfer event missing to_address attribute")
	}
	return &domain.CoinMovement{
		TxHash:      ev.TxHash,
		EventIndex:  ev.EventIndex,
		BlockHeight: ev.BlockHeight,
		Denom:       denom,
		Amount:      amount,
		FromAddress: from,
		ToAddress:   to,
		Created:     time.Now().UTC(),
	}, nil
}
