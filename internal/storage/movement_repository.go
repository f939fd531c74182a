package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/domain"
)

// MovementRepository persists the observed-transfer ledger: coin
// movements for audit/reporting and pending inbound transfers awaiting
// sender resolution.
type MovementRepository struct {
	db *PostgresDB
}

// NewMovementRepository creates a movement repository.
func NewMovementRepository(db *PostgresDB) *MovementRepository {
	return &MovementRepository{db: db}
}

// InsertMovement records one observed transfer. A duplicate
// (tx_hash, event_index) key is a no-op, which is what makes replaying
// an event batch after a crash safe.
func (r *MovementRepository) InsertMovement(ctx context.Context, q Querier, m *domain.CoinMovement) error {
	query := `
		INSERT INTO coin_movements (tx_hash, event_index, block_height, denom, amount, from_address, to_address, created)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tx_hash, event_index) DO NOTHING
	`
	_, err := q.Exec(ctx, query,
		m.TxHash, m.EventIndex, m.BlockHeight, m.Denom, m.Amount, m.FromAddress, m.ToAddress, m.Created,
	)
	if err != nil {
		return fmt.Errorf("failed to insert movement %s[%d]: %w", m.TxHash, m.EventIndex, err)
	}
	return nil
}

// CountMovements returns the number of recorded movements. Used by the
// ops status endpoint.
func (r *MovementRepository) CountMovements(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.Pool().QueryRow(ctx, `SELECT count(*) FROM coin_movements`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count movements: %w", err)
	}
	return count, nil
}

const pendingTransferColumns = `id, tx_hash, event_index, block_height, denom, amount, from_address, to_address, status, created, updated`

func scanPendingTransfer(row pgx.Row) (*domain.PendingTransfer, error) {
	var pt domain.PendingTransfer
	err := row.Scan(
		&pt.ID, &pt.TxHash, &pt.EventIndex, &pt.BlockHeight, &pt.Denom,
		&pt.Amount, &pt.FromAddress, &pt.ToAddress, &pt.Status, &pt.Created, &pt.Updated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan pending transfer: %w", err)
	}
	return &pt, nil
}

// InsertPendingTransfer records an observed inbound transfer. Duplicate
// (tx_hash, event_index) keys are a no-op.
func (r *MovementRepository) InsertPendingTransfer(ctx context.Context, q Querier, pt *domain.PendingTransfer) error {
	query := `
		INSERT INTO pending_transfers (` + pendingTransferColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tx_hash, event_index) DO NOTHING
	`
	_, err := q.Exec(ctx, query,
		pt.ID, pt.TxHash, pt.EventIndex, pt.BlockHeight, pt.Denom,
		pt.Amount, pt.FromAddress, pt.ToAddress, pt.Status, pt.Created, pt.Updated,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pending transfer %s[%d]: %w", pt.TxHash, pt.EventIndex, err)
	}
	return nil
}

// ListPendingTransferIDs returns the ids of transfers in RECEIVED
// status, oldest first. This is the deposit notification loader.
func (r *MovementRepository) ListPendingTransferIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM pending_transfers
		WHERE status = $1
		ORDER BY created
		LIMIT $2
	`
	rows, err := r.db.Pool().Query(ctx, query, domain.TransferReceived, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transfers: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan pending transfer id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending transfer ids: %w", err)
	}
	return ids, nil
}

// GetPendingTransferForUpdate retrieves a pending transfer holding a row lock.
func (r *MovementRepository) GetPendingTransferForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.PendingTransfer, error) {
	query := `SELECT ` + pendingTransferColumns + ` FROM pending_transfers WHERE id = $1 FOR UPDATE`
	return scanPendingTransfer(tx.QueryRow(ctx, query, id))
}

// SetPendingTransferStatus moves a locked pending transfer to a new status.
func (r *MovementRepository) SetPendingTransferStatus(ctx context.Context, tx pgx.Tx, pt *domain.PendingTransfer, status domain.PendingTransferStatus) error {
	query := `UPDATE pending_transfers SET status = $2, updated = now() WHERE id = $1`
	if _, err := tx.Exec(ctx, query, pt.ID, status); err != nil {
		return fmt.Errorf("failed to set pending transfer %s status to %s: %w", pt.ID, status, err)
	}
	pt.Status = status
	return nil
}
