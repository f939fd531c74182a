package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/domain"
)

// TxStatusRepository persists broadcast attempt records. A partial
// unique index on (request_id) WHERE status <> 'ERROR' enforces at most
// one live attempt per request.
type TxStatusRepository struct {
	db *PostgresDB
}

// NewTxStatusRepository creates a tx status repository.
func NewTxStatusRepository(db *PostgresDB) *TxStatusRepository {
	return &TxStatusRepository{db: db}
}

const txStatusColumns = `id, request_id, tx_hash, type, status, raw_log, height, created`

func scanTxStatus(row pgx.Row) (*domain.TxStatusRecord, error) {
	var rec domain.TxStatusRecord
	err := row.Scan(
		&rec.ID, &rec.RequestID, &rec.TxHash, &rec.Type,
		&rec.Status, &rec.RawLog, &rec.Height, &rec.Created,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan tx status: %w", err)
	}
	return &rec, nil
}

func collectTxStatuses(rows pgx.Rows) ([]*domain.TxStatusRecord, error) {
	defer rows.Close()
	var recs []*domain.TxStatusRecord
	for rows.Next() {
		var rec domain.TxStatusRecord
		err := rows.Scan(
			&rec.ID, &rec.RequestID, &rec.TxHash, &rec.Type,
			&rec.Status, &rec.RawLog, &rec.Height, &rec.Created,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tx status: %w", err)
		}
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tx statuses: %w", err)
	}
	return recs, nil
}

// Insert creates a broadcast attempt record. The partial unique index
// rejects a second non-error record for the same request.
func (r *TxStatusRepository) Insert(ctx context.Context, q Querier, rec *domain.TxStatusRecord) error {
	query := `
		INSERT INTO tx_status (` + txStatusColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := q.Exec(ctx, query,
		rec.ID, rec.RequestID, rec.TxHash, rec.Type,
		rec.Status, rec.RawLog, rec.Height, rec.Created,
	)
	if err != nil {
		return fmt.Errorf("failed to insert tx status for request %s: %w", rec.RequestID, err)
	}
	return nil
}

// ListByRequest returns every broadcast attempt for a request, oldest first.
func (r *TxStatusRepository) ListByRequest(ctx context.Context, q Querier, requestID uuid.UUID) ([]*domain.TxStatusRecord, error) {
	query := `SELECT ` + txStatusColumns + ` FROM tx_status WHERE request_id = $1 ORDER BY created`
	rows, err := q.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tx statuses for request %s: %w", requestID, err)
	}
	return collectTxStatuses(rows)
}

// FindLive returns the single non-error attempt for a request, or
// domain.ErrNotFound when every attempt errored (or none exists).
func (r *TxStatusRepository) FindLive(ctx context.Context, q Querier, requestID uuid.UUID) (*domain.TxStatusRecord, error) {
	query := `SELECT ` + txStatusColumns + ` FROM tx_status WHERE request_id = $1 AND status <> $2`
	return scanTxStatus(q.QueryRow(ctx, query, requestID, domain.TxStatusError))
}

// ListPendingByTxHash returns pending attempts whose broadcast produced
// the given transaction hash. Used by the event consumer to resolve
// observed events against open attempts.
func (r *TxStatusRepository) ListPendingByTxHash(ctx context.Context, q Querier, txHash string) ([]*domain.TxStatusRecord, error) {
	query := `SELECT ` + txStatusColumns + ` FROM tx_status WHERE tx_hash = $1 AND status = $2`
	rows, err := q.Query(ctx, query, txHash, domain.TxStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending tx statuses for hash %s: %w", txHash, err)
	}
	return collectTxStatuses(rows)
}

// ExistsForTxHash reports whether any broadcast attempt produced the
// given transaction hash, regardless of its current status. Used to
// separate the middleware's own transactions from externally observed
// ones.
func (r *TxStatusRepository) ExistsForTxHash(ctx context.Context, q Querier, txHash string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM tx_status WHERE tx_hash = $1)`
	if err := q.QueryRow(ctx, query, txHash).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check tx status existence for hash %s: %w", txHash, err)
	}
	return exists, nil
}

// ListExpiredPendingIDs returns the ids of attempts that have stayed
// PENDING past the cutoff. This is the reaper's loader query.
func (r *TxStatusRepository) ListExpiredPendingIDs(ctx context.Context, olderThan time.Duration, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM tx_status
		WHERE status = $1 AND created < $2
		ORDER BY created
		LIMIT $3
	`
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := r.db.Pool().Query(ctx, query, domain.TxStatusPending, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired pending tx statuses: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tx status id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tx status ids: %w", err)
	}
	return ids, nil
}

// GetForUpdate retrieves an attempt by id holding a row lock.
func (r *TxStatusRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.TxStatusRecord, error) {
	query := `SELECT ` + txStatusColumns + ` FROM tx_status WHERE id = $1 FOR UPDATE`
	return scanTxStatus(tx.QueryRow(ctx, query, id))
}

// Resolve sets the outcome of a locked attempt: COMPLETE or ERROR plus
// the block height and raw log observed on chain.
func (r *TxStatusRepository) Resolve(ctx context.Context, tx pgx.Tx, rec *domain.TxStatusRecord, status domain.TxStatus, height int64, rawLog *string) error {
	if rec.Status != domain.TxStatusPending {
		return fmt.Errorf("tx status %s already resolved to %s", rec.ID, rec.Status)
	}
	query := `UPDATE tx_status SET status = $2, height = $3, raw_log = $4 WHERE id = $1`
	if _, err := tx.Exec(ctx, query, rec.ID, status, height, rawLog); err != nil {
		return fmt.Errorf("failed to resolve tx status %s: %w", rec.ID, err)
	}
	rec.Status = status
	rec.Height = height
	rec.RawLog = rawLog
	return nil
}
