package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/domain"
)

// RequestRepository persists transaction request rows for every kind.
type RequestRepository struct {
	db *PostgresDB
}

// NewRequestRepository creates a request repository.
func NewRequestRepository(db *PostgresDB) *RequestRepository {
	return &RequestRepository{db: db}
}

// DB returns the underlying database handle.
func (r *RequestRepository) DB() *PostgresDB { return r.db }

const requestColumns = `id, kind, status, tx_hash, address, recipient, coin_amount, fiat_amount, source_id, created, updated`

func scanRequest(row pgx.Row) (*domain.TransactionRequest, error) {
	var req domain.TransactionRequest
	err := row.Scan(
		&req.ID, &req.Kind, &req.Status, &req.TxHash, &req.Address, &req.Recipient,
		&req.CoinAmount, &req.FiatAmount, &req.SourceID, &req.Created, &req.Updated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan request: %w", err)
	}
	return &req, nil
}

// Insert creates a new request row. q may be a transaction when the
// insert must be atomic with another transition (chained flows).
func (r *RequestRepository) Insert(ctx context.Context, q Querier, req *domain.TransactionRequest) error {
	query := `
		INSERT INTO transaction_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := q.Exec(ctx, query,
		req.ID, req.Kind, req.Status, req.TxHash, req.Address, req.Recipient,
		req.CoinAmount, req.FiatAmount, req.SourceID, req.Created, req.Updated,
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s request %s: %w", req.Kind, req.ID, err)
	}
	return nil
}

// Get retrieves a request by id.
func (r *RequestRepository) Get(ctx context.Context, q Querier, id uuid.UUID) (*domain.TransactionRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM transaction_requests WHERE id = $1`
	return scanRequest(q.QueryRow(ctx, query, id))
}

// GetForUpdate retrieves a request by id holding a row lock for the
// duration of the transaction. Two workers racing on the same id
// serialize here.
func (r *RequestRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.TransactionRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM transaction_requests WHERE id = $1 FOR UPDATE`
	return scanRequest(tx.QueryRow(ctx, query, id))
}

// ListIDs returns the ids of requests of a kind in a status, oldest
// first. This is the loader query for the actor queues.
func (r *RequestRepository) ListIDs(ctx context.Context, kind domain.RequestKind, status domain.Status, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM transaction_requests
		WHERE kind = $1 AND status = $2
		ORDER BY created
		LIMIT $3
	`
	rows, err := r.db.Pool().Query(ctx, query, kind, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s requests in %s: %w", kind, status, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan request id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating request ids: %w", err)
	}
	return ids, nil
}

// SetStatus moves a locked request to a new status after validating the
// transition against the kind's graph.
func (r *RequestRepository) SetStatus(ctx context.Context, tx pgx.Tx, req *domain.TransactionRequest, to domain.Status) error {
	if err := domain.Transition(req.Kind, req.Status, to); err != nil {
		return err
	}
	query := `UPDATE transaction_requests SET status = $2, updated = now() WHERE id = $1`
	if _, err := tx.Exec(ctx, query, req.ID, to); err != nil {
		return fmt.Errorf("failed to set request %s status to %s: %w", req.ID, to, err)
	}
	req.Status = to
	return nil
}

// SetBroadcast records a successful broadcast: the pending status plus
// the transaction hash, set exactly once per attempt.
func (r *RequestRepository) SetBroadcast(ctx context.Context, tx pgx.Tx, req *domain.TransactionRequest, txHash string) error {
	to := domain.PendingStatus(req.Kind)
	if err := domain.Transition(req.Kind, req.Status, to); err != nil {
		return err
	}
	query := `UPDATE transaction_requests SET status = $2, tx_hash = $3, updated = now() WHERE id = $1`
	if _, err := tx.Exec(ctx, query, req.ID, to, txHash); err != nil {
		return fmt.Errorf("failed to record broadcast for request %s: %w", req.ID, err)
	}
	req.Status = to
	req.TxHash = &txHash
	return nil
}

// ResetForRetry moves a locked request from its pending status back to
// its initial status and clears the transaction hash. This is the only
// backward edge in any status graph, taken after a broadcast is
// confirmed failed.
func (r *RequestRepository) ResetForRetry(ctx context.Context, tx pgx.Tx, req *domain.TransactionRequest) error {
	to := domain.InitialStatus(req.Kind)
	if err := domain.Transition(req.Kind, req.Status, to); err != nil {
		return err
	}
	query := `UPDATE transaction_requests SET status = $2, tx_hash = NULL, updated = now() WHERE id = $1`
	if _, err := tx.Exec(ctx, query, req.ID, to); err != nil {
		return fmt.Errorf("failed to reset request %s for retry: %w", req.ID, err)
	}
	req.Status = to
	req.TxHash = nil
	return nil
}

// IsRegistered reports whether an address currently carries a completed
// registration, i.e. its latest completed tag/detag request is a tag.
func (r *RequestRepository) IsRegistered(ctx context.Context, q Querier, address string) (bool, error) {
	query := `
		SELECT kind FROM transaction_requests
		WHERE address = $1 AND kind IN ($2, $3) AND status = $4
		ORDER BY updated DESC
		LIMIT 1
	`
	var kind domain.RequestKind
	err := q.QueryRow(ctx, query, address, domain.KindTag, domain.KindDetag, domain.StatusTxnComplete).Scan(&kind)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up registration for %s: %w", address, err)
	}
	return kind == domain.KindTag, nil
}
