package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/domain"
)

// BookmarkRepository persists the last-processed block height per
// logical event stream.
type BookmarkRepository struct {
	db *PostgresDB
}

// NewBookmarkRepository creates a bookmark repository.
func NewBookmarkRepository(db *PostgresDB) *BookmarkRepository {
	return &BookmarkRepository{db: db}
}

// Get retrieves the bookmark for a stream.
func (r *BookmarkRepository) Get(ctx context.Context, streamID string) (*domain.StreamBookmark, error) {
	query := `SELECT stream_id, block_height, created, updated FROM event_stream WHERE stream_id = $1`
	var bm domain.StreamBookmark
	err := r.db.Pool().QueryRow(ctx, query, streamID).Scan(&bm.StreamID, &bm.BlockHeight, &bm.Created, &bm.Updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get bookmark for stream %s: %w", streamID, err)
	}
	return &bm, nil
}

// Initialize creates the bookmark at the epoch height if no row exists,
// and returns the current bookmark either way.
func (r *BookmarkRepository) Initialize(ctx context.Context, streamID string, epochHeight int64) (*domain.StreamBookmark, error) {
	query := `
		INSERT INTO event_stream (stream_id, block_height, created, updated)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (stream_id) DO NOTHING
	`
	if _, err := r.db.Pool().Exec(ctx, query, streamID, epochHeight); err != nil {
		return nil, fmt.Errorf("failed to initialize bookmark for stream %s: %w", streamID, err)
	}
	return r.Get(ctx, streamID)
}

// Advance moves the bookmark forward to height. The guard in the WHERE
// clause makes advancement monotonic: a stale writer cannot rewind it.
func (r *BookmarkRepository) Advance(ctx context.Context, streamID string, height int64) error {
	query := `
		UPDATE event_stream
		SET block_height = $2, updated = now()
		WHERE stream_id = $1 AND block_height < $2
	`
	if _, err := r.db.Pool().Exec(ctx, query, streamID, height); err != nil {
		return fmt.Errorf("failed to advance bookmark for stream %s to %d: %w", streamID, height, err)
	}
	return nil
}
