package storage

import (
	"context"
	"errors"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/domain"
)

// StatusReader aggregates the read-only facts the ops status endpoint
// reports.
type StatusReader struct {
	db        *PostgresDB
	bookmarks *BookmarkRepository
	movements *MovementRepository
	streamID  string
}

// NewStatusReader creates a status reader for one logical stream.
func NewStatusReader(db *PostgresDB, bookmarks *BookmarkRepository, movements *MovementRepository, streamID string) *StatusReader {
	return &StatusReader{db: db, bookmarks: bookmarks, movements: movements, streamID: streamID}
}

// BookmarkHeight returns the stream's last processed block height, or
// zero when the stream has not initialized its bookmark yet.
func (s *StatusReader) BookmarkHeight(ctx context.Context) (int64, error) {
	bm, err := s.bookmarks.Get(ctx, s.streamID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return bm.BlockHeight, nil
}

// MovementCount returns the number of recorded coin movements.
func (s *StatusReader) MovementCount(ctx context.Context) (int64, error) {
	return s.movements.CountMovements(ctx)
}

// Ping checks database reachability.
func (s *StatusReader) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
