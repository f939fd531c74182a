package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/config"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/domain"
)

// ClickHouseDB wraps the ClickHouse connection used for the reporting
// archive. Postgres stays the source of truth; the archive is advisory.
type ClickHouseDB struct {
	conn driver.Conn
}

// NewClickHouseDB creates a new ClickHouse connection.
func NewClickHouseDB(cfg *config.ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Exec runs a single statement, used by the archive migrator.
func (db *ClickHouseDB) Exec(ctx context.Context, query string) error {
	return db.conn.Exec(ctx, query)
}

// ArchiveMovements batch-inserts observed movements into the reporting
// table. Callers invoke this asynchronously after the Postgres write;
// ClickHouse's ReplacingMergeTree collapses replayed rows.
func (db *ClickHouseDB) ArchiveMovements(ctx context.Context, movements []*domain.CoinMovement) error {
	if len(movements) == 0 {
		return nil
	}

	batch, err := db.conn.PrepareBatch(ctx, `
		INSERT INTO coin_movements (
			tx_hash, event_index, block_height, denom, amount, from_address, to_address, created
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare movement batch: %w", err)
	}

	for _, m := range movements {
		err := batch.Append(
			m.TxHash,
			int32(m.EventIndex),
			m.BlockHeight,
			m.Denom,
			m.Amount.String(),
			m.FromAddress,
			m.ToAddress,
			m.Created,
		)
		if err != nil {
			return fmt.Errorf("failed to append movement %s[%d]: %w", m.TxHash, m.EventIndex, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send movement batch: %w", err)
	}
	return nil
}
