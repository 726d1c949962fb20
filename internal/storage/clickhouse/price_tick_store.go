package clickhouse

import (
	"context"
	"fmt"

	"github.com/inavhq/clawdvault-sdk/internal/domain"
	"github.com/inavhq/clawdvault-sdk/internal/storage"
)

// PriceTickStore implements storage.PriceTickStore using ClickHouse.
type PriceTickStore struct {
	conn *Conn
}

// NewPriceTickStore creates a new PriceTickStore.
func NewPriceTickStore(conn *Conn) *PriceTickStore {
	return &PriceTickStore{conn: conn}
}

var _ storage.PriceTickStore = (*PriceTickStore)(nil)

// InsertBulk adds multiple ticks. Fails entire batch on duplicate (mint, timestamp_ms).
// MergeTree does not enforce keys, so duplicates are checked before the insert.
func (s *PriceTickStore) InsertBulk(ctx context.Context, ticks []*domain.PriceTick) error {
	if len(ticks) == 0 {
		return nil
	}

	type key struct {
		mint        string
		timestampMs int64
	}
	seen := make(map[key]struct{}, len(ticks))
	for _, t := range ticks {
		if t == nil || t.Mint == "" {
			return storage.ErrInvalidInput
		}
		k := key{t.Mint, t.TimestampMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, t := range ticks {
		exists, err := s.exists(ctx, t.Mint, t.TimestampMs)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_ticks (mint, timestamp_ms, price_sol, market_cap_sol, source)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range ticks {
		if err := batch.Append(t.Mint, uint64(t.TimestampMs), t.PriceSol, t.MarketCapSol, t.Source); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves ticks for mint within [start, end] (inclusive).
func (s *PriceTickStore) GetByTimeRange(ctx context.Context, mint string, start, end int64) ([]*domain.PriceTick, error) {
	query := `
		SELECT mint, timestamp_ms, price_sol, market_cap_sol, source
		FROM price_ticks FINAL
		WHERE mint = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, mint, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanPriceTicks(rows)
}

func (s *PriceTickStore) exists(ctx context.Context, mint string, timestampMs int64) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx,
		`SELECT count(*) FROM price_ticks WHERE mint = ? AND timestamp_ms = ?`,
		mint, uint64(timestampMs),
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanPriceTicks(rows chRows) ([]*domain.PriceTick, error) {
	var ticks []*domain.PriceTick

	for rows.Next() {
		var t domain.PriceTick
		var timestampMs uint64

		if err := rows.Scan(&t.Mint, &timestampMs, &t.PriceSol, &t.MarketCapSol, &t.Source); err != nil {
			return nil, fmt.Errorf("scan price tick row: %w", err)
		}
		t.TimestampMs = int64(timestampMs)
		ticks = append(ticks, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price tick rows: %w", err)
	}
	return ticks, nil
}
