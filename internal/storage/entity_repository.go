package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EntityRepository is the Postgres-backed LabelStore
type EntityRepository struct {
	pool *pgxpool.Pool
}

// NewEntityRepository creates a new entity repository
func NewEntityRepository(db *PostgresDB) *EntityRepository {
	return &EntityRepository{pool: db.Pool()}
}

// Lookup implements LabelStore
func (r *EntityRepository) Lookup(ctx context.Context, address string) (*EntityRecord, error) {
	query := `
		SELECT address, entity, category, source, confidence
		FROM entities
		WHERE address = $1
	`

	var rec EntityRecord
	err := r.pool.QueryRow(ctx, query, address).Scan(
		&rec.Address,
		&rec.Entity,
		&rec.Category,
		&rec.Source,
		&rec.Confidence,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up entity: %w", err)
	}
	return &rec, nil
}

// Count implements LabelStore
func (r *EntityRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return n, nil
}

const upsertEntitySQL = `
	INSERT INTO entities (address, entity, category, source, confidence, updated_at)
	VALUES ($1, $2, $3, $4, $5, NOW())
	ON CONFLICT (address) DO UPDATE SET
		entity = EXCLUDED.entity,
		category = EXCLUDED.category,
		source = EXCLUDED.source,
		confidence = EXCLUDED.confidence,
		updated_at = NOW()
`

// Upsert inserts or replaces one entity row
func (r *EntityRepository) Upsert(ctx context.Context, rec EntityRecord) error {
	_, err := r.pool.Exec(ctx, upsertEntitySQL,
		rec.Address, rec.Entity, rec.Category, rec.Source, rec.Confidence)
	if err != nil {
		return fmt.Errorf("failed to upsert entity: %w", err)
	}
	return nil
}

// UpsertBatch loads records in batches inside one transaction and returns the row count
func (r *EntityRepository) UpsertBatch(ctx context.Context, records []EntityRecord, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // nolint:errcheck // no-op after commit
	}()

	written := 0
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}

		batch := &pgx.Batch{}
		for _, rec := range records[start:end] {
			batch.Queue(upsertEntitySQL, rec.Address, rec.Entity, rec.Category, rec.Source, rec.Confidence)
		}

		results := tx.SendBatch(ctx, batch)
		for i := start; i < end; i++ {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return written, fmt.Errorf("failed to upsert entity %s: %w", records[i].Address, err)
			}
			written++
		}
		if err := results.Close(); err != nil {
			return written, fmt.Errorf("failed to close batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit entities: %w", err)
	}
	return written, nil
}
