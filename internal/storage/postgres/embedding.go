package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/mataresit-ops/internal/domain/embedding"
)

const (
	countEmbeddedReceiptsSQL = `SELECT count(DISTINCT e.source_id)
	FROM unified_embeddings e
	JOIN receipts r ON r.id = e.source_id
	WHERE e.source_type = 'receipt'`

	embeddedReceiptIDsSQL = `SELECT DISTINCT e.source_id
	FROM unified_embeddings e
	JOIN receipts r ON r.id = e.source_id
	WHERE e.source_type = 'receipt'`

	filterEmbeddedSQL = `SELECT DISTINCT source_id FROM unified_embeddings
	WHERE source_type = 'receipt' AND source_id = ANY($1)`

	contentTypeBreakdownSQL = `SELECT content_type, count(*) FROM unified_embeddings
	WHERE source_type = 'receipt'
	GROUP BY content_type ORDER BY count(*) DESC, content_type`
)

var _ embedding.Repository = (*EmbeddingRepository)(nil)

// EmbeddingRepository implements embedding.Repository backed by PostgreSQL.
type EmbeddingRepository struct {
	pool *pgxpool.Pool
}

// NewEmbeddingRepository returns an EmbeddingRepository that uses the given pool.
func NewEmbeddingRepository(pool *pgxpool.Pool) *EmbeddingRepository {
	return &EmbeddingRepository{pool: pool}
}

// CountEmbeddedReceipts counts existing receipts with at least one embedding.
// Orphaned embeddings of deleted receipts are ignored.
func (r *EmbeddingRepository) CountEmbeddedReceipts(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, countEmbeddedReceiptsSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting embedded receipts: %w", err)
	}
	return n, nil
}

// EmbeddedReceiptIDs streams every receipt id that has an embedding.
func (r *EmbeddingRepository) EmbeddedReceiptIDs(ctx context.Context, fn func(id uuid.UUID) error) error {
	rows, err := r.pool.Query(ctx, embeddedReceiptIDsSQL)
	if err != nil {
		return fmt.Errorf("querying embedded receipt ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scanning embedded receipt id: %w", err)
		}
		if err := fn(id); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating embedded receipt ids: %w", err)
	}
	return nil
}

// FilterEmbedded returns the subset of ids with at least one embedding.
func (r *EmbeddingRepository) FilterEmbedded(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]struct{}, error) {
	out := make(map[uuid.UUID]struct{}, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, filterEmbeddedSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("filtering embedded receipts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning embedded receipt id: %w", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embedded receipt ids: %w", err)
	}
	return out, nil
}

// ContentTypeBreakdown counts receipt embedding rows per content type.
func (r *EmbeddingRepository) ContentTypeBreakdown(ctx context.Context) ([]embedding.ContentTypeCount, error) {
	rows, err := r.pool.Query(ctx, contentTypeBreakdownSQL)
	if err != nil {
		return nil, fmt.Errorf("querying content types: %w", err)
	}
	defer rows.Close()

	var out []embedding.ContentTypeCount
	for rows.Next() {
		var c embedding.ContentTypeCount
		if err := rows.Scan(&c.ContentType, &c.Count); err != nil {
			return nil, fmt.Errorf("scanning content type: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating content types: %w", err)
	}
	return out, nil
}

// Insert records an embedding row. Used for seeding local databases.
func (r *EmbeddingRepository) Insert(ctx context.Context, id, receiptID, userID uuid.UUID, contentType string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO unified_embeddings (id, source_type, source_id, content_type, user_id)
	VALUES ($1, 'receipt', $2, $3, $4) ON CONFLICT (id) DO NOTHING`, id, receiptID, contentType, userID)
	if err != nil {
		return fmt.Errorf("inserting embedding for %s: %w", receiptID, err)
	}
	return nil
}
