package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/mataresit-ops/internal/domain/receipt"
)

const receiptColumns = `id, user_id, merchant, date, total, currency, status, processing_status,
	COALESCE(image_url, ''), COALESCE(thumbnail_url, ''), COALESCE(full_text, ''), created_at`

const (
	countReceiptsSQL = `SELECT count(*) FROM receipts`

	countReceiptsWithLineItemsSQL = `SELECT count(DISTINCT receipt_id) FROM line_items`

	getReceiptSQL = `SELECT ` + receiptColumns + ` FROM receipts WHERE id = $1`

	pageReceiptsSQL = `SELECT ` + receiptColumns + ` FROM receipts
	WHERE id > $1 ORDER BY id LIMIT $2`

	listMissingThumbnailsSQL = `SELECT ` + receiptColumns + ` FROM receipts
	WHERE image_url IS NOT NULL AND image_url <> ''
	  AND (thumbnail_url IS NULL OR thumbnail_url = '')
	ORDER BY created_at DESC LIMIT $1`

	setThumbnailURLSQL = `UPDATE receipts SET thumbnail_url = NULLIF($2, '') WHERE id = $1`

	insertReceiptSQL = `INSERT INTO receipts
	(id, user_id, merchant, date, total, currency, status, processing_status, image_url, thumbnail_url, full_text, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), $12)
	ON CONFLICT (id) DO UPDATE SET
		merchant = EXCLUDED.merchant,
		total = EXCLUDED.total,
		processing_status = EXCLUDED.processing_status`
)

var _ receipt.Repository = (*ReceiptRepository)(nil)

// ReceiptRepository implements receipt.Repository backed by PostgreSQL.
type ReceiptRepository struct {
	pool *pgxpool.Pool
}

// NewReceiptRepository returns a ReceiptRepository that uses the given pool.
func NewReceiptRepository(pool *pgxpool.Pool) *ReceiptRepository {
	return &ReceiptRepository{pool: pool}
}

// Count returns the number of receipts.
func (r *ReceiptRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, countReceiptsSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting receipts: %w", err)
	}
	return n, nil
}

// CountWithLineItems returns the number of receipts with at least one line item.
func (r *ReceiptRepository) CountWithLineItems(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, countReceiptsWithLineItemsSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting receipts with line items: %w", err)
	}
	return n, nil
}

// Get returns a single receipt. Returns receipt.ErrNotFound when missing.
func (r *ReceiptRepository) Get(ctx context.Context, id uuid.UUID) (*receipt.Receipt, error) {
	rec, err := scanReceipt(r.pool.QueryRow(ctx, getReceiptSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, receipt.ErrNotFound
		}
		return nil, fmt.Errorf("getting receipt %s: %w", id, err)
	}
	return &rec, nil
}

// Page returns the next keyset page of receipts ordered by id.
func (r *ReceiptRepository) Page(ctx context.Context, after uuid.UUID, limit int) ([]receipt.Receipt, error) {
	rows, err := r.pool.Query(ctx, pageReceiptsSQL, after, limit)
	if err != nil {
		return nil, fmt.Errorf("paging receipts: %w", err)
	}
	return collectReceipts(rows)
}

// ListMissingThumbnails returns receipts that have an image but no thumbnail,
// newest first.
func (r *ReceiptRepository) ListMissingThumbnails(ctx context.Context, limit int) ([]receipt.Receipt, error) {
	rows, err := r.pool.Query(ctx, listMissingThumbnailsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing receipts without thumbnails: %w", err)
	}
	return collectReceipts(rows)
}

// SetThumbnailURL updates the thumbnail pointer of a receipt.
func (r *ReceiptRepository) SetThumbnailURL(ctx context.Context, id uuid.UUID, url string) error {
	tag, err := r.pool.Exec(ctx, setThumbnailURLSQL, id, url)
	if err != nil {
		return fmt.Errorf("setting thumbnail for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return receipt.ErrNotFound
	}
	return nil
}

// Upsert inserts a receipt or refreshes its mutable fields. Used for seeding.
func (r *ReceiptRepository) Upsert(ctx context.Context, rec receipt.Receipt) error {
	_, err := r.pool.Exec(ctx, insertReceiptSQL,
		rec.ID, rec.UserID, rec.Merchant, rec.Date, rec.Total, rec.Currency, rec.Status,
		rec.ProcessingStatus, rec.ImageURL, rec.ThumbnailURL, rec.FullText, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting receipt %s: %w", rec.ID, err)
	}
	return nil
}

func scanReceipt(row pgx.Row) (receipt.Receipt, error) {
	var rec receipt.Receipt
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.Merchant, &rec.Date, &rec.Total, &rec.Currency,
		&rec.Status, &rec.ProcessingStatus, &rec.ImageURL, &rec.ThumbnailURL,
		&rec.FullText, &rec.CreatedAt,
	)
	return rec, err
}

func collectReceipts(rows pgx.Rows) ([]receipt.Receipt, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (receipt.Receipt, error) {
		return scanReceipt(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scanning receipts: %w", err)
	}
	return out, nil
}

// AddLineItem inserts a line item for a receipt. Used for seeding.
func (r *ReceiptRepository) AddLineItem(ctx context.Context, id, receiptID uuid.UUID, description string, amount decimal.Decimal) error {
	if _, err := r.pool.Exec(ctx, `INSERT INTO line_items (id, receipt_id, description, amount) VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO NOTHING`, id, receiptID, description, amount); err != nil {
		return fmt.Errorf("inserting line item %s: %w", id, err)
	}
	return nil
}
