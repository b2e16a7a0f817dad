// Package embedding describes semantic-search embeddings of receipts and the
// coverage arithmetic the migration tools report on.
package embedding

import (
	"context"

	"github.com/google/uuid"
)

// SourceReceipt is the source_type of receipt rows in unified_embeddings.
const SourceReceipt = "receipt"

// ContentFullText is the content_type of the whole-receipt embedding.
const ContentFullText = "full_text"

// GenerateFunction is the edge function that (re)builds embeddings for a
// single receipt.
const GenerateFunction = "generate-embeddings"

// Coverage compares receipts against receipts that have at least one
// embedding.
type Coverage struct {
	Receipts int64
	Embedded int64
}

// Missing returns the number of receipts without embeddings.
func (c Coverage) Missing() int64 {
	if c.Embedded >= c.Receipts {
		return 0
	}
	return c.Receipts - c.Embedded
}

// Percent returns embedded/receipts as a percentage. An empty table counts as
// fully covered.
func (c Coverage) Percent() float64 {
	if c.Receipts <= 0 {
		return 100
	}
	p := float64(c.Embedded) / float64(c.Receipts) * 100
	if p > 100 {
		return 100
	}
	return p
}

// Complete reports whether every receipt has an embedding.
func (c Coverage) Complete() bool {
	return c.Missing() == 0
}

// ContentTypeCount is the number of embedding rows of one content type.
type ContentTypeCount struct {
	ContentType string
	Count       int64
}

// Request is the payload accepted by GenerateFunction.
type Request struct {
	ReceiptID                    uuid.UUID `json:"receiptId"`
	ProcessAllFields             bool      `json:"processAllFields"`
	ProcessLineItems             bool      `json:"processLineItems"`
	UseImprovedDimensionHandling bool      `json:"useImprovedDimensionHandling"`
}

// NewRequest returns the full-backfill request for a receipt.
func NewRequest(id uuid.UUID) Request {
	return Request{
		ReceiptID:                    id,
		ProcessAllFields:             true,
		ProcessLineItems:             true,
		UseImprovedDimensionHandling: true,
	}
}

// Repository provides read access to embedding rows.
type Repository interface {
	CountEmbeddedReceipts(ctx context.Context) (int64, error)
	// EmbeddedReceiptIDs calls fn for every existing receipt that has an
	// embedding, the same set CountEmbeddedReceipts counts.
	EmbeddedReceiptIDs(ctx context.Context, fn func(id uuid.UUID) error) error
	// FilterEmbedded returns the subset of ids that have an embedding.
	FilterEmbedded(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]struct{}, error)
	ContentTypeBreakdown(ctx context.Context) ([]ContentTypeCount, error)
}
