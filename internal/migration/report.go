package migration

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"

	"github.com/xenking/mataresit-ops/internal/domain/embedding"
	"github.com/xenking/mataresit-ops/internal/domain/receipt"
)

// Report is a point-in-time snapshot of backfill progress.
type Report struct {
	GeneratedAt time.Time                    `json:"generated_at"`
	Receipts    int64                        `json:"receipts"`
	Embedded    int64                        `json:"embedded"`
	Percent     float64                      `json:"percent"`
	Remaining   map[receipt.Priority]int     `json:"remaining"`
	ContentType []embedding.ContentTypeCount `json:"content_types"`
	// WithLineItems counts receipts that have at least one line item.
	WithLineItems int64 `json:"with_line_items"`
}

// Coverage returns the report's coverage figures.
func (r *Report) Coverage() embedding.Coverage {
	return embedding.Coverage{Receipts: r.Receipts, Embedded: r.Embedded}
}

// Report gathers coverage, the remaining work by priority, the embedding
// content-type breakdown and line-item coverage.
func (s *Service) Report(ctx context.Context) (*Report, error) {
	a, err := s.Analyze(ctx)
	if err != nil {
		return nil, err
	}
	types, err := s.embeddings.ContentTypeBreakdown(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "content type breakdown")
	}
	withItems, err := s.receipts.CountWithLineItems(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "count receipts with line items")
	}
	return &Report{
		GeneratedAt:   time.Now().UTC(),
		Receipts:      a.Coverage.Receipts,
		Embedded:      a.Coverage.Embedded,
		Percent:       a.Coverage.Percent(),
		Remaining:     a.ByPriority,
		ContentType:   types,
		WithLineItems: withItems,
	}, nil
}

// Export writes r to w as gzip-compressed JSON.
func Export(w io.Writer, r *Report) error {
	zw := pgzip.NewWriter(w)
	enc := json.NewEncoder(zw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		_ = zw.Close()
		return errors.Wrap(err, "encode report")
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "flush report")
	}
	return nil
}

// Import reads a report written by Export.
func Import(rd io.Reader) (*Report, error) {
	zr, err := pgzip.NewReader(rd)
	if err != nil {
		return nil, errors.Wrap(err, "open report")
	}
	defer func() { _ = zr.Close() }()

	var r Report
	if err := json.NewDecoder(zr).Decode(&r); err != nil {
		return nil, errors.Wrap(err, "decode report")
	}
	return &r, nil
}
