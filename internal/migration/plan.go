package migration

import (
	"context"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/mataresit-ops/internal/domain/embedding"
	"github.com/xenking/mataresit-ops/internal/domain/receipt"
)

// falsePositiveRate of the embedded-id prefilter. Positives are confirmed
// with an exact query, so this only affects how many ids are re-checked.
const falsePositiveRate = 0.01

// Plan is the ordered list of receipts a backfill would process.
type Plan struct {
	Priority receipt.Priority
	Receipts []receipt.Receipt
	// Missing counts every receipt without embeddings, before the
	// priority filter.
	Missing map[receipt.Priority]int
}

// Batches returns the number of batches of size n.
func (p *Plan) Batches(n int) int {
	if n <= 0 || len(p.Receipts) == 0 {
		return 0
	}
	return (len(p.Receipts) + n - 1) / n
}

// Analysis is the result of Analyze.
type Analysis struct {
	Coverage   embedding.Coverage
	ByPriority map[receipt.Priority]int
}

// Analyze reports coverage and how the missing receipts split by priority.
func (s *Service) Analyze(ctx context.Context) (*Analysis, error) {
	cov, err := s.Coverage(ctx)
	if err != nil {
		return nil, err
	}
	plan, err := s.Plan(ctx, receipt.PriorityAll)
	if err != nil {
		return nil, err
	}
	return &Analysis{Coverage: cov, ByPriority: plan.Missing}, nil
}

// Plan lists receipts without embeddings that match priority, most urgent
// first.
func (s *Service) Plan(ctx context.Context, priority receipt.Priority) (*Plan, error) {
	lg := zctx.From(ctx)

	missing, err := s.missing(ctx)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Priority: priority, Missing: receipt.Histogram(missing)}
	for _, r := range missing {
		if priority.Matches(receipt.Classify(r)) {
			plan.Receipts = append(plan.Receipts, r)
		}
	}
	receipt.SortByPriority(plan.Receipts)

	lg.Debug("Planned backfill",
		zap.String("priority", string(priority)),
		zap.Int("missing", len(missing)),
		zap.Int("selected", len(plan.Receipts)),
	)
	return plan, nil
}

// DryRunResult describes what Migrate would do without doing it.
type DryRunResult struct {
	Plan      *Plan
	BatchSize int
	Batches   int
	// Estimate covers the inter-batch delays only.
	Estimate time.Duration
}

// DryRun plans a backfill without invoking anything.
func (s *Service) DryRun(ctx context.Context, priority receipt.Priority) (*DryRunResult, error) {
	plan, err := s.Plan(ctx, priority)
	if err != nil {
		return nil, err
	}
	res := &DryRunResult{
		Plan:      plan,
		BatchSize: s.cfg.BatchSize,
		Batches:   plan.Batches(s.cfg.BatchSize),
	}
	if res.Batches > 1 {
		res.Estimate = time.Duration(res.Batches-1) * s.cfg.Delay
	}
	return res, nil
}

// missing scans all receipts and returns those with no embedding.
//
// Embedded ids are loaded into a bloom filter first; receipts the filter
// rejects are certainly missing, the rest are confirmed page by page.
func (s *Service) missing(ctx context.Context) ([]receipt.Receipt, error) {
	embedded, err := s.embeddings.CountEmbeddedReceipts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "count embedded receipts")
	}
	filter := bloom.NewWithEstimates(uint(max(embedded, 1)), falsePositiveRate)
	if err := s.embeddings.EmbeddedReceiptIDs(ctx, func(id uuid.UUID) error {
		filter.Add(id[:])
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "load embedded ids")
	}

	var (
		out   []receipt.Receipt
		after uuid.UUID
	)
	for {
		page, err := s.receipts.Page(ctx, after, s.cfg.PageSize)
		if err != nil {
			return nil, errors.Wrap(err, "page receipts")
		}
		if len(page) == 0 {
			return out, nil
		}

		var maybe []uuid.UUID
		for _, r := range page {
			if filter.Test(r.ID[:]) {
				maybe = append(maybe, r.ID)
			}
		}
		var confirmed map[uuid.UUID]struct{}
		if len(maybe) > 0 {
			if confirmed, err = s.embeddings.FilterEmbedded(ctx, maybe); err != nil {
				return nil, errors.Wrap(err, "confirm embedded ids")
			}
		}
		for _, r := range page {
			if _, ok := confirmed[r.ID]; !ok {
				out = append(out, r)
			}
		}

		after = page[len(page)-1].ID
		if len(page) < s.cfg.PageSize {
			return out, nil
		}
	}
}
