package migration

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/mataresit-ops/internal/domain/embedding"
	"github.com/xenking/mataresit-ops/internal/domain/receipt"
	"github.com/xenking/mataresit-ops/internal/functions"
)

// Failure records a receipt whose backfill did not succeed.
type Failure struct {
	Receipt  receipt.Receipt
	Attempts int
	Err      error
}

// Summary is the outcome of a backfill run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Failures  []Failure
	Duration  time.Duration
}

// Processed returns the number of receipts attempted so far.
func (s *Summary) Processed() int { return s.Succeeded + s.Failed }

// BatchFunc is called after every batch with the running summary.
type BatchFunc func(batch, batches int, sum *Summary)

// Migrate plans and runs a backfill for priority.
func (s *Service) Migrate(ctx context.Context, priority receipt.Priority) (*Summary, error) {
	plan, err := s.Plan(ctx, priority)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, plan, nil)
}

// Execute invokes the embedding function for every receipt in plan.
//
// Receipts are processed in batches of Config.BatchSize. Each batch is fanned
// out and awaited, then Config.Delay elapses before the next one. A failed
// receipt is recorded and the run continues. Cancelling ctx stops after the
// current batch and returns the partial summary with ctx.Err().
func (s *Service) Execute(ctx context.Context, plan *Plan, onBatch BatchFunc) (*Summary, error) {
	lg := zctx.From(ctx)
	start := time.Now()

	sum := &Summary{Total: len(plan.Receipts)}
	size := s.cfg.BatchSize
	batches := plan.Batches(size)

	lg.Info("Starting backfill",
		zap.String("priority", string(plan.Priority)),
		zap.Int("receipts", sum.Total),
		zap.Int("batch_size", size),
		zap.Int("batches", batches),
		zap.Duration("delay", s.cfg.Delay),
		zap.Int("max_retries", s.cfg.MaxRetries),
	)

	for b := 0; b < batches; b++ {
		lo := b * size
		hi := min(lo+size, len(plan.Receipts))
		batch := plan.Receipts[lo:hi]

		failures := s.runBatch(ctx, batch)
		for _, f := range failures {
			if f == nil {
				sum.Succeeded++
				continue
			}
			sum.Failed++
			sum.Failures = append(sum.Failures, *f)
		}
		lg.Info("Batch done",
			zap.Int("batch", b+1),
			zap.Int("batches", batches),
			zap.Int("succeeded", sum.Succeeded),
			zap.Int("failed", sum.Failed),
		)
		if onBatch != nil {
			onBatch(b+1, batches, sum)
		}

		if b == batches-1 {
			break
		}
		if err := sleep(ctx, s.cfg.Delay); err != nil {
			sum.Duration = time.Since(start)
			return sum, err
		}
	}

	sum.Duration = time.Since(start)
	lg.Info("Backfill finished",
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Duration("duration", sum.Duration),
	)
	return sum, ctx.Err()
}

// runBatch invokes every receipt concurrently. The result has one entry per
// receipt, nil on success.
func (s *Service) runBatch(ctx context.Context, batch []receipt.Receipt) []*Failure {
	out := make([]*Failure, len(batch))
	var g errgroup.Group
	for i, r := range batch {
		g.Go(func() error {
			attempts, err := s.generate(ctx, r)
			if err != nil {
				out[i] = &Failure{Receipt: r, Attempts: attempts, Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// generate invokes the embedding function for r, retrying temporary failures
// with exponential backoff.
func (s *Service) generate(ctx context.Context, r receipt.Receipt) (int, error) {
	lg := zctx.From(ctx).With(zap.Stringer("receipt_id", r.ID))
	req := embedding.NewRequest(r.ID)
	attrs := metric.WithAttributes(attribute.String("priority", string(receipt.Classify(r))))

	var err error
	attempt := 0
	for {
		attempt++
		s.invocations.Add(ctx, 1, attrs)

		var res *functions.Result
		start := time.Now()
		res, err = s.invoker.Invoke(ctx, embedding.GenerateFunction, req)
		s.latency.Record(ctx, time.Since(start).Seconds(), attrs)
		if err == nil {
			lg.Debug("Embeddings generated", zap.Int("status", res.Status), zap.Int("attempt", attempt))
			return attempt, nil
		}
		if attempt > s.cfg.MaxRetries || !retryable(ctx, err) {
			break
		}

		wait := s.cfg.RetryBackoff << (attempt - 1)
		lg.Warn("Retrying embedding generation",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if serr := sleep(ctx, wait); serr != nil {
			break
		}
	}

	s.failures.Add(ctx, 1, attrs)
	lg.Error("Embedding generation failed", zap.Int("attempts", attempt), zap.Error(err))
	return attempt, err
}

// retryable reports whether err is worth another attempt. Transport errors
// and 429/5xx replies are; other client errors are not.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var ie *functions.InvokeError
	if errors.As(err, &ie) {
		return ie.Temporary()
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
