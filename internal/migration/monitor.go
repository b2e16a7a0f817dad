package migration

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/mataresit-ops/internal/domain/embedding"
)

// TickFunc receives every coverage sample taken by Monitor.
type TickFunc func(cov embedding.Coverage)

// Monitor samples coverage every interval until it reaches 100% or ctx is
// done. Query failures are logged and the next tick retries. It returns the
// last successful sample.
func (s *Service) Monitor(ctx context.Context, interval time.Duration, onTick TickFunc) (embedding.Coverage, error) {
	lg := zctx.From(ctx)
	if interval <= 0 {
		interval = 30 * time.Second
	}

	var last embedding.Coverage
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		cov, err := s.Coverage(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return last, nil
		case err != nil:
			lg.Warn("Coverage sample failed", zap.Error(err))
		default:
			last = cov
			if onTick != nil {
				onTick(cov)
			}
			if cov.Complete() {
				lg.Info("All receipts have embeddings", zap.Int64("receipts", cov.Receipts))
				return cov, nil
			}
		}

		select {
		case <-ctx.Done():
			return last, nil
		case <-ticker.C:
		}
	}
}
