// Package migration backfills semantic-search embeddings for receipts that
// have none, and reports on how far the backfill has got.
package migration

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/mataresit-ops/internal/domain/embedding"
	"github.com/xenking/mataresit-ops/internal/domain/receipt"
	"github.com/xenking/mataresit-ops/internal/functions"
)

// Invoker calls a hosted function. *functions.Client implements it.
type Invoker interface {
	Invoke(ctx context.Context, name string, payload any) (*functions.Result, error)
}

// Config tunes a backfill run.
type Config struct {
	// BatchSize is the number of invocations in flight together.
	BatchSize int
	// Delay is the pause between batches.
	Delay time.Duration
	// MaxRetries is the number of extra attempts for a temporary failure.
	MaxRetries int
	// RetryBackoff is the first retry delay; it doubles per attempt.
	RetryBackoff time.Duration
	// PageSize is the number of receipts scanned per query while planning.
	PageSize int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.PageSize <= 0 {
		c.PageSize = 500
	}
	return c
}

// Service runs analysis and backfill against the receipt store.
type Service struct {
	receipts   receipt.Repository
	embeddings embedding.Repository
	invoker    Invoker
	cfg        Config

	invocations metric.Int64Counter
	failures    metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewService creates a Service. A nil MeterProvider disables metrics.
func NewService(
	receipts receipt.Repository,
	embeddings embedding.Repository,
	invoker Invoker,
	cfg Config,
	mp metric.MeterProvider,
) (*Service, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter("github.com/xenking/mataresit-ops/internal/migration")

	s := &Service{
		receipts:   receipts,
		embeddings: embeddings,
		invoker:    invoker,
		cfg:        cfg.withDefaults(),
	}
	var err error
	if s.invocations, err = meter.Int64Counter("embeddings.invocations",
		metric.WithDescription("Embedding generation invocations"),
	); err != nil {
		return nil, errors.Wrap(err, "create invocations counter")
	}
	if s.failures, err = meter.Int64Counter("embeddings.failures",
		metric.WithDescription("Receipts whose embedding generation failed after retries"),
	); err != nil {
		return nil, errors.Wrap(err, "create failures counter")
	}
	if s.latency, err = meter.Float64Histogram("embeddings.invocation.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Embedding generation call latency"),
	); err != nil {
		return nil, errors.Wrap(err, "create latency histogram")
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// Coverage compares receipts against receipts with embeddings.
func (s *Service) Coverage(ctx context.Context) (embedding.Coverage, error) {
	total, err := s.receipts.Count(ctx)
	if err != nil {
		return embedding.Coverage{}, errors.Wrap(err, "count receipts")
	}
	embedded, err := s.embeddings.CountEmbeddedReceipts(ctx)
	if err != nil {
		return embedding.Coverage{}, errors.Wrap(err, "count embedded receipts")
	}
	return embedding.Coverage{Receipts: total, Embedded: embedded}, nil
}
