// Package thumbnail generates missing receipt thumbnails.
//
// Each receipt image is downloaded, scaled down, uploaded next to the
// originals and the receipt's thumbnail pointer is updated. The previous
// pointer values are written to a snapshot first so a run can be undone.
package thumbnail

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/mataresit-ops/internal/domain/receipt"
	"github.com/xenking/mataresit-ops/internal/objectstore"
)

// Store is the object storage used for images. *objectstore.Client
// implements it.
type Store interface {
	Download(ctx context.Context, url string) (*objectstore.Object, error)
	Upload(ctx context.Context, bucket, path, contentType string, data []byte) error
	PublicURL(bucket, path string) string
}

// Recorder receives the pointer value a receipt had before it was changed.
type Recorder interface {
	Append(Entry) error
}

// Entry is one rollback record.
type Entry struct {
	ReceiptID    uuid.UUID `json:"receipt_id"`
	ThumbnailURL string    `json:"thumbnail_url"`
	NewURL       string    `json:"new_url"`
	ChangedAt    time.Time `json:"changed_at"`
}

// Config tunes a thumbnail run.
type Config struct {
	Bucket      string
	MaxSide     int
	Quality     int
	Concurrency int
	// Limit caps the number of receipts processed per run.
	Limit int
}

// Service generates thumbnails.
type Service struct {
	receipts receipt.Repository
	store    Store
	cfg      Config
}

// NewService creates a Service.
func NewService(receipts receipt.Repository, store Store, cfg Config) *Service {
	if cfg.MaxSide <= 0 {
		cfg.MaxSide = 400
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = 80
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	return &Service{receipts: receipts, store: store, cfg: cfg}
}

// Failure describes a receipt that could not be processed.
type Failure struct {
	ReceiptID uuid.UUID
	Err       error
}

// Summary is the outcome of Run.
type Summary struct {
	Candidates int
	Generated  int
	Failures   []Failure
	Duration   time.Duration
}

// Path returns the object path of a receipt's thumbnail.
func Path(r receipt.Receipt) string {
	return fmt.Sprintf("thumbnails/%s/%s.jpg", r.UserID, r.ID)
}

// Run processes receipts that have an image but no thumbnail. rec may be nil
// to skip snapshotting.
func (s *Service) Run(ctx context.Context, rec Recorder) (*Summary, error) {
	lg := zctx.From(ctx)
	start := time.Now()

	rs, err := s.receipts.ListMissingThumbnails(ctx, s.cfg.Limit)
	if err != nil {
		return nil, errors.Wrap(err, "list receipts")
	}
	lg.Info("Generating thumbnails",
		zap.Int("receipts", len(rs)),
		zap.Int("concurrency", s.cfg.Concurrency),
		zap.Int("max_side", s.cfg.MaxSide),
	)

	errs := make([]error, len(rs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, r := range rs {
		g.Go(func() error {
			errs[i] = s.process(gctx, r, rec)
			if errs[i] != nil {
				lg.Warn("Thumbnail failed", zap.Stringer("receipt_id", r.ID), zap.Error(errs[i]))
			}
			return nil
		})
	}
	_ = g.Wait()

	sum := &Summary{Candidates: len(rs)}
	for i, err := range errs {
		if err != nil {
			sum.Failures = append(sum.Failures, Failure{ReceiptID: rs[i].ID, Err: err})
			continue
		}
		sum.Generated++
	}
	sum.Duration = time.Since(start)
	lg.Info("Thumbnails done",
		zap.Int("generated", sum.Generated),
		zap.Int("failed", len(sum.Failures)),
		zap.Duration("duration", sum.Duration),
	)
	return sum, ctx.Err()
}

func (s *Service) process(ctx context.Context, r receipt.Receipt, rec Recorder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.ImageURL == "" {
		return errors.New("receipt has no image")
	}

	obj, err := s.store.Download(ctx, r.ImageURL)
	if err != nil {
		return errors.Wrap(err, "download image")
	}
	thumb, err := Resize(obj.Data, s.cfg.MaxSide, s.cfg.Quality)
	if err != nil {
		return err
	}

	path := Path(r)
	if err := s.store.Upload(ctx, s.cfg.Bucket, path, "image/jpeg", thumb); err != nil {
		return errors.Wrap(err, "upload thumbnail")
	}

	url := s.store.PublicURL(s.cfg.Bucket, path)
	if rec != nil {
		if err := rec.Append(Entry{
			ReceiptID:    r.ID,
			ThumbnailURL: r.ThumbnailURL,
			NewURL:       url,
			ChangedAt:    time.Now().UTC(),
		}); err != nil {
			return errors.Wrap(err, "record snapshot")
		}
	}
	if err := s.receipts.SetThumbnailURL(ctx, r.ID, url); err != nil {
		return errors.Wrap(err, "update thumbnail url")
	}
	return nil
}

// Rollback restores the pointer values recorded in entries, newest first, so
// a receipt changed twice ends up with its oldest value. It returns the
// number of updates applied.
func (s *Service) Rollback(ctx context.Context, entries []Entry) (int, error) {
	lg := zctx.From(ctx)
	n := 0
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if err := s.receipts.SetThumbnailURL(ctx, e.ReceiptID, e.ThumbnailURL); err != nil {
			return n, errors.Wrapf(err, "restore %s", e.ReceiptID)
		}
		n++
		lg.Debug("Restored thumbnail pointer", zap.Stringer("receipt_id", e.ReceiptID))
	}
	lg.Info("Rollback done", zap.Int("restored", n))
	return n, nil
}
