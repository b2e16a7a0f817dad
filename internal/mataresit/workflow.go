package mataresit

import (
	"context"
	"encoding/csv"
	"io"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Processing errors returned by WaitForProcessing.
var (
	ErrProcessingFailed  = errors.New("receipt processing failed")
	ErrProcessingTimeout = errors.New("receipt processing timeout")
)

// WaitForProcessing polls a receipt until its processing completes, fails or
// maxWait elapses.
func (c *Client) WaitForProcessing(ctx context.Context, id string, maxWait time.Duration) (*Receipt, error) {
	deadline := time.Now().Add(maxWait)
	for {
		r, err := c.GetReceipt(ctx, id)
		if err != nil {
			return nil, err
		}
		switch r.ProcessingStatus {
		case "complete":
			return r, nil
		case "failed":
			return r, errors.Wrap(ErrProcessingFailed, id)
		}
		if !time.Now().Add(c.pollInterval).Before(deadline) {
			return r, errors.Wrap(ErrProcessingTimeout, id)
		}
		if err := wait(ctx, c.pollInterval); err != nil {
			return r, err
		}
	}
}

// UploadAndWait creates a receipt and waits for its processing.
func (c *Client) UploadAndWait(ctx context.Context, in ReceiptInput, maxWait time.Duration) (*Receipt, error) {
	r, err := c.CreateReceipt(ctx, in)
	if err != nil {
		return nil, err
	}
	return c.WaitForProcessing(ctx, r.ID, maxWait)
}

// BulkResult is the outcome of BulkUpload.
type BulkResult struct {
	Total   int
	Created []Receipt
	Failed  []BatchError
}

// BulkUpload creates receipts in batches of batchSize, pausing between
// batches. A failed batch is recorded and the upload continues.
func (c *Client) BulkUpload(ctx context.Context, in []ReceiptInput, batchSize int) (*BulkResult, error) {
	lg := zctx.From(ctx)
	if batchSize <= 0 {
		batchSize = 10
	}
	res := &BulkResult{Total: len(in)}
	batches := (len(in) + batchSize - 1) / batchSize

	lg.Info("Uploading receipts", zap.Int("total", len(in)), zap.Int("batch_size", batchSize))
	for b := 0; b < batches; b++ {
		lo := b * batchSize
		hi := min(lo+batchSize, len(in))

		out, err := c.CreateReceiptsBatch(ctx, in[lo:hi])
		switch {
		case err != nil && ctx.Err() != nil:
			return res, ctx.Err()
		case err != nil:
			lg.Warn("Batch failed", zap.Int("batch", b+1), zap.Error(err))
			res.Failed = append(res.Failed, BatchError{Error: err.Error(), Batch: b + 1})
		default:
			res.Created = append(res.Created, out.Created...)
			for _, e := range out.Errors {
				e.Index += lo
				res.Failed = append(res.Failed, e)
			}
			lg.Info("Batch complete",
				zap.Int("batch", b+1),
				zap.Int("batches", batches),
				zap.Int("created", len(out.Created)),
				zap.Int("failed", len(out.Errors)),
			)
		}

		if hi < len(in) && c.batchPause > 0 {
			if err := wait(ctx, c.batchPause); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

// ReadReceiptsCSV reads receipts from CSV with a header row. Recognised
// columns: merchant, date, total (or amount), currency, payment_method,
// category, team_id.
func ReadReceiptsCSV(r io.Reader) ([]ReceiptInput, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := col["total"]; !ok {
		if i, ok := col["amount"]; ok {
			col["total"] = i
		}
	}
	for _, required := range []string{"merchant", "date", "total"} {
		if _, ok := col[required]; !ok {
			return nil, errors.Errorf("missing column %q", required)
		}
	}

	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []ReceiptInput
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		total, err := NewAmount(get(rec, "total"))
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: total", line)
		}
		date := get(rec, "date")
		if _, err := time.Parse(time.DateOnly, date); err != nil {
			return nil, errors.Wrapf(err, "line %d: date", line)
		}
		out = append(out, ReceiptInput{
			Merchant:      get(rec, "merchant"),
			Date:          date,
			Total:         total,
			Currency:      get(rec, "currency"),
			PaymentMethod: get(rec, "payment_method"),
			Category:      get(rec, "category"),
			TeamID:        get(rec, "team_id"),
		})
	}
}
