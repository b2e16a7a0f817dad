package migration

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/goleak"

	"github.com/xenking/mataresit-ops/internal/domain/embedding"
	"github.com/xenking/mataresit-ops/internal/domain/receipt"
	"github.com/xenking/mataresit-ops/internal/functions"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeReceipts serves receipts ordered by id.
type fakeReceipts struct {
	receipts  []receipt.Receipt
	lineItems int64
	pages     int
}

func newFakeReceipts(rs ...receipt.Receipt) *fakeReceipts {
	sorted := append([]receipt.Receipt(nil), rs...)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].ID[:], sorted[j].ID[:]) < 0
	})
	return &fakeReceipts{receipts: sorted}
}

func (f *fakeReceipts) Count(context.Context) (int64, error) {
	return int64(len(f.receipts)), nil
}

func (f *fakeReceipts) CountWithLineItems(context.Context) (int64, error) {
	return f.lineItems, nil
}

func (f *fakeReceipts) Get(_ context.Context, id uuid.UUID) (*receipt.Receipt, error) {
	for _, r := range f.receipts {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, receipt.ErrNotFound
}

func (f *fakeReceipts) Page(_ context.Context, after uuid.UUID, limit int) ([]receipt.Receipt, error) {
	f.pages++
	var out []receipt.Receipt
	for _, r := range f.receipts {
		if bytes.Compare(r.ID[:], after[:]) > 0 {
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeReceipts) ListMissingThumbnails(context.Context, int) ([]receipt.Receipt, error) {
	return nil, nil
}

func (f *fakeReceipts) SetThumbnailURL(context.Context, uuid.UUID, string) error {
	return nil
}

type fakeEmbeddings struct {
	mu       sync.Mutex
	embedded map[uuid.UUID]struct{}
	types    []embedding.ContentTypeCount
	filtered int
}

func newFakeEmbeddings(ids ...uuid.UUID) *fakeEmbeddings {
	f := &fakeEmbeddings{embedded: make(map[uuid.UUID]struct{})}
	for _, id := range ids {
		f.embedded[id] = struct{}{}
	}
	return f
}

func (f *fakeEmbeddings) add(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedded[id] = struct{}{}
}

func (f *fakeEmbeddings) CountEmbeddedReceipts(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.embedded)), nil
}

func (f *fakeEmbeddings) EmbeddedReceiptIDs(_ context.Context, fn func(uuid.UUID) error) error {
	f.mu.Lock()
	ids := make([]uuid.UUID, 0, len(f.embedded))
	for id := range f.embedded {
		ids = append(ids, id)
	}
	f.mu.Unlock()
	for _, id := range ids {
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeEmbeddings) FilterEmbedded(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filtered += len(ids)
	out := make(map[uuid.UUID]struct{})
	for _, id := range ids {
		if _, ok := f.embedded[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func (f *fakeEmbeddings) ContentTypeBreakdown(context.Context) ([]embedding.ContentTypeCount, error) {
	return f.types, nil
}

// fakeInvoker replies with the error returned by fn, recording calls.
type fakeInvoker struct {
	mu    sync.Mutex
	calls map[uuid.UUID]int
	fn    func(id uuid.UUID, attempt int) error
	// inflight tracks concurrent calls.
	inflight, peak int
	hold           time.Duration
}

func newFakeInvoker(fn func(id uuid.UUID, attempt int) error) *fakeInvoker {
	return &fakeInvoker{calls: make(map[uuid.UUID]int), fn: fn}
}

func (f *fakeInvoker) Invoke(ctx context.Context, name string, payload any) (*functions.Result, error) {
	req := payload.(embedding.Request)

	f.mu.Lock()
	f.calls[req.ReceiptID]++
	attempt := f.calls[req.ReceiptID]
	f.inflight++
	f.peak = max(f.peak, f.inflight)
	f.mu.Unlock()

	if f.hold > 0 {
		time.Sleep(f.hold)
	}

	f.mu.Lock()
	f.inflight--
	f.mu.Unlock()

	if f.fn != nil {
		if err := f.fn(req.ReceiptID, attempt); err != nil {
			return &functions.Result{Function: name, Status: 500}, err
		}
	}
	return &functions.Result{Function: name, Status: 200}, nil
}

func (f *fakeInvoker) callsFor(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeInvoker) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func highReceipt(age int) receipt.Receipt {
	return receipt.Receipt{
		ID:               uuid.New(),
		Merchant:         "Big Store",
		Total:            decimal.NewFromInt(250),
		ProcessingStatus: receipt.ProcessingComplete,
		CreatedAt:        baseTime.Add(-time.Duration(age) * time.Hour),
	}
}

func mediumReceipt(age int) receipt.Receipt {
	r := highReceipt(age)
	r.Total = decimal.NewFromInt(12)
	return r
}

func lowReceipt(age int) receipt.Receipt {
	r := highReceipt(age)
	r.ProcessingStatus = receipt.ProcessingPending
	return r
}
