// Package perf validates the markdown table parser's latency and the speedup
// its result cache provides.
package perf

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/mataresit-ops/internal/markdown"
)

// Thresholds are the pass criteria. Zero values are not checked.
type Thresholds struct {
	// MaxColdMean bounds the mean uncached parse time per document.
	MaxColdMean time.Duration
	// MinSpeedup bounds cold mean / warm mean from below.
	MinSpeedup float64
}

// DefaultThresholds are the release criteria for the parser.
var DefaultThresholds = Thresholds{
	MaxColdMean: 50 * time.Millisecond,
	MinSpeedup:  2,
}

// Input is a named document.
type Input struct {
	Name string
	Data []byte
}

// Options configures Run.
type Options struct {
	Iterations int
	Inputs     []Input
	Thresholds Thresholds
}

// Timing summarises a set of measurements.
type Timing struct {
	N    int
	Min  time.Duration
	Mean time.Duration
	Max  time.Duration
}

func timing(ds []time.Duration) Timing {
	t := Timing{N: len(ds)}
	if len(ds) == 0 {
		return t
	}
	var total time.Duration
	t.Min = ds[0]
	for _, d := range ds {
		total += d
		t.Min = min(t.Min, d)
		t.Max = max(t.Max, d)
	}
	t.Mean = total / time.Duration(len(ds))
	return t
}

// Result is the outcome of Run.
type Result struct {
	Cold    Timing
	Warm    Timing
	Speedup float64
	Cache   markdown.CacheStats
	Tables  int
	Passed  bool
	// Failures explains every failed threshold.
	Failures []string
}

// Run parses every input Iterations times through an empty cache (cold) and
// then again through the populated cache (warm).
func Run(ctx context.Context, opts Options) (*Result, error) {
	lg := zctx.From(ctx)
	if opts.Iterations <= 0 {
		opts.Iterations = 10
	}
	if len(opts.Inputs) == 0 {
		opts.Inputs = DefaultInputs()
	}

	var cold, warm []time.Duration
	cache := markdown.NewCache(len(opts.Inputs))
	res := &Result{}
	for i := 0; i < opts.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cache.Clear()
		p := markdown.NewParser(cache)
		for _, in := range opts.Inputs {
			start := time.Now()
			tables := p.Parse(in.Data)
			cold = append(cold, time.Since(start))
			if i == 0 {
				res.Tables += len(tables)
			}
		}
		for _, in := range opts.Inputs {
			start := time.Now()
			p.Parse(in.Data)
			warm = append(warm, time.Since(start))
		}
		if i == opts.Iterations-1 {
			res.Cache = cache.Stats()
		}
	}

	res.Cold = timing(cold)
	res.Warm = timing(warm)
	res.Speedup = speedup(res.Cold, res.Warm)
	res.Failures = evaluate(res, opts.Thresholds)
	res.Passed = len(res.Failures) == 0

	lg.Info("Parser performance",
		zap.Duration("cold_mean", res.Cold.Mean),
		zap.Duration("warm_mean", res.Warm.Mean),
		zap.Float64("speedup", res.Speedup),
		zap.Bool("passed", res.Passed),
	)
	return res, nil
}

func speedup(cold, warm Timing) float64 {
	if warm.Mean <= 0 {
		if cold.Mean <= 0 {
			return 1
		}
		return float64(cold.Mean)
	}
	return float64(cold.Mean) / float64(warm.Mean)
}

func evaluate(res *Result, th Thresholds) []string {
	var failures []string
	if th.MaxColdMean > 0 && res.Cold.Mean > th.MaxColdMean {
		failures = append(failures, fmt.Sprintf("cold mean %s exceeds %s", res.Cold.Mean, th.MaxColdMean))
	}
	if th.MinSpeedup > 0 && res.Speedup < th.MinSpeedup {
		failures = append(failures, fmt.Sprintf("cache speedup %.2fx below %.2fx", res.Speedup, th.MinSpeedup))
	}
	return failures
}

// DefaultInputs returns line-item documents of increasing size.
func DefaultInputs() []Input {
	return []Input{
		{Name: "small", Data: LineItemDocument(5)},
		{Name: "medium", Data: LineItemDocument(50)},
		{Name: "large", Data: LineItemDocument(500)},
	}
}

// LineItemDocument renders a receipt with rows line items as markdown.
func LineItemDocument(rows int) []byte {
	var b strings.Builder
	b.WriteString("## Receipt\n\nMerchant: Example Mart\n\n")
	b.WriteString("| # | Description | Qty | Unit | Amount |\n")
	b.WriteString("|--:|:------------|:---:|-----:|-------:|\n")
	for i := 1; i <= rows; i++ {
		qty := i%4 + 1
		unit := float64(i%37) + 0.99
		fmt.Fprintf(&b, "| %d | Item %d **sku-%04d** | %d | %.2f | %.2f |\n", i, i, i, qty, unit, unit*float64(qty))
	}
	b.WriteString("\n| Subtotal | Tax | Total |\n|---|---|---|\n| 1.00 | 0.06 | 1.06 |\n")
	return []byte(b.String())
}
