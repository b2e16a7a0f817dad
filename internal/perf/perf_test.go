package perf

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/mataresit-ops/internal/markdown"
)

func TestRun(t *testing.T) {
	res, err := Run(context.Background(), Options{
		Iterations: 3,
		Inputs: []Input{
			{Name: "large", Data: LineItemDocument(300)},
			{Name: "small", Data: LineItemDocument(3)},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 6, res.Cold.N)
	assert.Equal(t, 6, res.Warm.N)
	assert.Equal(t, 4, res.Tables)
	assert.Equal(t, int64(2), res.Cache.Hits)
	assert.Equal(t, int64(2), res.Cache.Misses)
	assert.Greater(t, res.Speedup, 1.0)
	assert.True(t, res.Passed, "no thresholds set")
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLineItemDocument(t *testing.T) {
	tables := markdown.ParseTables(LineItemDocument(7))
	require.Len(t, tables, 2)
	assert.Len(t, tables[0].Rows, 7)
	assert.Equal(t, "Item 1 sku-0001", tables[0].Rows[0][1])
	assert.Equal(t, markdown.AlignRight, tables[0].Align[0])
}

func TestEvaluate(t *testing.T) {
	ms := time.Millisecond
	res := &Result{Cold: Timing{Mean: 80 * ms}, Speedup: 1.5}

	failures := evaluate(res, DefaultThresholds)
	assert.Len(t, failures, 2)

	res = &Result{Cold: Timing{Mean: 10 * ms}, Speedup: 20}
	assert.Empty(t, evaluate(res, DefaultThresholds))
	assert.Empty(t, evaluate(&Result{Cold: Timing{Mean: time.Hour}}, Thresholds{}))
}

func TestTiming(t *testing.T) {
	tm := timing([]time.Duration{3, 1, 2})
	assert.Equal(t, Timing{N: 3, Min: 1, Mean: 2, Max: 3}, tm)
	assert.Equal(t, Timing{}, timing(nil))
	assert.Equal(t, 1.0, speedup(Timing{}, Timing{}))
	assert.Equal(t, 4.0, speedup(Timing{Mean: 8}, Timing{Mean: 2}))
}
