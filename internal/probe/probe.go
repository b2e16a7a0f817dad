// Package probe measures endpoint latency with fixed-width batches of
// concurrent requests.
package probe

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Target is the endpoint under test.
type Target struct {
	Name   string
	URL    string
	Method string
	Header http.Header
	Body   []byte
}

// Options tunes a probe run.
type Options struct {
	// Requests is the total number of requests.
	Requests int
	// Concurrency is the batch width.
	Concurrency int
	// Pause is the delay between batches.
	Pause time.Duration
	// MeterProvider records latency; nil disables metrics.
	MeterProvider metric.MeterProvider
}

// Sample is one request outcome.
type Sample struct {
	Seq      int
	Status   int
	Duration time.Duration
	Err      error
}

// OK reports whether the request completed with a 2xx status.
func (s Sample) OK() bool {
	return s.Err == nil && s.Status >= 200 && s.Status <= 299
}

// Run sends opts.Requests requests to t. Each batch of opts.Concurrency
// requests is awaited before the next starts. Request failures are recorded
// in the samples, not returned.
func Run(ctx context.Context, hc *http.Client, t Target, opts Options) ([]Sample, error) {
	lg := zctx.From(ctx).With(zap.String("target", t.Name))
	if opts.Requests <= 0 {
		opts.Requests = 1
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if t.Method == "" {
		t.Method = http.MethodGet
	}
	mp := opts.MeterProvider
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	latency, err := mp.Meter("github.com/xenking/mataresit-ops/internal/probe").
		Float64Histogram("probe.duration", metric.WithUnit("s"))
	if err != nil {
		return nil, errors.Wrap(err, "create histogram")
	}
	attrs := metric.WithAttributes(attribute.String("target", t.Name))

	samples := make([]Sample, opts.Requests)
	for lo := 0; lo < opts.Requests; lo += opts.Concurrency {
		hi := min(lo+opts.Concurrency, opts.Requests)

		var g errgroup.Group
		for i := lo; i < hi; i++ {
			g.Go(func() error {
				samples[i] = do(ctx, hc, t, i+1)
				latency.Record(ctx, samples[i].Duration.Seconds(), attrs)
				return nil
			})
		}
		_ = g.Wait()

		for _, s := range samples[lo:hi] {
			lg.Debug("Probe",
				zap.Int("seq", s.Seq),
				zap.Int("status", s.Status),
				zap.Duration("duration", s.Duration),
				zap.Error(s.Err),
			)
		}

		if hi < opts.Requests && opts.Pause > 0 {
			select {
			case <-ctx.Done():
				return samples[:hi], ctx.Err()
			case <-time.After(opts.Pause):
			}
		}
		if err := ctx.Err(); err != nil {
			return samples[:hi], err
		}
	}
	return samples, nil
}

func do(ctx context.Context, hc *http.Client, t Target, seq int) Sample {
	s := Sample{Seq: seq}
	var body io.Reader = http.NoBody
	if len(t.Body) > 0 {
		body = bytes.NewReader(t.Body)
	}
	req, err := http.NewRequestWithContext(ctx, t.Method, t.URL, body)
	if err != nil {
		s.Err = errors.Wrap(err, "create request")
		return s
	}
	for k, v := range t.Header {
		req.Header[k] = v
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		s.Duration = time.Since(start)
		s.Err = err
		return s
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	s.Duration = time.Since(start)
	s.Status = resp.StatusCode
	return s
}

// Stats summarises samples.
type Stats struct {
	Count    int
	OK       int
	Failed   int
	Mean     time.Duration
	Min      time.Duration
	Max      time.Duration
	P95      time.Duration
	ByStatus map[int]int
	// Errors counts transport failures, which have no status.
	Errors int
}

// Summarize computes Stats over samples. Latency figures include failed
// requests.
func Summarize(samples []Sample) Stats {
	st := Stats{Count: len(samples), ByStatus: map[int]int{}}
	if len(samples) == 0 {
		return st
	}

	durations := make([]time.Duration, 0, len(samples))
	var total time.Duration
	for _, s := range samples {
		if s.OK() {
			st.OK++
		} else {
			st.Failed++
		}
		if s.Err != nil {
			st.Errors++
		} else {
			st.ByStatus[s.Status]++
		}
		total += s.Duration
		durations = append(durations, s.Duration)
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	st.Mean = total / time.Duration(len(samples))
	st.Min = durations[0]
	st.Max = durations[len(durations)-1]
	st.P95 = durations[(len(durations)*95+99)/100-1]
	return st
}

// SuccessRate returns OK/Count as a percentage.
func (s Stats) SuccessRate() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.OK) / float64(s.Count) * 100
}
