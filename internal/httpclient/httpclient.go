// Package httpclient builds the instrumented HTTP client shared by every
// outbound integration (edge functions, object storage, the public API).
package httpclient

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// RequestIDHeader carries a per-request identifier that the edge function
// logs echo, so a failed invocation can be found in the platform logs.
const RequestIDHeader = "X-Request-ID"

// Options configures New.
type Options struct {
	Timeout        time.Duration
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	// Base is the underlying transport; http.DefaultTransport when nil.
	Base http.RoundTripper
}

// New returns an *http.Client that traces and meters every request and tags
// it with a request id.
func New(opts Options) *http.Client {
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport
	}

	var otelOpts []otelhttp.Option
	if opts.TracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(opts.TracerProvider))
	}
	if opts.MeterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(opts.MeterProvider))
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: otelhttp.NewTransport(requestIDTransport{next: base}, otelOpts...),
	}
}

type requestIDTransport struct {
	next http.RoundTripper
}

func (t requestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(RequestIDHeader) != "" {
		return t.next.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set(RequestIDHeader, uuid.New().String())
	return t.next.RoundTrip(r)
}
