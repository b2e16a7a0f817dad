package health

import (
	"context"
	"io"
	"net/http"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck reports unhealthy when the number of goroutines exceeds
// threshold.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		count := runtime.NumGoroutine()
		if count > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", count, threshold)
		}
		return nil
	}
}

// HTTPCheck issues a request built by newReq and treats any response below
// 500 as reachable. Edge function gateways answer unauthenticated or
// malformed probes with 4xx, which still proves the route is deployed.
func HTTPCheck(client *http.Client, newReq func(ctx context.Context) (*http.Request, error)) CheckFunc {
	return func(ctx context.Context) error {
		req, err := newReq(ctx)
		if err != nil {
			return errors.Wrap(err, "build request")
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

		if resp.StatusCode >= http.StatusInternalServerError {
			return errors.Errorf("%s %s: status %d", req.Method, req.URL.Redacted(), resp.StatusCode)
		}
		return nil
	}
}
