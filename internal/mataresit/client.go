// Package mataresit is a client for the Mataresit external REST API.
package mataresit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/mataresit-ops/pkg/ratelimit"
)

// APIError is a non-2xx reply.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("mataresit: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("mataresit: %d: %s", e.Status, e.Message)
}

// RateLimited reports whether the request was throttled.
func (e *APIError) RateLimited() bool { return e.Status == http.StatusTooManyRequests }

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	// MaxRetries is the total number of attempts for a throttled request.
	MaxRetries int
	// RetryBase is multiplied by 2^attempt between throttled attempts.
	RetryBase time.Duration
	// PollInterval is the WaitForProcessing poll period.
	PollInterval time.Duration
	// BatchPause separates BulkUpload batches.
	BatchPause time.Duration
	// Limiter throttles requests client-side; nil disables it.
	Limiter *ratelimit.Limiter
}

// Client calls the API with an API key.
type Client struct {
	base    string
	key     string
	http    *http.Client
	limiter *ratelimit.Limiter

	maxRetries   int
	retryBase    time.Duration
	pollInterval time.Duration
	batchPause   time.Duration
}

// NewClient creates a Client.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("API base URL is empty")
	}
	if opts.APIKey == "" {
		return nil, errors.New("API key is empty")
	}
	c := &Client{
		base:         strings.TrimRight(opts.BaseURL, "/"),
		key:          opts.APIKey,
		http:         opts.HTTPClient,
		limiter:      opts.Limiter,
		maxRetries:   opts.MaxRetries,
		retryBase:    opts.RetryBase,
		pollInterval: opts.PollInterval,
		batchPause:   opts.BatchPause,
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	if c.retryBase <= 0 {
		c.retryBase = time.Second
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 2 * time.Second
	}
	if c.batchPause < 0 {
		c.batchPause = 0
	}
	return c, nil
}

// do sends a request and decodes the envelope's data into out (if non-nil).
// Throttled requests are retried with exponential backoff.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return errors.Wrap(err, "marshal request")
		}
	}

	for attempt := 1; ; attempt++ {
		err := c.once(ctx, method, path, query, payload, out)
		var apiErr *APIError
		if err == nil || !errors.As(err, &apiErr) || !apiErr.RateLimited() || attempt >= c.maxRetries {
			return err
		}

		delay := c.retryBase * time.Duration(1<<attempt)
		zctx.From(ctx).Warn("Rate limited, retrying",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)
		if err := wait(ctx, delay); err != nil {
			return err
		}
	}
}

func (c *Client) once(ctx context.Context, method, path string, query url.Values, payload []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "wait for rate limiter")
	}

	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("X-API-Key", c.key)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	env, err := decodeEnvelope(raw)
	ok := resp.StatusCode >= 200 && resp.StatusCode <= 299
	if !ok {
		msg := env.Message
		if msg == "" {
			msg = "API request failed"
		}
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: msg}
	}
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errors.Wrapf(err, "decode %s %s", method, path)
	}
	return nil
}

// envelope is the common reply wrapper:
//
//	{"success": true, "data": {...}, "message": "...", "code": "..."}
type envelope struct {
	Data    jx.Raw
	Message string
	Code    string
}

func decodeEnvelope(raw []byte) (envelope, error) {
	var env envelope
	d := jx.DecodeBytes(raw)
	if d.Next() != jx.Object {
		return env, errors.New("response is not a JSON object")
	}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "data":
			v, err := d.Raw()
			if err != nil {
				return err
			}
			env.Data = append(jx.Raw(nil), v...)
			return nil
		case "message", "error":
			if d.Next() != jx.String {
				return d.Skip()
			}
			s, err := d.Str()
			if err != nil {
				return err
			}
			if env.Message == "" || string(key) == "message" {
				env.Message = s
			}
			return nil
		case "code":
			if d.Next() != jx.String {
				return d.Skip()
			}
			s, err := d.Str()
			if err != nil {
				return err
			}
			env.Code = s
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return env, errors.Wrap(err, "decode envelope")
	}
	return env, nil
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
