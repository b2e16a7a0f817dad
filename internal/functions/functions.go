// Package functions invokes hosted edge functions over HTTP.
package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/mataresit-ops/pkg/ratelimit"
)

// maxBody bounds how much of a reply is kept.
const maxBody = 1 << 20

// Options configures a Client.
type Options struct {
	// BaseURL is the functions root, e.g. <project>/functions/v1.
	BaseURL    string
	ServiceKey string
	HTTPClient *http.Client
	// Limiter throttles invocations; nil disables throttling.
	Limiter *ratelimit.Limiter
}

// Client calls edge functions with service-role credentials.
type Client struct {
	base    string
	key     string
	http    *http.Client
	limiter *ratelimit.Limiter
}

// NewClient creates a Client.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("functions base URL is empty")
	}
	if opts.ServiceKey == "" {
		return nil, errors.New("service key is empty")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		key:     opts.ServiceKey,
		http:    hc,
		limiter: opts.Limiter,
	}, nil
}

// Result describes a completed invocation.
type Result struct {
	Function string
	Status   int
	Duration time.Duration
	Body     []byte
}

// InvokeError is returned for non-2xx replies and for 2xx replies whose
// envelope reports `"success": false`.
type InvokeError struct {
	Function string
	Status   int
	Message  string
	Body     []byte
}

func (e *InvokeError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("function %s: status %d: %s", e.Function, e.Status, msg)
}

// Temporary reports whether retrying may succeed.
func (e *InvokeError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Invoke POSTs payload as JSON to the named function.
func (c *Client) Invoke(ctx context.Context, name string, payload any) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "wait for rate limiter")
	}

	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "marshal payload")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/"+name, body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("apikey", c.key)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "invoke %s", name)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s reply", name)
	}
	res := &Result{
		Function: name,
		Status:   resp.StatusCode,
		Duration: time.Since(start),
		Body:     data,
	}

	failed, msg := decodeEnvelope(data)
	if resp.StatusCode < 200 || resp.StatusCode > 299 || failed {
		return res, &InvokeError{
			Function: name,
			Status:   resp.StatusCode,
			Message:  msg,
			Body:     data,
		}
	}
	return res, nil
}

// decodeEnvelope extracts the failure flag and message from a reply like
// {"success": false, "error": "..."}; non-object bodies are ignored.
func decodeEnvelope(data []byte) (failed bool, msg string) {
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return false, ""
	}
	var errMsg, message string
	_ = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "success":
			if d.Next() != jx.Bool {
				return d.Skip()
			}
			ok, err := d.Bool()
			if err != nil {
				return err
			}
			failed = !ok
			return nil
		case "error":
			return decodeMessage(d, &errMsg)
		case "message":
			return decodeMessage(d, &message)
		default:
			return d.Skip()
		}
	})
	if errMsg != "" {
		return failed, errMsg
	}
	return failed, message
}

// decodeMessage reads a string, or the "message" field of an object.
func decodeMessage(d *jx.Decoder, dst *string) error {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return err
		}
		*dst = s
		return nil
	case jx.Object:
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) == "message" && d.Next() == jx.String {
				s, err := d.Str()
				if err != nil {
					return err
				}
				*dst = s
				return nil
			}
			return d.Skip()
		})
	default:
		return d.Skip()
	}
}
