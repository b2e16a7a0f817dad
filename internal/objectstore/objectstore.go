// Package objectstore talks to the hosted storage REST API.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// MaxDownload bounds the size of a downloaded object.
const MaxDownload = 32 << 20

// ErrTooLarge is returned when an object exceeds MaxDownload.
var ErrTooLarge = errors.New("object too large")

// StatusError is returned for non-2xx storage replies.
type StatusError struct {
	Op      string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
}

// Client is a storage API client authenticated with the service key.
type Client struct {
	base string
	key  string
	http *http.Client
}

// NewClient creates a Client for the storage root, e.g. <project>/storage/v1.
func NewClient(baseURL, serviceKey string, hc *http.Client) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("storage base URL is empty")
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		key:  serviceKey,
		http: hc,
	}, nil
}

// Object is a downloaded object.
type Object struct {
	Data        []byte
	ContentType string
}

// Download fetches rawURL. Requests to the storage host carry credentials;
// other hosts are fetched anonymously.
func (c *Client) Download(ctx context.Context, rawURL string) (*Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	if c.sameHost(req.URL) {
		c.authorize(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "download")
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus("download", resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownload+1))
	if err != nil {
		return nil, errors.Wrap(err, "read object")
	}
	if len(data) > MaxDownload {
		return nil, ErrTooLarge
	}
	return &Object{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

// Upload stores data at bucket/path, replacing any existing object.
func (c *Client) Upload(ctx context.Context, bucket, path, contentType string, data []byte) error {
	u := c.base + "/object/" + bucket + "/" + escapePath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	c.authorize(req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")
	req.Header.Set("Cache-Control", "max-age=3600")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "upload")
	}
	defer func() { _ = resp.Body.Close() }()
	return checkStatus("upload", resp)
}

// PublicURL returns the public address of bucket/path.
func (c *Client) PublicURL(bucket, path string) string {
	return c.base + "/object/public/" + bucket + "/" + escapePath(path)
}

func (c *Client) authorize(req *http.Request) {
	if c.key == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("apikey", c.key)
}

func (c *Client) sameHost(u *url.URL) bool {
	base, err := url.Parse(c.base)
	if err != nil {
		return false
	}
	return strings.EqualFold(base.Host, u.Host)
}

func escapePath(p string) string {
	parts := strings.Split(strings.TrimLeft(p, "/"), "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &StatusError{Op: op, Status: resp.StatusCode, Message: errorMessage(body)}
}

// errorMessage extracts "message" or "error" from a storage error body.
func errorMessage(body []byte) string {
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return strings.TrimSpace(string(body))
	}
	var msg, errStr string
	_ = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if d.Next() != jx.String {
			return d.Skip()
		}
		s, err := d.Str()
		if err != nil {
			return err
		}
		switch string(key) {
		case "message":
			msg = s
		case "error":
			errStr = s
		}
		return nil
	})
	if msg != "" {
		return msg
	}
	return errStr
}
