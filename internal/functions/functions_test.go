package functions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Options{BaseURL: srv.URL + "/", ServiceKey: "service-key", HTTPClient: srv.Client()})
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Options{ServiceKey: "k"})
	assert.Error(t, err)
	_, err = NewClient(Options{BaseURL: "http://x"})
	assert.Error(t, err)
}

func TestInvoke_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/generate-embeddings", r.URL.Path)
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
		assert.Equal(t, "service-key", r.Header.Get("apikey"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "r-1", payload["receiptId"])

		_, _ = w.Write([]byte(`{"success":true,"embeddings":3}`))
	})

	res, err := c.Invoke(context.Background(), "generate-embeddings", map[string]any{"receiptId": "r-1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "generate-embeddings", res.Function)
	assert.JSONEq(t, `{"success":true,"embeddings":3}`, string(res.Body))
}

func TestInvoke_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantMsg   string
		temporary bool
	}{
		{name: "ServerError", status: 500, body: `{"error":"model overloaded"}`, wantMsg: "model overloaded", temporary: true},
		{name: "RateLimited", status: 429, body: `rate limited`, temporary: true},
		{name: "BadRequest", status: 400, body: `{"error":{"message":"receiptId required"}}`, wantMsg: "receiptId required"},
		{name: "SuccessFalse", status: 200, body: `{"success":false,"message":"no content"}`, wantMsg: "no content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			res, err := c.Invoke(context.Background(), "fn", nil)
			require.Error(t, err)
			require.NotNil(t, res)

			var ie *InvokeError
			require.True(t, errors.As(err, &ie))
			assert.Equal(t, tt.status, ie.Status)
			assert.Equal(t, tt.wantMsg, ie.Message)
			assert.Equal(t, tt.temporary, ie.Temporary())
			assert.Contains(t, ie.Error(), "function fn")
		})
	}
}

func TestInvoke_Canceled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Invoke(ctx, "fn", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodeEnvelope(t *testing.T) {
	failed, msg := decodeEnvelope([]byte(`[1,2]`))
	assert.False(t, failed)
	assert.Empty(t, msg)

	failed, msg = decodeEnvelope([]byte(`{"success":"yes","message":"ok"}`))
	assert.False(t, failed)
	assert.Equal(t, "ok", msg)
}
