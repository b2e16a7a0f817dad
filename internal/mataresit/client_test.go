package mataresit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "mk_test_key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"code":"UNAUTHORIZED","message":"invalid api key"}`))
			return
		}
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{
		BaseURL:      srv.URL + "/api/v1/",
		APIKey:       "mk_test_key",
		HTTPClient:   srv.Client(),
		RetryBase:    time.Millisecond,
		PollInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func reply(w http.ResponseWriter, status int, data string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"success":true,"data":%s}`, data)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Options{APIKey: "k"})
	assert.Error(t, err)
	_, err = NewClient(Options{BaseURL: "http://x"})
	assert.Error(t, err)
}

func TestClient_Health(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/health", r.URL.Path)
		reply(w, 200, `{"status":"healthy","user":{"id":"u1","scopes":["receipts:read","search:read"]}}`)
	}))

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, []string{"receipts:read", "search:read"}, h.User.Scopes)
}

func TestClient_APIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"success":false,"code":"INSUFFICIENT_SCOPE","message":"receipts:write required"}`))
	}))

	_, err := c.CreateReceipt(context.Background(), ReceiptInput{Merchant: "x"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "INSUFFICIENT_SCOPE", apiErr.Code)
	assert.Equal(t, "receipts:write required", apiErr.Message)
	assert.False(t, apiErr.RateLimited())
}

func TestClient_NonJSONError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	err := c.DeleteReceipt(context.Background(), "r1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "API request failed", apiErr.Message)
}

func TestClient_RetryOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"success":false,"code":"RATE_LIMITED","message":"slow down"}`))
			return
		}
		reply(w, 200, `{"teams":[{"id":"t1","name":"Finance"}]}`)
	}))

	teams, err := c.Teams(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, teams.Teams, 1)
	assert.Equal(t, "Finance", teams.Teams[0].Name)
}

func TestClient_RetryExhausted(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"success":false,"message":"slow down"}`))
	}))

	_, err := c.Teams(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.RateLimited())
	assert.Equal(t, int32(3), calls.Load(), "default max retries")
}

func TestClient_ReceiptsCRUD(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/receipts", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2025-01-01", q.Get("start_date"))
		assert.Equal(t, "10", q.Get("limit"))
		assert.Equal(t, "desc", q.Get("sort_order"))
		assert.False(t, q.Has("offset"))
		reply(w, 200, `{"receipts":[{"id":"r1","merchant":"Starbucks","total":15.5,"currency":"USD"}],"pagination":{"total":1,"limit":10}}`)
	})
	mux.HandleFunc("POST /api/v1/receipts", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 15.5, body["total"], "amount is a JSON number")
		assert.Equal(t, "USD", body["currency"])
		assert.Equal(t, "Food & Dining", body["category"])
		assert.NotContains(t, body, "teamId")
		reply(w, 201, `{"id":"r2","merchant":"Starbucks Coffee","total":"15.50","currency":"USD","processingStatus":"pending"}`)
	})
	mux.HandleFunc("PUT /api/v1/receipts/r2", func(w http.ResponseWriter, r *http.Request) {
		reply(w, 200, `{"id":"r2","merchant":"Starbucks","total":15.5}`)
	})
	mux.HandleFunc("DELETE /api/v1/receipts/r2", func(w http.ResponseWriter, r *http.Request) {
		reply(w, 200, `{"deleted":true}`)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	list, err := c.ListReceipts(ctx, ReceiptFilter{StartDate: "2025-01-01", Limit: 10, SortBy: "total", SortOrder: "desc"})
	require.NoError(t, err)
	require.Len(t, list.Receipts, 1)
	assert.Equal(t, "15.5", list.Receipts[0].Total.String())

	total, err := NewAmount("15.50")
	require.NoError(t, err)
	created, err := c.CreateReceipt(ctx, ReceiptInput{
		Merchant: "Starbucks Coffee",
		Date:     "2025-01-15",
		Total:    total,
		Category: "Food & Dining",
	})
	require.NoError(t, err)
	assert.Equal(t, "r2", created.ID)
	assert.True(t, created.Total.Equal(total.Decimal))

	updated, err := c.UpdateReceipt(ctx, "r2", map[string]any{"merchant": "Starbucks"})
	require.NoError(t, err)
	assert.Equal(t, "Starbucks", updated.Merchant)

	require.NoError(t, c.DeleteReceipt(ctx, "r2"))

	_, err = c.GetReceipt(ctx, "")
	assert.Error(t, err)
}

func TestClient_SearchAndAnalytics(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/search", func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "coffee expenses", req.Query)
		assert.Equal(t, []string{"receipts"}, req.Sources)
		reply(w, 200, `{"results":[{"id":"r1","sourceType":"receipt","title":"Starbucks","content":"latte","similarity":0.91}],"totalResults":1}`)
	})
	mux.HandleFunc("GET /api/v1/analytics", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2025-01-31", r.URL.Query().Get("end_date"))
		reply(w, 200, `{"summary":{"totalAmount":120.5,"totalReceipts":3,"averageAmount":40.17},
			"categoryBreakdown":[{"category":"Transportation","amount":80,"percentage":66.4,"count":2}]}`)
	})
	mux.HandleFunc("GET /api/v1/analytics/summary", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "USD", r.URL.Query().Get("currency"))
		reply(w, 200, `{"totalAmount":120.5,"totalReceipts":3,"averageAmount":40.17,"currency":"USD"}`)
	})
	mux.HandleFunc("GET /api/v1/analytics/categories", func(w http.ResponseWriter, r *http.Request) {
		reply(w, 200, `{"categories":[{"category":"Groceries","amount":67.89,"percentage":100,"count":1}]}`)
	})
	mux.HandleFunc("GET /api/v1/teams/t1/stats", func(w http.ResponseWriter, r *http.Request) {
		reply(w, 200, `{"memberCount":4,"totalReceipts":12,"totalAmount":"999.99","pendingClaims":2}`)
	})
	mux.HandleFunc("GET /api/v1/claims", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pending", r.URL.Query().Get("status"))
		reply(w, 200, `{"claims":[{"id":"c1","teamId":"t1","title":"Taxi","amount":25.5,"currency":"USD","priority":"high"}]}`)
	})
	mux.HandleFunc("POST /api/v1/claims", func(w http.ResponseWriter, r *http.Request) {
		var in ClaimInput
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "medium", in.Priority)
		reply(w, 201, `{"id":"c2","teamId":"t1","title":"Lunch","amount":12,"currency":"USD","priority":"medium"}`)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	res, err := c.Search(ctx, SearchRequest{Query: "coffee expenses", Sources: []string{"receipts"}, Limit: 5})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.InDelta(t, 0.91, res.Results[0].Similarity, 1e-9)

	_, err = c.Search(ctx, SearchRequest{})
	assert.Error(t, err)

	a, err := c.Analytics(ctx, DateRange{StartDate: "2025-01-01", EndDate: "2025-01-31"})
	require.NoError(t, err)
	assert.Equal(t, 3, a.Summary.TotalReceipts)
	assert.Equal(t, "Transportation", a.CategoryBreakdown[0].Category)

	sum, err := c.SpendingSummary(ctx, DateRange{Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, "120.5", sum.TotalAmount.String())

	cats, err := c.CategoryAnalytics(ctx, DateRange{})
	require.NoError(t, err)
	assert.Len(t, cats.Categories, 1)

	stats, err := c.TeamStats(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.MemberCount)
	assert.Equal(t, "999.99", stats.TotalAmount.String())

	claims, err := c.ListClaims(ctx, map[string][]string{"status": {"pending"}})
	require.NoError(t, err)
	assert.Equal(t, "Taxi", claims.Claims[0].Title)

	amount, _ := NewAmount("12")
	claim, err := c.CreateClaim(ctx, ClaimInput{TeamID: "t1", Title: "Lunch", Amount: amount})
	require.NoError(t, err)
	assert.Equal(t, "c2", claim.ID)
}

func TestLastDays(t *testing.T) {
	r := LastDays(time.Date(2025, 1, 31, 15, 0, 0, 0, time.UTC), 30)
	assert.Equal(t, "2025-01-01", r.StartDate)
	assert.Equal(t, "2025-01-31", r.EndDate)
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := decodeEnvelope([]byte(`{"success":false,"error":"boom","code":"X","data":null}`))
	require.NoError(t, err)
	assert.Equal(t, "boom", env.Message)
	assert.Equal(t, "X", env.Code)

	_, err = decodeEnvelope([]byte(`[]`))
	assert.Error(t, err)

	_, err = decodeEnvelope([]byte(strings.Repeat("{", 3)))
	assert.Error(t, err)
}
