package mataresit

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-faster/errors"
)

// Health checks the API and returns the caller's scopes.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListReceipts lists receipts matching f.
func (c *Client) ListReceipts(ctx context.Context, f ReceiptFilter) (*ReceiptList, error) {
	var out ReceiptList
	if err := c.do(ctx, http.MethodGet, "/receipts", f.values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetReceipt returns one receipt.
func (c *Client) GetReceipt(ctx context.Context, id string) (*Receipt, error) {
	if id == "" {
		return nil, errors.New("receipt id is empty")
	}
	var out Receipt
	if err := c.do(ctx, http.MethodGet, "/receipts/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateReceipt creates a receipt.
func (c *Client) CreateReceipt(ctx context.Context, in ReceiptInput) (*Receipt, error) {
	if in.Currency == "" {
		in.Currency = "USD"
	}
	var out Receipt
	if err := c.do(ctx, http.MethodPost, "/receipts", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateReceipt applies a partial update.
func (c *Client) UpdateReceipt(ctx context.Context, id string, fields map[string]any) (*Receipt, error) {
	var out Receipt
	if err := c.do(ctx, http.MethodPut, "/receipts/"+url.PathEscape(id), nil, fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteReceipt deletes a receipt.
func (c *Client) DeleteReceipt(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/receipts/"+url.PathEscape(id), nil, nil, nil)
}

// CreateReceiptsBatch creates several receipts in one request.
func (c *Client) CreateReceiptsBatch(ctx context.Context, in []ReceiptInput) (*BatchResult, error) {
	items := make([]ReceiptInput, len(in))
	for i, r := range in {
		if r.Currency == "" {
			r.Currency = "USD"
		}
		items[i] = r
	}
	body := struct {
		Receipts []ReceiptInput `json:"receipts"`
	}{Receipts: items}

	var out BatchResult
	if err := c.do(ctx, http.MethodPost, "/receipts/batch", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListClaims lists claims. params are passed through as query parameters.
func (c *Client) ListClaims(ctx context.Context, params url.Values) (*ClaimList, error) {
	var out ClaimList
	if err := c.do(ctx, http.MethodGet, "/claims", params, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateClaim creates a claim.
func (c *Client) CreateClaim(ctx context.Context, in ClaimInput) (*Claim, error) {
	if in.Currency == "" {
		in.Currency = "USD"
	}
	if in.Priority == "" {
		in.Priority = "medium"
	}
	var out Claim
	if err := c.do(ctx, http.MethodPost, "/claims", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search runs a semantic search.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if req.Query == "" {
		return nil, errors.New("search query is empty")
	}
	var out SearchResponse
	if err := c.do(ctx, http.MethodPost, "/search", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Analytics returns the summary and category breakdown for r.
func (c *Client) Analytics(ctx context.Context, r DateRange) (*Analytics, error) {
	var out Analytics
	if err := c.do(ctx, http.MethodGet, "/analytics", r.values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SpendingSummary returns totals for r.
func (c *Client) SpendingSummary(ctx context.Context, r DateRange) (*SpendingSummary, error) {
	var out SpendingSummary
	if err := c.do(ctx, http.MethodGet, "/analytics/summary", r.values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CategoryAnalytics returns spending per category for r.
func (c *Client) CategoryAnalytics(ctx context.Context, r DateRange) (*CategoryAnalytics, error) {
	var out CategoryAnalytics
	if err := c.do(ctx, http.MethodGet, "/analytics/categories", r.values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Teams lists the caller's teams.
func (c *Client) Teams(ctx context.Context) (*TeamList, error) {
	var out TeamList
	if err := c.do(ctx, http.MethodGet, "/teams", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TeamStats returns statistics for a team.
func (c *Client) TeamStats(ctx context.Context, teamID string) (*TeamStats, error) {
	var out TeamStats
	if err := c.do(ctx, http.MethodGet, "/teams/"+url.PathEscape(teamID)+"/stats", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
