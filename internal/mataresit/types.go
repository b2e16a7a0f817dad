package mataresit

import (
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value encoded as a JSON number.
type Amount struct {
	decimal.Decimal
}

// NewAmount parses a decimal string.
func NewAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Decimal: d}, nil
}

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts numbers and numeric strings.
func (a *Amount) UnmarshalJSON(b []byte) error {
	return a.Decimal.UnmarshalJSON(b)
}

// Receipt as returned by the API.
type Receipt struct {
	ID               string    `json:"id"`
	Merchant         string    `json:"merchant"`
	Date             string    `json:"date"`
	Total            Amount    `json:"total"`
	Currency         string    `json:"currency"`
	PaymentMethod    string    `json:"paymentMethod,omitempty"`
	Category         string    `json:"category,omitempty"`
	Status           string    `json:"status,omitempty"`
	ProcessingStatus string    `json:"processingStatus,omitempty"`
	TeamID           string    `json:"teamId,omitempty"`
	CreatedAt        time.Time `json:"createdAt,omitzero"`
}

// ReceiptInput creates a receipt. Date is YYYY-MM-DD.
type ReceiptInput struct {
	Merchant      string `json:"merchant"`
	Date          string `json:"date"`
	Total         Amount `json:"total"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"paymentMethod,omitempty"`
	Category      string `json:"category,omitempty"`
	FullText      string `json:"fullText,omitempty"`
	TeamID        string `json:"teamId,omitempty"`
}

// ReceiptFilter narrows ListReceipts.
type ReceiptFilter struct {
	StartDate string
	EndDate   string
	Category  string
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

func (f ReceiptFilter) values() url.Values {
	v := url.Values{}
	set := func(k, s string) {
		if s != "" {
			v.Set(k, s)
		}
	}
	set("start_date", f.StartDate)
	set("end_date", f.EndDate)
	set("category", f.Category)
	set("sort_by", f.SortBy)
	set("sort_order", f.SortOrder)
	if f.Limit > 0 {
		v.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		v.Set("offset", strconv.Itoa(f.Offset))
	}
	return v
}

// Pagination describes a page of results.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// ReceiptList is a page of receipts.
type ReceiptList struct {
	Receipts   []Receipt  `json:"receipts"`
	Pagination Pagination `json:"pagination"`
}

// BatchError is a rejected item of a batch create.
type BatchError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
	// Batch is set by BulkUpload when a whole batch failed.
	Batch int `json:"batch,omitempty"`
}

// BatchResult is the reply to CreateReceiptsBatch.
type BatchResult struct {
	Created []Receipt    `json:"created"`
	Errors  []BatchError `json:"errors"`
}

// Claim is an expense claim.
type Claim struct {
	ID          string `json:"id"`
	TeamID      string `json:"teamId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Amount      Amount `json:"amount"`
	Currency    string `json:"currency"`
	Category    string `json:"category,omitempty"`
	Priority    string `json:"priority"`
	Status      string `json:"status,omitempty"`
}

// ClaimInput creates a claim. Priority defaults to medium.
type ClaimInput struct {
	TeamID      string `json:"teamId"`
	Title       string `json:"title"`
	Amount      Amount `json:"amount"`
	Currency    string `json:"currency"`
	Priority    string `json:"priority"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// ClaimList is a page of claims.
type ClaimList struct {
	Claims     []Claim    `json:"claims"`
	Pagination Pagination `json:"pagination"`
}

// SearchRequest is a semantic search query.
type SearchRequest struct {
	Query   string   `json:"query"`
	Sources []string `json:"sources,omitempty"`
	Limit   int      `json:"limit,omitempty"`
	Offset  int      `json:"offset,omitempty"`
}

// SearchResult is one search hit.
type SearchResult struct {
	ID         string  `json:"id"`
	SourceType string  `json:"sourceType"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// SearchResponse holds search hits.
type SearchResponse struct {
	Results      []SearchResult `json:"results"`
	TotalResults int            `json:"totalResults"`
}

// DateRange limits analytics queries. Dates are YYYY-MM-DD.
type DateRange struct {
	StartDate string
	EndDate   string
	Currency  string
}

func (r DateRange) values() url.Values {
	v := url.Values{}
	if r.StartDate != "" {
		v.Set("start_date", r.StartDate)
	}
	if r.EndDate != "" {
		v.Set("end_date", r.EndDate)
	}
	if r.Currency != "" {
		v.Set("currency", r.Currency)
	}
	return v
}

// LastDays returns the range ending today and starting days ago.
func LastDays(now time.Time, days int) DateRange {
	return DateRange{
		StartDate: now.AddDate(0, 0, -days).Format(time.DateOnly),
		EndDate:   now.Format(time.DateOnly),
	}
}

// SpendingSummary aggregates spending.
type SpendingSummary struct {
	TotalAmount   Amount `json:"totalAmount"`
	TotalReceipts int    `json:"totalReceipts"`
	AverageAmount Amount `json:"averageAmount"`
	Currency      string `json:"currency,omitempty"`
}

// CategorySpend is spending in one category.
type CategorySpend struct {
	Category   string  `json:"category"`
	Amount     Amount  `json:"amount"`
	Percentage float64 `json:"percentage"`
	Count      int     `json:"count"`
}

// Analytics is the combined analytics reply.
type Analytics struct {
	Summary           SpendingSummary `json:"summary"`
	CategoryBreakdown []CategorySpend `json:"categoryBreakdown"`
}

// CategoryAnalytics is the category breakdown reply.
type CategoryAnalytics struct {
	Categories []CategorySpend `json:"categories"`
}

// HealthUser is the caller identity reported by Health.
type HealthUser struct {
	ID     string   `json:"id"`
	Scopes []string `json:"scopes"`
}

// Health is the reply to Health.
type Health struct {
	Status    string     `json:"status"`
	Version   string     `json:"version,omitempty"`
	Timestamp string     `json:"timestamp,omitempty"`
	User      HealthUser `json:"user"`
}

// Team is a team the caller belongs to.
type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// TeamList lists teams.
type TeamList struct {
	Teams []Team `json:"teams"`
}

// TeamStats summarises a team's activity.
type TeamStats struct {
	MemberCount   int    `json:"memberCount"`
	TotalReceipts int    `json:"totalReceipts"`
	TotalAmount   Amount `json:"totalAmount"`
	PendingClaims int    `json:"pendingClaims"`
}
