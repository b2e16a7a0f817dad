package receipt

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested receipt does not exist.
var ErrNotFound = errors.New("receipt not found")

// Processing states reported by the upload pipeline.
const (
	ProcessingPending  = "pending"
	ProcessingComplete = "complete"
	ProcessingFailed   = "failed"
)

// Receipt is a scanned purchase record as stored in the hosted database.
type Receipt struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	Merchant         string
	Date             time.Time
	Total            decimal.Decimal
	Currency         string
	Status           string
	ProcessingStatus string
	ImageURL         string
	ThumbnailURL     string
	FullText         string
	CreatedAt        time.Time
}

// Repository defines the receipt queries used by the operational tools.
type Repository interface {
	Count(ctx context.Context) (int64, error)
	CountWithLineItems(ctx context.Context) (int64, error)
	Get(ctx context.Context, id uuid.UUID) (*Receipt, error)
	// Page returns up to limit receipts with id greater than after, ordered by id.
	Page(ctx context.Context, after uuid.UUID, limit int) ([]Receipt, error)
	ListMissingThumbnails(ctx context.Context, limit int) ([]Receipt, error)
	// SetThumbnailURL updates the pointer column; an empty url stores NULL.
	SetThumbnailURL(ctx context.Context, id uuid.UUID, url string) error
}
