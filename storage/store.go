package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"wa_listings/models"
)

// ErrListingNotFound is returned when an image references a listing that does
// not exist.
var ErrListingNotFound = errors.New("listing not found")

// PersistenceError wraps a failed store write or read.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// ListingStore is implemented by every persistence backend.
type ListingStore interface {
	CreateListing(ctx context.Context, l *models.Listing) error
	AttachImage(ctx context.Context, img *models.Image) error
	GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	ListListings(ctx context.Context, filter models.ListingFilter) (*models.ListingPage, error)
	GetStats(ctx context.Context) (*models.ListingStats, error)
	Close() error
}

var (
	_ ListingStore = (*PostgresStore)(nil)
	_ ListingStore = (*SQLiteStore)(nil)
)

func normalizeFilter(f models.ListingFilter) models.ListingFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	return f
}
