package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"wa_listings/models"
	"wa_listings/storage"
)

// ListingService is the write path into the listing store.
type ListingService struct {
	store storage.ListingStore
}

func NewListingService(store storage.ListingStore) *ListingService {
	return &ListingService{store: store}
}

// Create persists an extracted record. The record must already satisfy the
// sale/rent amount invariant.
func (s *ListingService) Create(ctx context.Context, rec *models.ListingRecord, chatGroup, body string) (*models.Listing, error) {
	if err := checkAmounts(rec); err != nil {
		return nil, err
	}

	l := models.NewListing(rec, chatGroup, body)
	if err := s.store.CreateListing(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// AttachImage links an uploaded image URL to an existing listing.
func (s *ListingService) AttachImage(ctx context.Context, listingID uuid.UUID, url string) (*models.Image, error) {
	img := &models.Image{ListingID: listingID, URL: url}
	if err := s.store.AttachImage(ctx, img); err != nil {
		return nil, err
	}
	return img, nil
}

func (s *ListingService) List(ctx context.Context, filter models.ListingFilter) (*models.ListingPage, error) {
	return s.store.ListListings(ctx, filter)
}

func (s *ListingService) Stats(ctx context.Context) (*models.ListingStats, error) {
	return s.store.GetStats(ctx)
}

func checkAmounts(rec *models.ListingRecord) error {
	switch rec.ListingType {
	case models.ListingTypeSale:
		if rec.Price == nil || rec.RentPerMonth != nil {
			return fmt.Errorf("sale listing must carry price only")
		}
	case models.ListingTypeRent:
		if rec.RentPerMonth == nil || rec.Price != nil {
			return fmt.Errorf("rent listing must carry rentpermonth only")
		}
	default:
		return fmt.Errorf("invalid listing_type %q", rec.ListingType)
	}
	return nil
}
