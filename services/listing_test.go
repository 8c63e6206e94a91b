package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"wa_listings/models"
	"wa_listings/storage"
)

type memStore struct {
	listings map[uuid.UUID]*models.Listing
	images   []*models.Image
}

func newMemStore() *memStore {
	return &memStore{listings: make(map[uuid.UUID]*models.Listing)}
}

func (m *memStore) CreateListing(ctx context.Context, l *models.Listing) error {
	l.ID = uuid.New()
	m.listings[l.ID] = l
	return nil
}

func (m *memStore) AttachImage(ctx context.Context, img *models.Image) error {
	if _, ok := m.listings[img.ListingID]; !ok {
		return &storage.PersistenceError{Op: "attach image", Err: storage.ErrListingNotFound}
	}
	img.ID = uuid.New()
	m.images = append(m.images, img)
	return nil
}

func (m *memStore) GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	return m.listings[id], nil
}

func (m *memStore) ListListings(ctx context.Context, f models.ListingFilter) (*models.ListingPage, error) {
	return &models.ListingPage{}, nil
}

func (m *memStore) GetStats(ctx context.Context) (*models.ListingStats, error) {
	return &models.ListingStats{TotalListings: len(m.listings)}, nil
}

func (m *memStore) Close() error { return nil }

func f64(v float64) *float64 { return &v }

func TestListingServiceCreate(t *testing.T) {
	store := newMemStore()
	svc := NewListingService(store)

	rec := &models.ListingRecord{ListingType: models.ListingTypeRent, RentPerMonth: f64(25000)}
	l, err := svc.Create(context.Background(), rec, "Real Estate Listings", "2 BHK for rent")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if l.ID == uuid.Nil {
		t.Fatal("expected id")
	}
	if l.ChatGroup != "Real Estate Listings" || l.Description != "2 BHK for rent" {
		t.Fatalf("unexpected listing %+v", l)
	}
}

func TestListingServiceRejectsBadAmounts(t *testing.T) {
	tests := []struct {
		name string
		rec  models.ListingRecord
	}{
		{"sale without price", models.ListingRecord{ListingType: models.ListingTypeSale}},
		{"rent with price", models.ListingRecord{ListingType: models.ListingTypeRent, RentPerMonth: f64(1), Price: f64(2)}},
		{"unknown type", models.ListingRecord{ListingType: "lease", Price: f64(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			svc := NewListingService(store)
			if _, err := svc.Create(context.Background(), &tt.rec, "g", "b"); err == nil {
				t.Fatal("expected error")
			}
			if len(store.listings) != 0 {
				t.Fatal("store should not be called")
			}
		})
	}
}

func TestListingServiceAttachImage(t *testing.T) {
	store := newMemStore()
	svc := NewListingService(store)

	l, err := svc.Create(context.Background(), &models.ListingRecord{ListingType: models.ListingTypeSale, Price: f64(1e7)}, "g", "b")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	img, err := svc.AttachImage(context.Background(), l.ID, "/images/a.jpg")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if img.ListingID != l.ID || img.URL != "/images/a.jpg" {
		t.Fatalf("unexpected image %+v", img)
	}

	if _, err := svc.AttachImage(context.Background(), uuid.New(), "/images/b.jpg"); err == nil {
		t.Fatal("expected error for unknown listing")
	}
}
