package models

import (
	"time"

	"github.com/google/uuid"
)

// ListingType is the kind of offer a listing describes.
type ListingType string

const (
	ListingTypeSale ListingType = "sale"
	ListingTypeRent ListingType = "rent"
)

func (t ListingType) Valid() bool {
	return t == ListingTypeSale || t == ListingTypeRent
}

// ListingRecord is the structured result of extracting a chat message.
// Field names follow the extraction service's JSON contract.
type ListingRecord struct {
	BHK             *int        `json:"bhk"`
	Location        *string     `json:"location"`
	Price           *float64    `json:"price"`
	RentPerMonth    *float64    `json:"rentpermonth"`
	ListingType     ListingType `json:"listing_type"`
	FurnishedStatus *string     `json:"furnished_status"`
	Area            *string     `json:"area"`
	Contact         *string     `json:"contact"`
	BrokerName      *string     `json:"broker_name"`
}

// Listing is a persisted property offer. Only Images grows after creation.
type Listing struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	BHK             *int        `json:"bhk" db:"bhk"`
	Location        *string     `json:"location" db:"location"`
	Area            *string     `json:"area" db:"area"`
	FurnishedStatus *string     `json:"furnished_status" db:"furnished_status"`
	ListingType     ListingType `json:"listing_type" db:"listing_type"`
	Price           *float64    `json:"price" db:"price"`
	RentPerMonth    *float64    `json:"rentpermonth" db:"rentpermonth"`
	Contact         *string     `json:"contact" db:"contact"`
	BrokerName      *string     `json:"broker_name" db:"broker_name"`
	ChatGroup       string      `json:"chat_group" db:"chat_group"`
	Description     string      `json:"description" db:"description"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	Images          []Image     `json:"images"`
}

// NewListing builds an unsaved listing from an extracted record.
func NewListing(rec *ListingRecord, chatGroup, description string) *Listing {
	return &Listing{
		BHK:             rec.BHK,
		Location:        rec.Location,
		Area:            rec.Area,
		FurnishedStatus: rec.FurnishedStatus,
		ListingType:     rec.ListingType,
		Price:           rec.Price,
		RentPerMonth:    rec.RentPerMonth,
		Contact:         rec.Contact,
		BrokerName:      rec.BrokerName,
		ChatGroup:       chatGroup,
		Description:     description,
	}
}

// Image is a media attachment owned by exactly one listing.
type Image struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ListingID uuid.UUID `json:"listing_id" db:"listing_id"`
	URL       string    `json:"url" db:"image_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ListingFilter narrows a listing query.
type ListingFilter struct {
	Page        int
	Limit       int
	Search      string
	ListingType ListingType
	Location    string
}

func (f *ListingFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type ListingPage struct {
	Data       []Listing  `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// NewPagination computes page counts for a result of total rows.
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

// ListingStats are aggregate counts for the dashboard header.
type ListingStats struct {
	TotalListings int `json:"total_listings"`
	SaleListings  int `json:"sale_listings"`
	RentListings  int `json:"rent_listings"`
	TodayListings int `json:"today_listings"`
	TotalImages   int `json:"total_images"`
}
