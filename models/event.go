package models

import (
	"time"

	"github.com/google/uuid"
)

// Broadcast event names as seen by dashboard subscribers.
const (
	EventNewListing           = "new_listing"
	EventNewImage             = "new_image"
	EventWhatsAppReady        = "whatsapp_ready"
	EventWhatsAppDisconnected = "whatsapp_disconnected"
	EventWhatsAppLoading      = "whatsapp_loading"
	EventQRCode               = "qr_code"
	EventStatsUpdate          = "stats_update"
	EventConnectionStatus     = "connection_status"
)

// Event is a named broadcast notification.
type Event struct {
	Name      string    `json:"event"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// ListingCreatedPayload flattens the listing fields next to the event time.
type ListingCreatedPayload struct {
	*Listing
	Timestamp time.Time `json:"timestamp"`
}

type ImageAddedPayload struct {
	ListingID uuid.UUID `json:"listingId"`
	ImageURL  string    `json:"imageUrl"`
	Timestamp time.Time `json:"timestamp"`
}

type ReadyPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

type DisconnectedPayload struct {
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

type LoadingPayload struct {
	Percent   int       `json:"percent"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type QRPayload struct {
	QR        string    `json:"qr"`
	Timestamp time.Time `json:"timestamp"`
}

type ConnectionStatusPayload struct {
	Status string `json:"status"`
}
