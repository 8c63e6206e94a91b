// Package broadcast pushes state-change notifications to every subscriber
// sink. Delivery is best-effort and at-most-once with no replay.
package broadcast

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"wa_listings/models"
)

// Sink receives every broadcast event. Send must not block for long.
type Sink interface {
	Send(ev models.Event)
}

// Broadcaster fans events out to its sinks in publish order.
type Broadcaster struct {
	sinks  []Sink
	logger *slog.Logger
	now    func() time.Time
}

func New(logger *slog.Logger, sinks ...Sink) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		sinks:  sinks,
		logger: logger.With("component", "broadcaster"),
		now:    time.Now,
	}
}

// Nop returns a Broadcaster without sinks.
func Nop() *Broadcaster {
	return New(slog.New(slog.DiscardHandler))
}

func (b *Broadcaster) publish(name string, data any, ts time.Time) {
	ev := models.Event{Name: name, Data: data, Timestamp: ts}
	for _, s := range b.sinks {
		s.Send(ev)
	}
	b.logger.Debug("event published", "event", name, "sinks", len(b.sinks))
}

func (b *Broadcaster) PublishListingCreated(l *models.Listing) {
	ts := b.now()
	b.publish(models.EventNewListing, models.ListingCreatedPayload{Listing: l, Timestamp: ts}, ts)
}

func (b *Broadcaster) PublishImageAdded(listingID uuid.UUID, url string) {
	ts := b.now()
	b.publish(models.EventNewImage, models.ImageAddedPayload{ListingID: listingID, ImageURL: url, Timestamp: ts}, ts)
}

func (b *Broadcaster) PublishClientReady() {
	ts := b.now()
	b.publish(models.EventWhatsAppReady, models.ReadyPayload{Timestamp: ts}, ts)
}

func (b *Broadcaster) PublishClientDisconnected(reason string) {
	ts := b.now()
	b.publish(models.EventWhatsAppDisconnected, models.DisconnectedPayload{Reason: reason, Timestamp: ts}, ts)
}

func (b *Broadcaster) PublishQRChallenge(qr string) {
	ts := b.now()
	b.publish(models.EventQRCode, models.QRPayload{QR: qr, Timestamp: ts}, ts)
}

func (b *Broadcaster) PublishLoadingProgress(percent int, message string) {
	ts := b.now()
	b.publish(models.EventWhatsAppLoading, models.LoadingPayload{Percent: percent, Message: message, Timestamp: ts}, ts)
}

// PublishStats emits a periodic stats snapshot.
func (b *Broadcaster) PublishStats(stats any) {
	b.publish(models.EventStatsUpdate, stats, b.now())
}

// Recorder is a Sink that keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *Recorder) Send(ev models.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Names returns the recorded event names in arrival order.
func (r *Recorder) Names() []string {
	evs := r.Events()
	names := make([]string, len(evs))
	for i, ev := range evs {
		names[i] = ev.Name
	}
	return names
}
