// Package ingest runs the message pipeline: eligibility, classification,
// extract-and-persist, and correlation of trailing media with the listing
// it followed.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"wa_listings/correlation"
	"wa_listings/extraction"
	"wa_listings/models"
)

// Log outcome values for dropped or failed work.
const (
	OutcomeIneligibleSource   = "ineligible_source"
	OutcomeClassificationMiss = "classification_miss"
	OutcomeExtractionFailure  = "extraction_failure"
	OutcomePersistenceError   = "persistence_error"
	OutcomeNoPendingListing   = "no_pending_listing"
	OutcomeListingFailed      = "listing_failed"
	OutcomeMediaFailure       = "media_failure"
)

type Eligibility interface {
	IsEligible(isGroup bool, name string) bool
}

type Classifier interface {
	LooksLikeListing(text string) bool
}

type ListingWriter interface {
	Create(ctx context.Context, rec *models.ListingRecord, chatGroup, body string) (*models.Listing, error)
	AttachImage(ctx context.Context, listingID uuid.UUID, url string) (*models.Image, error)
}

type MediaStorer interface {
	Store(ctx context.Context, m *models.Media) (string, error)
}

type Publisher interface {
	PublishListingCreated(l *models.Listing)
	PublishImageAdded(listingID uuid.UUID, url string)
}

type Deps struct {
	Eligibility Eligibility
	Classifier  Classifier
	Extractor   extraction.Extractor
	Listings    ListingWriter
	Media       MediaStorer
	Publisher   Publisher
	Table       correlation.Table
	Logger      *slog.Logger
}

type counters struct {
	messages             atomic.Int64
	ineligible           atomic.Int64
	classificationMisses atomic.Int64
	listingsCreated      atomic.Int64
	extractionFailures   atomic.Int64
	persistenceErrors    atomic.Int64
	imagesAttached       atomic.Int64
	imagesDropped        atomic.Int64
}

// Stats is a point-in-time copy of the coordinator counters.
type Stats struct {
	Messages             int64 `json:"messages"`
	Ineligible           int64 `json:"ineligible"`
	ClassificationMisses int64 `json:"classification_misses"`
	ListingsCreated      int64 `json:"listings_created"`
	ExtractionFailures   int64 `json:"extraction_failures"`
	PersistenceErrors    int64 `json:"persistence_errors"`
	ImagesAttached       int64 `json:"images_attached"`
	ImagesDropped        int64 `json:"images_dropped"`
	PendingTasks         int   `json:"pending_tasks"`
}

// Coordinator handles inbound chat events. Each accepted event spawns its
// own goroutine; HandleMessage never blocks on network or storage.
type Coordinator struct {
	eligibility Eligibility
	classifier  Classifier
	extractor   extraction.Extractor
	listings    ListingWriter
	media       MediaStorer
	publisher   Publisher
	table       correlation.Table
	logger      *slog.Logger

	// tasks run to completion regardless of later events or shutdown
	ctx      context.Context
	inflight sync.WaitGroup
	stats    counters
}

func NewCoordinator(d Deps) *Coordinator {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	table := d.Table
	if table == nil {
		table = correlation.NewMemoryTable()
	}
	return &Coordinator{
		eligibility: d.Eligibility,
		classifier:  d.Classifier,
		extractor:   d.Extractor,
		listings:    d.Listings,
		media:       d.Media,
		publisher:   d.Publisher,
		table:       table,
		logger:      logger.With("component", "coordinator"),
		ctx:         context.Background(),
	}
}

// HandleMessage routes one inbound event. A message that is both
// listing-like and carries media registers its own task before the media
// lookup, so the media attaches to that listing.
func (c *Coordinator) HandleMessage(ev models.MessageEvent) {
	c.stats.messages.Add(1)
	log := c.logger.With("conversation", ev.ConversationID, "chat", ev.ConversationName)

	if !c.eligibility.IsEligible(ev.IsGroup, ev.ConversationName) {
		c.stats.ineligible.Add(1)
		log.Debug("message ignored", "outcome", OutcomeIneligibleSource)
		return
	}

	if c.classifier.LooksLikeListing(ev.Body) {
		task := correlation.NewTask(ev.ConversationID)
		if prev := c.table.Register(task); prev != nil && prev.State() == correlation.Pending {
			log.Info("pending listing superseded before it settled")
		}
		c.spawn(func() { c.runListing(ev, task, log) })
	} else if !ev.HasMedia {
		c.stats.classificationMisses.Add(1)
		log.Debug("message ignored", "outcome", OutcomeClassificationMiss)
	}

	if !ev.HasMedia {
		return
	}
	if ev.MediaFetcher == nil {
		c.stats.imagesDropped.Add(1)
		log.Warn("media dropped", "outcome", OutcomeMediaFailure, "error", "no media fetcher")
		return
	}
	task, ok := c.table.Lookup(ev.ConversationID)
	if !ok {
		c.stats.imagesDropped.Add(1)
		log.Info("media dropped", "outcome", OutcomeNoPendingListing)
		return
	}
	// slots are taken here, in arrival order, so images attach in that order
	turn, release := task.Chain()
	c.spawn(func() {
		defer release()
		c.runMedia(ev, task, turn, log)
	})
}

func (c *Coordinator) spawn(fn func()) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		fn()
	}()
}

// runListing extracts and persists one listing, then settles task. The
// listing is published before settlement so a waiting image event can never
// be broadcast ahead of it.
func (c *Coordinator) runListing(ev models.MessageEvent, task *correlation.Task, log *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("listing task panicked", "panic", r)
			task.Fail(fmt.Errorf("panic: %v", r))
		}
	}()

	rec, err := c.extractor.Extract(c.ctx, ev.Body, ev.ConversationName)
	if err != nil {
		c.stats.extractionFailures.Add(1)
		log.Warn("extraction failed", "outcome", OutcomeExtractionFailure, "error", err)
		task.Fail(err)
		return
	}

	listing, err := c.listings.Create(c.ctx, rec, ev.ConversationName, ev.Body)
	if err != nil {
		c.stats.persistenceErrors.Add(1)
		log.Warn("listing not saved", "outcome", OutcomePersistenceError, "error", err)
		task.Fail(err)
		return
	}

	c.stats.listingsCreated.Add(1)
	log.Info("listing created", "listing_id", listing.ID, "listing_type", listing.ListingType)
	c.publisher.PublishListingCreated(listing)
	task.Succeed(listing.ID)
}

// runMedia fetches concurrently with other media of the same task but
// uploads, attaches and publishes only once turn is granted.
func (c *Coordinator) runMedia(ev models.MessageEvent, task *correlation.Task, turn <-chan struct{}, log *slog.Logger) {
	media, err := ev.MediaFetcher.Fetch(c.ctx)
	if err != nil {
		c.stats.imagesDropped.Add(1)
		log.Warn("media fetch failed", "outcome", OutcomeMediaFailure, "error", err)
		return
	}

	listingID, err := task.Wait(c.ctx)
	if err != nil {
		c.stats.imagesDropped.Add(1)
		log.Info("media dropped", "outcome", OutcomeListingFailed, "error", err)
		return
	}

	select {
	case <-turn:
	case <-c.ctx.Done():
		return
	}

	url, err := c.media.Store(c.ctx, media)
	if err != nil {
		c.stats.imagesDropped.Add(1)
		log.Warn("media upload failed", "outcome", OutcomeMediaFailure, "listing_id", listingID, "error", err)
		return
	}

	img, err := c.listings.AttachImage(c.ctx, listingID, url)
	if err != nil {
		c.stats.imagesDropped.Add(1)
		c.stats.persistenceErrors.Add(1)
		log.Warn("image not saved", "outcome", OutcomePersistenceError, "listing_id", listingID, "error", err)
		return
	}

	c.stats.imagesAttached.Add(1)
	log.Info("image attached", "listing_id", listingID, "image_id", img.ID)
	c.publisher.PublishImageAdded(listingID, url)
}

// Wait blocks until every spawned task has finished or ctx ends.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PendingTasks counts listing tasks that have not settled.
func (c *Coordinator) PendingTasks() int {
	return c.table.Pending()
}

func (c *Coordinator) Stats() Stats {
	return Stats{
		Messages:             c.stats.messages.Load(),
		Ineligible:           c.stats.ineligible.Load(),
		ClassificationMisses: c.stats.classificationMisses.Load(),
		ListingsCreated:      c.stats.listingsCreated.Load(),
		ExtractionFailures:   c.stats.extractionFailures.Load(),
		PersistenceErrors:    c.stats.persistenceErrors.Load(),
		ImagesAttached:       c.stats.imagesAttached.Load(),
		ImagesDropped:        c.stats.imagesDropped.Load(),
		PendingTasks:         c.table.Pending(),
	}
}
