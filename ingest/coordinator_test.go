package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"wa_listings/broadcast"
	"wa_listings/correlation"
	"wa_listings/extraction"
	"wa_listings/models"
	"wa_listings/services"
)

const group = "Real Estate Listings"

type fakeExtractor struct {
	calls atomic.Int64
	fn    func(ctx context.Context, text, chatName string) (*models.ListingRecord, error)
}

func (f *fakeExtractor) Extract(ctx context.Context, text, chatName string) (*models.ListingRecord, error) {
	f.calls.Add(1)
	return f.fn(ctx, text, chatName)
}

func rentRecord(_ context.Context, text, chat string) (*models.ListingRecord, error) {
	bhk := 2
	loc := "Downtown"
	rent := 25000.0
	return &models.ListingRecord{
		BHK:          &bhk,
		Location:     &loc,
		RentPerMonth: &rent,
		ListingType:  models.ListingTypeRent,
	}, nil
}

type fakeListings struct {
	mu        sync.Mutex
	listings  []*models.Listing
	images    []*models.Image
	createErr error
}

func (f *fakeListings) Create(ctx context.Context, rec *models.ListingRecord, chatGroup, body string) (*models.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	l := models.NewListing(rec, chatGroup, body)
	l.ID = uuid.New()
	l.CreatedAt = time.Now()
	f.listings = append(f.listings, l)
	return l, nil
}

func (f *fakeListings) AttachImage(ctx context.Context, listingID uuid.UUID, url string) (*models.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img := &models.Image{ID: uuid.New(), ListingID: listingID, URL: url}
	f.images = append(f.images, img)
	return img, nil
}

func (f *fakeListings) snapshot() ([]*models.Listing, []*models.Image) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.Listing(nil), f.listings...), append([]*models.Image(nil), f.images...)
}

// fakeMedia stores instantly unless a per-filename delay is set.
type fakeMedia struct {
	delay map[string]time.Duration
}

func (f fakeMedia) Store(ctx context.Context, m *models.Media) (string, error) {
	if d := f.delay[m.Filename]; d > 0 {
		time.Sleep(d)
	}
	return "/images/" + m.Filename, nil
}

type harness struct {
	coord     *Coordinator
	extractor *fakeExtractor
	listings  *fakeListings
	events    *broadcast.Recorder
}

func newHarness(fn func(ctx context.Context, text, chatName string) (*models.ListingRecord, error), opts ...func(*Deps)) *harness {
	h := &harness{
		extractor: &fakeExtractor{fn: fn},
		listings:  &fakeListings{},
		events:    &broadcast.Recorder{},
	}
	deps := Deps{
		Eligibility: services.NewEligibilityFilter([]string{group}, []string{"property", "real estate"}),
		Classifier:  services.NewListingClassifier(),
		Extractor:   h.extractor,
		Listings:    h.listings,
		Media:       fakeMedia{},
		Publisher:   broadcast.New(nil, h.events),
		Table:       correlation.NewMemoryTable(),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.coord = NewCoordinator(deps)
	return h
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.coord.Wait(ctx); err != nil {
		t.Fatalf("coordinator did not drain: %v", err)
	}
}

func textMessage(conv, body string) models.MessageEvent {
	return models.MessageEvent{ConversationID: conv, IsGroup: true, ConversationName: group, Body: body}
}

func mediaMessage(conv, filename string) models.MessageEvent {
	return models.MessageEvent{
		ConversationID:   conv,
		IsGroup:          true,
		ConversationName: group,
		HasMedia:         true,
		MediaFetcher: models.MediaFetcherFunc(func(ctx context.Context) (*models.Media, error) {
			return &models.Media{MimeType: "image/jpeg", Filename: filename, Data: []byte(filename)}, nil
		}),
	}
}

// gate blocks extraction until released.
type gate struct {
	entered chan string
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan string, 8), release: make(chan struct{})}
}

func (g *gate) extract(ctx context.Context, text, chat string) (*models.ListingRecord, error) {
	g.entered <- text
	<-g.release
	return rentRecord(ctx, text, chat)
}

func TestScenarioListingCreated(t *testing.T) {
	h := newHarness(rentRecord)

	h.coord.HandleMessage(textMessage("c1", "2 BHK for rent in Downtown, 25000/month"))
	h.wait(t)

	listings, _ := h.listings.snapshot()
	if len(listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(listings))
	}
	l := listings[0]
	if l.RentPerMonth == nil || *l.RentPerMonth != 25000 || l.Price != nil {
		t.Fatalf("unexpected amounts: %+v", l)
	}
	if l.ChatGroup != group {
		t.Fatalf("chat group = %s", l.ChatGroup)
	}

	evs := h.events.Events()
	if len(evs) != 1 || evs[0].Name != models.EventNewListing {
		t.Fatalf("events = %v", h.events.Names())
	}
	payload := evs[0].Data.(models.ListingCreatedPayload)
	if payload.ID != l.ID {
		t.Fatalf("payload id = %s, want %s", payload.ID, l.ID)
	}
}

func TestScenarioMediaWaitsForPendingListing(t *testing.T) {
	g := newGate()
	h := newHarness(g.extract)

	h.coord.HandleMessage(textMessage("c1", "2 BHK for rent in Downtown, 25000/month"))
	<-g.entered
	h.coord.HandleMessage(mediaMessage("c1", "flat.jpg"))

	time.Sleep(20 * time.Millisecond)
	if _, images := h.listings.snapshot(); len(images) != 0 {
		t.Fatal("image attached before the listing settled")
	}

	close(g.release)
	h.wait(t)

	listings, images := h.listings.snapshot()
	if len(listings) != 1 || len(images) != 1 {
		t.Fatalf("listings=%d images=%d", len(listings), len(images))
	}
	if images[0].ListingID != listings[0].ID {
		t.Fatal("image attached to the wrong listing")
	}
	if got := strings.Join(h.events.Names(), ","); got != "new_listing,new_image" {
		t.Fatalf("events = %s", got)
	}
}

func TestScenarioIneligibleConversation(t *testing.T) {
	h := newHarness(rentRecord)

	ev := textMessage("c9", "2 BHK for rent")
	ev.ConversationName = "Family Chat"
	h.coord.HandleMessage(ev)

	media := mediaMessage("c9", "x.jpg")
	media.ConversationName = "Family Chat"
	h.coord.HandleMessage(media)
	h.wait(t)

	if h.extractor.calls.Load() != 0 {
		t.Fatal("extractor called for ineligible conversation")
	}
	if listings, images := h.listings.snapshot(); len(listings)+len(images) != 0 {
		t.Fatal("store touched for ineligible conversation")
	}
	if len(h.events.Events()) != 0 {
		t.Fatalf("unexpected events %v", h.events.Names())
	}
	if st := h.coord.Stats(); st.Ineligible != 2 {
		t.Fatalf("ineligible = %d", st.Ineligible)
	}
}

func TestDirectMessageIgnored(t *testing.T) {
	h := newHarness(rentRecord)
	ev := textMessage("dm", "2 BHK for rent")
	ev.IsGroup = false
	h.coord.HandleMessage(ev)
	h.wait(t)

	if h.extractor.calls.Load() != 0 {
		t.Fatal("direct chats are never eligible")
	}
}

func TestScenarioExtractionFailureDropsMedia(t *testing.T) {
	g := newGate()
	h := newHarness(func(ctx context.Context, text, chat string) (*models.ListingRecord, error) {
		g.entered <- text
		<-g.release
		return nil, extraction.ErrExtractionFailed
	})

	h.coord.HandleMessage(textMessage("c1", "2 BHK for rent"))
	<-g.entered
	h.coord.HandleMessage(mediaMessage("c1", "flat.jpg"))
	close(g.release)
	h.wait(t)

	listings, images := h.listings.snapshot()
	if len(listings) != 0 || len(images) != 0 {
		t.Fatalf("listings=%d images=%d", len(listings), len(images))
	}
	if len(h.events.Events()) != 0 {
		t.Fatalf("unexpected events %v", h.events.Names())
	}

	st := h.coord.Stats()
	if st.ExtractionFailures != 1 || st.ImagesDropped != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}

	// the failed entry stays addressable, so later media is dropped too
	h.coord.HandleMessage(mediaMessage("c1", "late.jpg"))
	h.wait(t)
	if _, images := h.listings.snapshot(); len(images) != 0 {
		t.Fatal("media attached after a failed listing")
	}
}

func TestPersistenceErrorSettlesFailure(t *testing.T) {
	h := newHarness(rentRecord)
	h.listings.createErr = errors.New("db down")

	h.coord.HandleMessage(textMessage("c1", "2 BHK for rent"))
	h.coord.HandleMessage(mediaMessage("c1", "flat.jpg"))
	h.wait(t)

	if _, images := h.listings.snapshot(); len(images) != 0 {
		t.Fatal("image created without a listing")
	}
	if st := h.coord.Stats(); st.PersistenceErrors != 1 || st.ImagesDropped != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestMediaWithoutListingIsDropped(t *testing.T) {
	h := newHarness(rentRecord)

	fetched := false
	ev := mediaMessage("c1", "orphan.jpg")
	ev.MediaFetcher = models.MediaFetcherFunc(func(ctx context.Context) (*models.Media, error) {
		fetched = true
		return &models.Media{Data: []byte("x")}, nil
	})
	h.coord.HandleMessage(ev)
	h.wait(t)

	if fetched {
		t.Fatal("media fetched with no listing to attach to")
	}
	if _, images := h.listings.snapshot(); len(images) != 0 {
		t.Fatal("orphan image persisted")
	}
}

func TestNonListingTextNeverExtracted(t *testing.T) {
	h := newHarness(rentRecord)

	for _, body := range []string{"", "good morning all", "Call me for details", "3 bedroom villa for sale"} {
		h.coord.HandleMessage(textMessage("c1", body))
	}
	h.wait(t)

	if h.extractor.calls.Load() != 0 {
		t.Fatalf("extractor called %d times", h.extractor.calls.Load())
	}
	if st := h.coord.Stats(); st.ClassificationMisses != 4 {
		t.Fatalf("classification misses = %d", st.ClassificationMisses)
	}
}

func TestSecondListingWinsCorrelation(t *testing.T) {
	g := newGate()
	h := newHarness(g.extract)

	h.coord.HandleMessage(textMessage("c1", "first: 1 BHK for rent"))
	<-g.entered
	h.coord.HandleMessage(textMessage("c1", "second: 3 BHK for rent"))
	<-g.entered
	h.coord.HandleMessage(mediaMessage("c1", "photo.jpg"))

	close(g.release)
	h.wait(t)

	listings, images := h.listings.snapshot()
	if len(listings) != 2 || len(images) != 1 {
		t.Fatalf("listings=%d images=%d", len(listings), len(images))
	}

	var second *models.Listing
	for _, l := range listings {
		if strings.HasPrefix(l.Description, "second") {
			second = l
		}
	}
	if images[0].ListingID != second.ID {
		t.Fatal("media should correlate with the most recent registration")
	}
}

func TestListingWithOwnMedia(t *testing.T) {
	h := newHarness(rentRecord)

	ev := mediaMessage("c1", "own.jpg")
	ev.Body = "2 BHK for rent, photo attached"
	h.coord.HandleMessage(ev)
	h.wait(t)

	listings, images := h.listings.snapshot()
	if len(listings) != 1 || len(images) != 1 {
		t.Fatalf("listings=%d images=%d", len(listings), len(images))
	}
	if images[0].ListingID != listings[0].ID {
		t.Fatal("captioned media should attach to its own listing")
	}
	if got := strings.Join(h.events.Names(), ","); got != "new_listing,new_image" {
		t.Fatalf("events = %s", got)
	}
}

func TestConversationsAreIndependent(t *testing.T) {
	h := newHarness(rentRecord)

	h.coord.HandleMessage(textMessage("a", "2 BHK for rent"))
	h.wait(t)
	h.coord.HandleMessage(mediaMessage("b", "other.jpg"))
	h.wait(t)

	if _, images := h.listings.snapshot(); len(images) != 0 {
		t.Fatal("media crossed conversations")
	}
}

func TestPendingTasks(t *testing.T) {
	g := newGate()
	h := newHarness(g.extract)

	h.coord.HandleMessage(textMessage("c1", "2 BHK for rent"))
	<-g.entered
	if n := h.coord.PendingTasks(); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}

	close(g.release)
	h.wait(t)
	if n := h.coord.PendingTasks(); n != 0 {
		t.Fatalf("pending = %d, want 0", n)
	}
}

func TestImagesAttachInArrivalOrder(t *testing.T) {
	g := newGate()
	h := newHarness(g.extract, func(d *Deps) {
		d.Media = fakeMedia{delay: map[string]time.Duration{"first.jpg": 50 * time.Millisecond}}
	})

	h.coord.HandleMessage(textMessage("c1", "2 BHK for rent"))
	<-g.entered
	h.coord.HandleMessage(mediaMessage("c1", "first.jpg"))
	h.coord.HandleMessage(mediaMessage("c1", "second.jpg"))
	h.coord.HandleMessage(mediaMessage("c1", "third.jpg"))
	close(g.release)
	h.wait(t)

	_, images := h.listings.snapshot()
	if len(images) != 3 {
		t.Fatalf("images = %d, want 3", len(images))
	}
	var got []string
	for _, img := range images {
		got = append(got, strings.TrimPrefix(img.URL, "/images/"))
	}
	if strings.Join(got, ",") != "first.jpg,second.jpg,third.jpg" {
		t.Fatalf("attach order = %v", got)
	}

	var urls []string
	for _, ev := range h.events.Events() {
		if p, ok := ev.Data.(models.ImageAddedPayload); ok {
			urls = append(urls, strings.TrimPrefix(p.ImageURL, "/images/"))
		}
	}
	if strings.Join(urls, ",") != "first.jpg,second.jpg,third.jpg" {
		t.Fatalf("new_image order = %v", urls)
	}
}

func TestFailedMediaDoesNotBlockLaterImages(t *testing.T) {
	h := newHarness(rentRecord)

	h.coord.HandleMessage(textMessage("c1", "2 BHK for rent"))
	broken := mediaMessage("c1", "broken.jpg")
	broken.MediaFetcher = models.MediaFetcherFunc(func(ctx context.Context) (*models.Media, error) {
		return nil, errors.New("download failed")
	})
	h.coord.HandleMessage(broken)
	h.coord.HandleMessage(mediaMessage("c1", "ok.jpg"))
	h.wait(t)

	if _, images := h.listings.snapshot(); len(images) != 1 {
		t.Fatalf("images = %d, want 1", len(images))
	}
	if st := h.coord.Stats(); st.ImagesDropped != 1 || st.ImagesAttached != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestMediaWithoutFetcherIsCounted(t *testing.T) {
	h := newHarness(rentRecord)

	h.coord.HandleMessage(textMessage("c1", "2 BHK for rent"))
	ev := mediaMessage("c1", "x.jpg")
	ev.MediaFetcher = nil
	h.coord.HandleMessage(ev)
	h.wait(t)

	if _, images := h.listings.snapshot(); len(images) != 0 {
		t.Fatal("image persisted without a fetcher")
	}
	if st := h.coord.Stats(); st.ImagesDropped != 1 {
		t.Fatalf("images dropped = %d, want 1", st.ImagesDropped)
	}
}
