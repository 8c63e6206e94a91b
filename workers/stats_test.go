package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"wa_listings/broadcast"
	"wa_listings/ingest"
	"wa_listings/models"
)

type fakeStore struct {
	stats *models.ListingStats
	err   error
}

func (f fakeStore) Stats(ctx context.Context) (*models.ListingStats, error) {
	return f.stats, f.err
}

type fakePipeline struct{ stats ingest.Stats }

func (f fakePipeline) Stats() ingest.Stats { return f.stats }

func TestStatsWorkerReport(t *testing.T) {
	rec := &broadcast.Recorder{}
	w := NewStatsWorker(
		fakeStore{stats: &models.ListingStats{TotalListings: 7}},
		fakePipeline{ingest.Stats{Messages: 12, ListingsCreated: 7}},
		broadcast.New(nil, rec),
		nil,
	)

	report := w.Report(context.Background())
	if report.Store == nil || report.Store.TotalListings != 7 {
		t.Fatalf("store stats = %+v", report.Store)
	}
	if report.Pipeline.Messages != 12 {
		t.Fatalf("pipeline = %+v", report.Pipeline)
	}

	evs := rec.Events()
	if len(evs) != 1 || evs[0].Name != models.EventStatsUpdate {
		t.Fatalf("events = %v", rec.Names())
	}
}

func TestStatsWorkerStoreError(t *testing.T) {
	rec := &broadcast.Recorder{}
	w := NewStatsWorker(fakeStore{err: errors.New("db down")}, fakePipeline{}, broadcast.New(nil, rec), nil)

	report := w.Report(context.Background())
	if report.Store != nil {
		t.Fatal("store stats should be omitted on error")
	}
	if len(rec.Events()) != 1 {
		t.Fatal("pipeline stats should still be published")
	}
}

func TestStatsWorkerTrigger(t *testing.T) {
	rec := &broadcast.Recorder{}
	w := NewStatsWorker(fakeStore{stats: &models.ListingStats{}}, fakePipeline{}, broadcast.New(nil, rec), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	w.Trigger()
	deadline := time.Now().Add(2 * time.Second)
	for len(rec.Events()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("triggered run never reported")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
