package workers

import (
	"context"
	"log/slog"
	"time"

	"wa_listings/ingest"
	"wa_listings/models"
)

type StoreStats interface {
	Stats(ctx context.Context) (*models.ListingStats, error)
}

type PipelineStats interface {
	Stats() ingest.Stats
}

type StatsPublisher interface {
	PublishStats(stats any)
}

// StatsReport is the stats_update payload.
type StatsReport struct {
	Store     *models.ListingStats `json:"store,omitempty"`
	Pipeline  ingest.Stats         `json:"pipeline"`
	Timestamp time.Time            `json:"timestamp"`
}

// StatsWorker logs pipeline counters next to store totals and broadcasts
// them. It runs whenever triggered.
type StatsWorker struct {
	store     StoreStats
	pipeline  PipelineStats
	publisher StatsPublisher
	triggerCh chan struct{}
	logger    *slog.Logger
}

func NewStatsWorker(store StoreStats, pipeline PipelineStats, publisher StatsPublisher, logger *slog.Logger) *StatsWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsWorker{
		store:     store,
		pipeline:  pipeline,
		publisher: publisher,
		triggerCh: make(chan struct{}, 1),
		logger:    logger.With("component", "stats_worker"),
	}
}

// Trigger causes the worker to run immediately
func (w *StatsWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

func (w *StatsWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stats worker stopping")
			return
		case <-w.triggerCh:
			w.Report(ctx)
		}
	}
}

// Report gathers one snapshot, logs it and publishes it. A store error is
// logged and the pipeline counters are still reported.
func (w *StatsWorker) Report(ctx context.Context) StatsReport {
	report := StatsReport{Pipeline: w.pipeline.Stats(), Timestamp: time.Now()}

	qctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	st, err := w.store.Stats(qctx)
	if err != nil {
		w.logger.Warn("store stats unavailable", "error", err)
	} else {
		report.Store = st
	}

	p := report.Pipeline
	attrs := []any{
		"messages", p.Messages,
		"listings_created", p.ListingsCreated,
		"extraction_failures", p.ExtractionFailures,
		"persistence_errors", p.PersistenceErrors,
		"images_attached", p.ImagesAttached,
		"images_dropped", p.ImagesDropped,
		"pending_tasks", p.PendingTasks,
	}
	if st != nil {
		attrs = append(attrs, "total_listings", st.TotalListings, "today_listings", st.TodayListings)
	}
	w.logger.Info("pipeline stats", attrs...)

	w.publisher.PublishStats(report)
	return report
}
