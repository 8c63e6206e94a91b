package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wa_listings/broadcast"
	"wa_listings/config"
	"wa_listings/correlation"
	"wa_listings/extraction"
	"wa_listings/httputil"
	"wa_listings/ingest"
	"wa_listings/logging"
	"wa_listings/scheduler"
	"wa_listings/server"
	"wa_listings/services"
	"wa_listings/session"
	"wa_listings/storage"
	"wa_listings/workers"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level := logging.ParseLevel(cfg.LogLevel)
	var out io.Writer = os.Stdout
	logFile, err := logging.OpenRotating(cfg.LogFile)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
		out = io.MultiWriter(os.Stdout, logFile)
	}

	var extra []slog.Handler
	if cfg.Fluent.Enabled {
		fc, err := logging.NewFluentClient(logging.FluentConfig{
			Host:      cfg.Fluent.Host,
			Port:      cfg.Fluent.Port,
			TagPrefix: cfg.Fluent.Tag,
		})
		if err != nil {
			log.Printf("Warning: fluent forwarding disabled: %v", err)
		} else {
			defer fc.Close()
			extra = append(extra, logging.NewFluentHandler(fc, level))
		}
	}

	logger := logging.New(logging.Options{
		Level:   level,
		Writer:  out,
		NoColor: logFile != nil,
		Extra:   extra,
	})
	logger.Info("starting wa_listings", "addr", cfg.HTTP.Addr, "db", cfg.Database.Driver, "media", cfg.Media.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open listing store", "error", err)
		os.Exit(1)
	}

	clients := httputil.NewClients(cfg.Extraction.Timeout)

	var gemini *extraction.Gemini
	if cfg.Extraction.GeminiAPIKey != "" {
		gemini, err = extraction.NewGemini(ctx, extraction.GeminiConfig{
			APIKey:     cfg.Extraction.GeminiAPIKey,
			Model:      cfg.Extraction.GeminiModel,
			HTTPClient: clients.Extraction,
		})
		if err != nil {
			logger.Error("failed to create gemini client", "error", err)
			store.Close()
			os.Exit(1)
		}
	}

	var extractor extraction.Extractor
	switch {
	case cfg.Extraction.URL != "":
		extractor = extraction.NewClient(cfg.Extraction.URL, clients.Extraction)
		logger.Info("using remote extraction", "url", cfg.Extraction.URL)
	case gemini != nil:
		extractor = gemini
		logger.Info("using in-process extraction", "model", cfg.Extraction.GeminiModel)
	default:
		logger.Error("no extraction backend: set EXTRACT_URL or GOOGLE_API_KEY")
		store.Close()
		os.Exit(1)
	}

	uploader, imagesDir, err := openUploader(ctx, cfg)
	if err != nil {
		logger.Error("failed to set up image hosting", "error", err)
		store.Close()
		os.Exit(1)
	}

	hub := broadcast.NewHub(logger)
	sinks := []broadcast.Sink{hub}
	var amqpSink *broadcast.AMQPSink
	if cfg.AMQP.URL != "" {
		amqpSink, err = broadcast.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if err != nil {
			logger.Warn("amqp fan-out disabled", "error", err)
		} else {
			sinks = append(sinks, amqpSink)
			logger.Info("amqp fan-out enabled", "exchange", cfg.AMQP.Exchange)
		}
	}
	bc := broadcast.New(logger, sinks...)

	listingService := services.NewListingService(store)
	mediaService := services.NewMediaService(uploader)

	coordinator := ingest.NewCoordinator(ingest.Deps{
		Eligibility: services.NewEligibilityFilter(cfg.Groups.AllowList, cfg.Groups.Keywords),
		Classifier:  services.NewListingClassifier(),
		Extractor:   extractor,
		Listings:    listingService,
		Media:       mediaService,
		Publisher:   bc,
		Table:       correlation.NewMemoryTable(),
		Logger:      logger,
	})
	logger.Info("monitoring groups", "allow_list", cfg.Groups.AllowList, "keywords", cfg.Groups.Keywords)

	tracker := session.NewTracker(bc, logger)

	var generator server.Generator
	if gemini != nil {
		generator = gemini
	}

	srv := server.New(server.Options{
		Addr:        cfg.HTTP.Addr,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Messages:    coordinator,
		Listings:    listingService,
		Session:     tracker,
		Events:      hub,
		Health:      coordinator,
		Extract:     generator,
		ImagesDir:   imagesDir,
		ImagesPath:  imagesPath(cfg.Media.BaseURL),
		MediaClient: clients.Media,
		Logger:      logger,

		WebhookToken: cfg.HTTP.WebhookToken,
		MediaHosts:   cfg.Media.AllowedHosts,
	})

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	statsWorker := workers.NewStatsWorker(listingService, coordinator, bc, logger)
	go statsWorker.Run(workerCtx)

	sched := scheduler.New(logger)
	if err := sched.Register("stats", cfg.StatsCron, statsWorker); err != nil {
		logger.Error("failed to schedule stats worker", "error", err)
	}
	sched.Start()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	logger.Info("daemon running, press Ctrl+C to stop")
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server stopped", "error", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// end SSE streams first so Shutdown does not wait on them
	hub.Close()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	<-sched.Stop().Done()
	cancelWorkers()

	if err := coordinator.Wait(shutdownCtx); err != nil {
		logger.Warn("in-flight tasks abandoned", "pending_tasks", coordinator.PendingTasks(), "error", err)
	}

	if amqpSink != nil {
		if err := amqpSink.Close(); err != nil {
			logger.Warn("amqp close", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Warn("store close", "error", err)
	}
	logger.Info("goodbye")
}

func openStore(ctx context.Context, cfg *config.Config) (storage.ListingStore, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		store, err := storage.NewSQLiteStore(cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		slog.Info("sqlite database", "path", cfg.Database.SQLitePath)
		return store, nil
	case "postgres", "":
		if cfg.Database.URL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
		store, err := storage.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		slog.Info("connected to postgres", "url", maskConnectionString(cfg.Database.URL))
		return store, nil
	default:
		return nil, fmt.Errorf("unknown DATABASE_DRIVER %q", cfg.Database.Driver)
	}
}

// openUploader returns the image host and, for disk hosting, the directory
// the HTTP server should expose.
func openUploader(ctx context.Context, cfg *config.Config) (services.Uploader, string, error) {
	switch cfg.Media.Backend {
	case "s3":
		s3 := cfg.Media.S3
		u, err := storage.NewS3Uploader(ctx, storage.S3Config{
			Bucket:          s3.Bucket,
			Region:          s3.Region,
			Endpoint:        s3.Endpoint,
			AccessKeyID:     s3.AccessKeyID,
			SecretAccessKey: s3.SecretAccessKey,
		})
		return u, "", err
	case "disk", "":
		u, err := storage.NewDiskUploader(cfg.Media.Dir, cfg.Media.BaseURL)
		if err != nil {
			return nil, "", err
		}
		return u, u.Dir(), nil
	default:
		return nil, "", fmt.Errorf("unknown MEDIA_BACKEND %q", cfg.Media.Backend)
	}
}

// imagesPath is the route prefix for disk images, taken from the public base URL.
func imagesPath(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Path == "" {
		return "/images"
	}
	return u.Path
}

// maskConnectionString masks password in connection string for logging
func maskConnectionString(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return connStr
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}
