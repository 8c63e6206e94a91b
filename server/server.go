// Package server exposes the HTTP surface: inbound webhooks from the chat
// session, the SSE event stream, and the dashboard query API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"wa_listings/models"
	"wa_listings/session"
)

type MessageHandler interface {
	HandleMessage(ev models.MessageEvent)
}

type ListingQuerier interface {
	List(ctx context.Context, filter models.ListingFilter) (*models.ListingPage, error)
	Stats(ctx context.Context) (*models.ListingStats, error)
}

type SessionTracker interface {
	Apply(u session.Update) error
	Snapshot() session.Snapshot
}

// Generator returns raw model output for one message.
type Generator interface {
	Generate(ctx context.Context, text, chatName string) (string, error)
}

type HealthReporter interface {
	PendingTasks() int
}

type Options struct {
	Addr        string
	CORSOrigins []string

	Messages MessageHandler
	Listings ListingQuerier
	Session  SessionTracker
	Events   http.Handler // SSE stream
	Health   HealthReporter

	// Extract, when set, serves POST /extract.
	Extract Generator

	// ImagesDir, when set, is served under ImagesPath.
	ImagesDir  string
	ImagesPath string

	// WebhookToken is the shared secret required on /webhook/* and /extract.
	WebhookToken string
	// MediaHosts lists the hosts media URLs may be downloaded from. Empty
	// means only inline media is accepted.
	MediaHosts []string

	MediaClient *http.Client
	Logger      *slog.Logger
}

type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")
	if opts.MediaClient == nil {
		opts.MediaClient = http.DefaultClient
	}

	policy := newMediaPolicy(opts.MediaHosts)
	h := &handlers{opts: opts, logger: logger, media: policy, mediaClient: policy.client(opts.MediaClient)}
	auth := requireToken(opts.WebhookToken)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", "X-Webhook-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.health)

	r.Route("/webhook", func(r chi.Router) {
		r.Use(auth)
		r.Post("/message", h.message)
		r.Post("/session", h.sessionUpdate)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/listings", h.listListings)
		r.Get("/stats", h.stats)
		r.Get("/session", h.sessionSnapshot)
		if opts.Events != nil {
			r.Method(http.MethodGet, "/events", opts.Events)
		}
	})

	if opts.Extract != nil {
		r.With(auth).Post("/extract", h.extract)
	}

	if opts.ImagesDir != "" {
		prefix := "/" + strings.Trim(opts.ImagesPath, "/")
		if prefix == "/" {
			prefix = "/images"
		}
		fs := http.StripPrefix(prefix+"/", http.FileServer(http.Dir(opts.ImagesDir)))
		r.Get(prefix+"/*", fs.ServeHTTP)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			// no WriteTimeout: /api/events streams indefinitely
		},
		handler: r,
		logger:  logger,
	}
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start blocks serving until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("starting http server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("could not start server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping http server")
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Debug("request finished",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
