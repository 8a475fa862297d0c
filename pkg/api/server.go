package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/workshoplabs/workshop/pkg/blob"
	"github.com/workshoplabs/workshop/pkg/hub"
	"github.com/workshoplabs/workshop/pkg/log"
	"github.com/workshoplabs/workshop/pkg/metrics"
	"github.com/workshoplabs/workshop/pkg/store"
	"github.com/workshoplabs/workshop/pkg/tasks"
)

// Version is set via ldflags during build
var Version = "dev"

// Server is the HTTP surface over the hub, store, task engine and blob
// store. It owns routing and the error-to-status mapping; handlers raise
// typed failures and the boundary renders them.
type Server struct {
	store   store.Store
	hub     *hub.Hub
	tasks   *tasks.Engine
	blobs   *blob.Store
	verbose bool

	logger    zerolog.Logger
	startedAt time.Time
	http      *http.Server
}

// NewServer assembles the API server
func NewServer(st store.Store, h *hub.Hub, engine *tasks.Engine, blobs *blob.Store, verbose bool) *Server {
	return &Server{
		store:     st,
		hub:       h,
		tasks:     engine,
		blobs:     blobs,
		verbose:   verbose,
		logger:    log.WithComponent("api"),
		startedAt: time.Now(),
	}
}

// Router builds the chi router with all routes mounted
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(preflight)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Last-Event-ID"},
	}))
	r.Use(s.observe)

	// Channels
	r.Get("/", s.handleSubscribeAll)
	r.Head("/", s.handleSubscribeHead)
	r.Post("/ch/{ch}", s.handlePublish)
	r.Get("/ch/{ch}", s.handleSubscribe)
	r.Head("/ch/{ch}", s.handleSubscribeHead)
	r.Get("/ch/{ch}/history", s.handleChannelHistory)
	r.Get("/history", s.handleGlobalHistory)
	r.Get("/channels", s.handleChannels)

	// Tasks
	r.Post("/tasks", s.handleTaskCreate)
	r.Get("/tasks", s.handleTaskList)
	r.Get("/tasks/{id}", s.handleTaskGet)
	r.Post("/tasks/{id}/claim", s.handleTaskClaim)
	r.Post("/tasks/{id}/update", s.handleTaskUpdate)
	r.Post("/tasks/{id}/done", s.handleTaskDone)
	r.Post("/tasks/{id}/abandon", s.handleTaskAbandon)
	r.Post("/tasks/{id}/interrupt", s.handleTaskInterrupt)

	// Files. The wildcard keeps malformed digests containing slashes inside
	// this handler so they fail digest validation with 400, not a router 404.
	r.Post("/files", s.handleFileUpload)
	r.Get("/files/*", s.handleFileDownload)

	// Presence
	r.Post("/presence", s.handlePresenceBeat)
	r.Get("/presence", s.handlePresenceList)

	// Operational
	r.Get("/status", s.handleStatus)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}

// Start begins serving on addr and blocks until the listener fails
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
		// No write timeout: push streams stay open for arbitrary duration
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("http api listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop closes the acceptor; live push streams are dropped with it
func (s *Server) Stop() {
	if s.http == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		_ = s.http.Close()
	}
}
