// Package httpapi serves the operator HTTP API of a node.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"semchord/internal/logger"
	"semchord/internal/query"
	"semchord/internal/ring"
	"semchord/internal/service"
)

// Ring is the part of a node the API drives.
type Ring interface {
	Self() ring.NodeRef
	References() *ring.References
	Insert(ctx context.Context, e service.Entry) error
	Remove(ctx context.Context, record service.Descriptor) error
	Lookup(ctx context.Context, d service.Descriptor, c service.Constraints, required int) (*query.Result, error)
	DumpEntries() string
}

// Deps are the handlers' collaborators.
type Deps struct {
	Node      Ring
	Logger    logger.Logger
	StartTime time.Time
	// AliveMembers reports how many ring members the failure detector
	// considers alive. Nil when gossip is disabled.
	AliveMembers func() int
}

// Server wraps the HTTP server and its dependencies.
type Server struct {
	http   *http.Server
	logger logger.Logger
}

// NewRouter builds the chi router with every route registered.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	if d.StartTime.IsZero() {
		d.StartTime = time.Now()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(accessLog(d.Logger))

	r.Get("/healthz", healthz(d))
	r.Get("/entries", entries(d))
	r.Get("/ring", ringView(d))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/services", insertService(d))
	r.Delete("/services", removeService(d))
	r.Post("/lookup", lookup(d))
	return r
}

// New builds the HTTP server listening on addr.
func New(addr string, d Deps) *Server {
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	s := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return &Server{http: s, logger: d.Logger}
}

// Start runs the HTTP server (blocks until error or shutdown).
func (s *Server) Start() error {
	s.logger.Infof("HTTP server listening on %s", s.http.Addr)
	err := s.http.ListenAndServe()
	// http.ErrServerClosed is expected on graceful shutdown.
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server with the provided context deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down")
	return s.http.Shutdown(ctx)
}
