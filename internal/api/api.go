// Package api provides the HTTP control surface for GeoShift.
//
// It exposes RESTful endpoints for delivering geofence transitions and
// heartbeat ticks, answering prompts, reconfiguring fences, and inspecting
// engine status, the session ledger, and Prometheus metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BTreeMap/GeoShift/internal/engine"
	"github.com/BTreeMap/GeoShift/internal/models"
	"github.com/BTreeMap/GeoShift/internal/store"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// DefaultSessionListLimit bounds GET /sessions when no limit is given.
const DefaultSessionListLimit = 50

// PositionSink accepts position fixes pushed by the device's location stack.
type PositionSink interface {
	Report(pos models.Position)
}

// Opts holds configuration options for the API server.
type Opts struct {
	// Addr is the listen address (e.g. ":8080").
	Addr string
	// UserID scopes store reads issued by the API.
	UserID string
	// Positions receives fixes posted to /position. Optional; without it the
	// endpoint is not registered.
	Positions PositionSink
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithUserID sets the user whose sessions and fences the API serves.
func WithUserID(userID string) Option {
	return func(o *Opts) { o.UserID = userID }
}

// WithPositionSink enables POST /position, feeding fixes to the sink.
func WithPositionSink(sink PositionSink) Option {
	return func(o *Opts) { o.Positions = sink }
}

// Server is the GeoShift HTTP API server.
type Server struct {
	engine   *engine.Engine
	st       store.Store
	registry *prometheus.Registry
	opts     Opts
	httpSrv  *http.Server
}

// NewServer creates an API server around the engine and store. The registry
// backs GET /metrics; a nil registry serves the default gatherer.
func NewServer(eng *engine.Engine, st store.Store, registry *prometheus.Registry, opts ...Option) *Server {
	options := Opts{Addr: DefaultAddr, UserID: "default"}
	for _, opt := range opts {
		opt(&options)
	}
	return &Server{engine: eng, st: st, registry: registry, opts: options}
}

// Handler returns the server's routing table. Exposed so tests can drive the
// API through httptest without binding a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/transition", s.transitionHandler)
	mux.HandleFunc("/heartbeat", s.heartbeatHandler)
	mux.HandleFunc("/action", s.actionHandler)
	mux.HandleFunc("/fences", s.fencesHandler)
	mux.HandleFunc("/ready", s.readyHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/sessions", s.sessionsHandler)
	if s.opts.Positions != nil {
		mux.HandleFunc("/position", s.positionHandler)
	}

	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if s.registry != nil {
		gatherer = s.registry
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Run starts the HTTP server and blocks until it is shut down.
func (s *Server) Run() error {
	s.httpSrv = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("API server listening", "addr", s.opts.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	slog.Info("API server shutting down")
	return s.httpSrv.Shutdown(ctx)
}
