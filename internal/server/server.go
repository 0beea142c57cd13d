// Package server exposes the merge engine over HTTP: web pages or HTML
// snippets are rendered to PDF and merged into a single attachment.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/benedoc-inc/pdfmerge/core/merge"
	"github.com/benedoc-inc/pdfmerge/internal/metrics"
	"github.com/benedoc-inc/pdfmerge/internal/render"
	"github.com/benedoc-inc/pdfmerge/internal/store"
)

// ArtifactStore persists merged documents
type ArtifactStore interface {
	Put(ctx context.Context, filename string, pages int, data []byte) (*store.Artifact, error)
	Get(ctx context.Context, id string) (*store.Artifact, error)
	List(ctx context.Context, limit int) ([]store.Artifact, error)
	Delete(ctx context.Context, id string) error
}

// Config holds server configuration
type Config struct {
	Addr           string
	APIKey         string // empty disables the key check
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RateLimit      float64 // requests per second, 0 = unlimited
	Burst          int
	MaxBodyBytes   int64
	Concurrency    int // parallel renders per request
	RenderDefaults render.Settings
	SaveOptions    merge.SaveOptions
	Renderer       render.Renderer
	Store          ArtifactStore    // optional
	Metrics        *metrics.Metrics // nil creates a private set
	Logger         zerolog.Logger
}

// Server is the merge HTTP service
type Server struct {
	addr         string
	apiKey       string
	maxBodyBytes int64
	concurrency  int
	defaults     render.Settings
	saveOptions  merge.SaveOptions
	renderer     render.Renderer
	store        ArtifactStore
	limiter      *rate.Limiter
	metrics      *metrics.Metrics
	logger       zerolog.Logger

	server         *http.Server
	listener       net.Listener
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlight       sync.WaitGroup
}

// New creates a server
func New(cfg Config) (*Server, error) {
	if cfg.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 4 << 20
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewMetrics()
	}

	s := &Server{
		addr:         cfg.Addr,
		apiKey:       cfg.APIKey,
		maxBodyBytes: cfg.MaxBodyBytes,
		concurrency:  cfg.Concurrency,
		defaults:     cfg.RenderDefaults,
		saveOptions:  cfg.SaveOptions,
		renderer:     cfg.Renderer,
		store:        cfg.Store,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.With().Str("component", "server").Logger(),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Handler returns the routed handler with request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("POST /api/v1/merge", s.withGuards(s.handleMerge))
	if s.store != nil {
		mux.HandleFunc("GET /api/v1/artifacts", s.withGuards(s.handleListArtifacts))
		mux.HandleFunc("GET /api/v1/artifacts/{id}", s.withGuards(s.handleArtifact))
		mux.HandleFunc("DELETE /api/v1/artifacts/{id}", s.withGuards(s.handleDeleteArtifact))
	}
	return s.withRequestLog(mux)
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	if s.apiKey == "" {
		s.logger.Warn().Msg("no api key configured, merge endpoint is open")
	}
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("starting server")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("server error")
		}
	}()
	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop refuses new requests, waits for in-flight ones until ctx is done,
// then shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("shutting down server")

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("shutdown timeout reached, forcing close")
	}

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.shutdownMu.RLock()
	stopping := s.isShuttingDown
	s.shutdownMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if stopping {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"stopping"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
