// Package server provides the HTTP server setup and wiring.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-co-op/gocron"

	auctionTransport "github.com/pendergraft/ntunames/internal/auction/transport"
	"github.com/pendergraft/ntunames/internal/auth"
	"github.com/pendergraft/ntunames/internal/config"
	"github.com/pendergraft/ntunames/internal/middleware/logging"
	"github.com/pendergraft/ntunames/internal/middleware/ratelimit"
	"github.com/pendergraft/ntunames/internal/middleware/realip"
	"github.com/pendergraft/ntunames/internal/middleware/security"
	"github.com/pendergraft/ntunames/internal/observability/metrics"
)

// Node is the subset of the node connection the readiness check uses.
type Node interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// Refresher refreshes a cached listing.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// DomainCache is the registered-domain cache served by the listing route.
type DomainCache interface {
	auctionTransport.DomainLister
	Refresher
}

// Deps are the services the server exposes.
type Deps struct {
	Auction auctionTransport.Service
	// Domains is optional; without it the listing reads through Auction.
	Domains DomainCache
	// Node is optional; without it /readyz only reports the process is up.
	Node Node
}

// Server is the HTTP server
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	router *chi.Mux

	auctionSvc auctionTransport.Service
	domains    DomainCache
	node       Node
	jobs       *gocron.Scheduler
}

// New creates a new server
func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		router:     chi.NewRouter(),
		auctionSvc: deps.Auction,
		domains:    deps.Domains,
		node:       deps.Node,
		jobs:       gocron.NewScheduler(time.UTC),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// MetricsHandler returns the metrics HTTP handler for separate metrics server
func (s *Server) MetricsHandler() http.Handler {
	return metrics.Handler()
}

// StartJobs schedules the periodic cache refresh. It is a no-op without a
// cache.
func (s *Server) StartJobs() error {
	if s.domains == nil || s.cfg.Cache.RefreshSeconds <= 0 {
		return nil
	}
	if _, err := s.jobs.Every(s.cfg.Cache.RefreshSeconds).Seconds().SingletonMode().Do(s.refreshDomains); err != nil {
		return err
	}
	s.jobs.StartAsync()
	s.logger.Info("cache refresh scheduled", "interval_seconds", s.cfg.Cache.RefreshSeconds)
	return nil
}

// StopJobs stops background jobs.
func (s *Server) StopJobs() {
	s.jobs.Stop()
}

func (s *Server) refreshDomains() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.Server.RequestTimeout)*time.Second)
	defer cancel()

	if err := s.domains.Refresh(ctx); err != nil {
		s.logger.Warn("domain cache refresh failed", "error", err)
	}
}

func (s *Server) setupMiddleware() {
	// Real IP first so the limiter and the logger see the client address.
	s.router.Use(realip.Middleware(realip.Config{
		TrustProxy:     s.cfg.Proxy.TrustProxy,
		TrustedProxies: s.cfg.Proxy.TrustedProxies,
	}))

	// Scanner paths and writes are rejected before they cost rate-limit tokens.
	s.router.Use(security.Middleware(security.Config{
		FilterEnabled: s.cfg.Security.FilterEnabled,
		ReadOnly:      true,
	}))

	s.router.Use(ratelimit.Middleware(ratelimit.Config{
		Enabled:        s.cfg.RateLimit.Enabled,
		RequestsPerMin: s.cfg.RateLimit.RequestsPerMin,
		BurstSize:      s.cfg.RateLimit.BurstSize,
		CleanupMinutes: s.cfg.RateLimit.CleanupMinutes,
		Costs:          routeCosts,
	}))

	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestTimeout(time.Duration(s.cfg.Server.RequestTimeout) * time.Second))
	s.router.Use(middleware.Compress(5))
	s.router.Use(cors)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	if s.cfg.Metrics.Enabled {
		s.router.Handle("/metrics", metrics.Handler())
	}

	var lister auctionTransport.DomainLister
	if s.domains != nil {
		lister = s.domains
	}
	auctionHandler := auctionTransport.NewHandler(s.auctionSvc, lister)

	journalKeys := auth.NewKeySet(s.cfg.Auth.JournalKeys...)
	s.router.Route("/api/v1", func(r chi.Router) {
		auctionHandler.RegisterRoutes(r, auth.Middleware(journalKeys, writeError))
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports whether the node answers and which chain it is on.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.node == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	id, err := s.node.ChainID(ctx)
	if err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "NODE_UNAVAILABLE", "Node is not reachable")
		return
	}

	chainID := id.Int64()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"chainId":         chainID,
		"expectedChainId": s.cfg.Chain.ChainID,
		"wrongNetwork":    chainID != s.cfg.Chain.ChainID,
	})
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
