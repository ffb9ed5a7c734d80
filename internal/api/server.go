// Package api is the admin HTTP surface of the notifier: trigger a run,
// read run summaries, maintain weather settings and report health.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sitewatch/internal/orchestrator"
	"sitewatch/internal/types"
)

// RunTrigger executes a batch.
type RunTrigger interface {
	Run(ctx context.Context, opts orchestrator.RunOptions) (*types.RunSummary, error)
}

// RunReader loads stored run summaries.
type RunReader interface {
	GetRunSummary(ctx context.Context, id string) (*types.RunSummary, error)
}

// ThresholdWriter stores weather settings for a jobsite or user.
type ThresholdWriter interface {
	UpsertThresholds(ctx context.Context, targetID string, cfg types.ThresholdConfig) error
}

// Deps are the collaborators of a Server. DryRuns and Probes are optional.
type Deps struct {
	Runner     RunTrigger
	Runs       RunReader
	DryRuns    RunReader
	Thresholds ThresholdWriter
	Probes     []HealthProbe
}

// Server holds the router and its handlers' dependencies.
type Server struct {
	runner     RunTrigger
	runs       RunReader
	dryRuns    RunReader
	thresholds ThresholdWriter
	probes     []HealthProbe

	adminKeyHash []byte
	version      string
	logger       *slog.Logger
	router       *chi.Mux
}

// NewServer builds a Server with its routes mounted.
func NewServer(deps Deps, adminKeyHash, version string, logger *slog.Logger) (*Server, error) {
	if deps.Runner == nil || deps.Runs == nil || deps.Thresholds == nil {
		return nil, fmt.Errorf("api: runner, run reader and threshold writer are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		runner:       deps.Runner,
		runs:         deps.Runs,
		dryRuns:      deps.DryRuns,
		thresholds:   deps.Thresholds,
		probes:       deps.Probes,
		adminKeyHash: []byte(adminKeyHash),
		version:      version,
		logger:       logger,
		router:       chi.NewRouter(),
	}
	s.mountRoutes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) mountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.CleanPath)
	s.router.Use(RequestLogger(s.logger))

	s.router.Get("/health", s.HandleHealth)

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(RequireAdminKey(s.adminKeyHash))
		r.Post("/runs", s.handleTriggerRun)
		r.Get("/runs/{runID}", s.handleGetRun)
		r.Put("/thresholds/{targetID}", s.handlePutThresholds)
	})
}
