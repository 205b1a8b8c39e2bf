package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/papercomputeco/converse/api/worker"
	"github.com/papercomputeco/converse/pkg/catalog"
	"github.com/papercomputeco/converse/pkg/converse"
	"github.com/papercomputeco/converse/pkg/metrics"
)

// Backends holds the converse clients behind each route group. Either may be
// nil, in which case its routes answer 503.
type Backends struct {
	// SDK serves /converse and /structured routes.
	SDK converse.Client

	// REST serves /bedrock routes.
	REST converse.Client
}

// Catalog lists and describes foundation models.
type Catalog interface {
	List(ctx context.Context, f catalog.Filter) ([]catalog.Model, error)
	Get(ctx context.Context, id string) (*catalog.Model, error)
}

// Server is the converse HTTP service.
type Server struct {
	config   Config
	backends Backends
	catalog  Catalog
	pool     *worker.Pool
	logger   *slog.Logger
	app      *fiber.App
}

// NewServer creates a new API server.
// The pool and catalog are optional: without a pool no invocation events are
// published, without a catalog the model routes answer 503.
func NewServer(config Config, backends Backends, models Catalog, pool *worker.Pool, logger *slog.Logger) (*Server, error) {
	if backends.SDK == nil && backends.REST == nil {
		return nil, errors.New("api: at least one backend is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:   config,
		backends: backends,
		catalog:  models,
		pool:     pool,
		logger:   logger,
		app:      app,
	}

	app.Use(metrics.Middleware())

	app.Get("/ping", s.handlePing)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/converse", s.handleConverse)
	app.Get("/converse/stream", s.handleConverseStream)
	app.Get("/converse/multi-turn", s.handleMultiTurn)
	app.Get("/structured/course", s.handleStructuredCourse)
	app.Get("/structured/driver", s.handleStructuredDriver)

	app.Get("/models", s.handleListModels)
	app.Get("/model", s.handleGetModel)

	bedrock := app.Group("/bedrock")
	bedrock.Post("/generate", s.handleGenerate)
	bedrock.Post("/stream", s.handleGenerateStream)
	bedrock.Get("/multi-turn", s.handleRESTMultiTurn)
	bedrock.Get("/structured", s.handleRESTStructured)

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting converse API server",
		"listen", s.config.ListenAddr,
		"model", s.config.Request.Model,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server. Streams in flight are
// allowed to finish.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
