// Package http provides the launchpad HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchpad/internal/artifact"
	"github.com/fyrsmithlabs/launchpad/internal/catalog"
	"github.com/fyrsmithlabs/launchpad/internal/logging"
	"github.com/fyrsmithlabs/launchpad/internal/orchestrator"
	"github.com/fyrsmithlabs/launchpad/internal/pipeline"
	"github.com/fyrsmithlabs/launchpad/internal/validation"
)

// Runner runs one deployment pipeline.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) (*orchestrator.Result, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, in pipeline.Input) (*orchestrator.Result, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, in pipeline.Input) (*orchestrator.Result, error) {
	return f(ctx, in)
}

// CatalogReader reads the deployment catalog.
type CatalogReader interface {
	Get(owner, name string) (*catalog.Record, error)
	List() []catalog.Record
	Pending() []catalog.Pending
}

// Checker validates a bundle without deploying it.
type Checker interface {
	Check(ctx context.Context, bundle *artifact.Bundle) (*validation.Report, error)
}

// Deps are the components the API serves. Catalog and Checker are optional;
// their routes answer 404 when unset.
type Deps struct {
	Runner  Runner
	Catalog CatalogReader
	Checker Checker
}

// Server provides HTTP endpoints for launchpad.
type Server struct {
	echo        *echo.Echo
	deps        Deps
	logger      *logging.Logger
	config      *Config
	deployments *tracker

	// runs outlive their request; Shutdown cancels and waits for them.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// Provider is used when a deployment request names none.
	Provider string

	// History bounds how many finished deployments are kept for lookup.
	History int
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *logging.Logger, cfg *Config) (*Server, error) {
	if deps.Runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9090,
		}
	}
	if cfg.Provider == "" {
		cfg.Provider = "local"
	}
	if cfg.History <= 0 {
		cfg.History = 100
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		echo:        e,
		deps:        deps,
		logger:      logger.Named("http"),
		config:      cfg,
		deployments: newTracker(cfg.History),
		baseCtx:     baseCtx,
		cancel:      cancel,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// requestLogger tags the request context with the request ID and logs each
// request once it completes.
func requestLogger(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := req.Context()
			// Client-supplied IDs are only trusted when well formed.
			if id := c.Response().Header().Get(echo.HeaderXRequestID); logging.ValidateID(id) == nil {
				ctx = logging.WithRequestID(ctx, id)
			}
			ctx = logging.WithLogger(ctx, logger)
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info(ctx, "http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/deployments", s.handleCreateDeployment)
	v1.GET("/deployments", s.handleListDeployments)
	v1.GET("/deployments/:id", s.handleGetDeployment)
	v1.GET("/catalog", s.handleListCatalog)
	v1.GET("/catalog/:owner/:name", s.handleGetCatalogRecord)
	v1.POST("/validations", s.handleValidate)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Use adds middleware to the router.
func (s *Server) Use(m ...echo.MiddlewareFunc) {
	s.echo.Use(m...)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Running int    `json:"running"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Running: s.deployments.running()})
}

// CatalogResponse is the response body for GET /api/v1/catalog.
type CatalogResponse struct {
	Records []catalog.Record  `json:"records"`
	Pending []catalog.Pending `json:"pending"`
}

func (s *Server) handleListCatalog(c echo.Context) error {
	if s.deps.Catalog == nil {
		return echo.NewHTTPError(http.StatusNotFound, "catalog is not configured")
	}
	return c.JSON(http.StatusOK, CatalogResponse{
		Records: s.deps.Catalog.List(),
		Pending: s.deps.Catalog.Pending(),
	})
}

func (s *Server) handleGetCatalogRecord(c echo.Context) error {
	if s.deps.Catalog == nil {
		return echo.NewHTTPError(http.StatusNotFound, "catalog is not configured")
	}
	rec, err := s.deps.Catalog.Get(c.Param("owner"), c.Param("name"))
	if errors.Is(err, catalog.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// ValidationRequest is the request body for POST /api/v1/validations.
type ValidationRequest struct {
	Bundle *artifact.Bundle `json:"bundle"`
}

func (s *Server) handleValidate(c echo.Context) error {
	if s.deps.Checker == nil {
		return echo.NewHTTPError(http.StatusNotFound, "validation is not configured")
	}
	var req ValidationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Bundle == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "bundle field is required")
	}

	ctx := c.Request().Context()
	report, err := s.deps.Checker.Check(ctx, req.Bundle)
	if err != nil {
		s.logger.Warn(ctx, "validation failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown stops accepting requests, cancels running deployments and waits
// for them to finish compensating.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	err := s.echo.Shutdown(ctx)

	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, fmt.Errorf("deployments still running: %w", ctx.Err()))
	}
	return err
}
