// Package http provides the HTTP API for tracelens.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/tracelens/internal/logging"
	"github.com/fyrsmithlabs/tracelens/internal/persistence"
	"github.com/fyrsmithlabs/tracelens/internal/secrets"
	"github.com/fyrsmithlabs/tracelens/internal/troubleshoot"
	"github.com/fyrsmithlabs/tracelens/internal/vectorstore"
	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

// Analyzer runs the analysis pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, trace string) (*apiv1.AnalysisRecord, error)
}

// RemoteHealth reports the reachability of the remote store.
type RemoteHealth interface {
	HasRemote() bool
	Probe(ctx context.Context) bool
	Health() *persistence.HealthMonitor
}

// IndexHandle exposes the size of the similarity index and rebuilds it.
type IndexHandle interface {
	Len() int
	Rebuild(ctx context.Context) error
}

// Deps are the collaborators served by a Server. Remote may be nil, in which
// case the service always reports degraded.
type Deps struct {
	Analyzer Analyzer
	Remote   RemoteHealth
	Index    IndexHandle
	Scrubber secrets.Scrubber
}

// Server provides HTTP endpoints for tracelens.
type Server struct {
	echo     *echo.Echo
	analyzer Analyzer
	remote   RemoteHealth
	index    IndexHandle
	scrubber secrets.Scrubber
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string

	// BodyLimit uses echo's size syntax, e.g. "1M".
	BodyLimit string

	CORSOrigins []string

	// RequestsPerMinute limits each client IP. Zero or less disables it.
	RequestsPerMinute int

	// HealthTimeout bounds the remote store check run by /health.
	HealthTimeout time.Duration
}

// DefaultHealthTimeout applies when Config.HealthTimeout is zero.
const DefaultHealthTimeout = 3 * time.Second

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Analyzer == nil {
		return nil, fmt.Errorf("analyzer cannot be nil")
	}
	if deps.Index == nil {
		return nil, fmt.Errorf("index cannot be nil")
	}
	if deps.Scrubber == nil {
		return nil, fmt.Errorf("scrubber cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8001,
		}
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "1M"
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
		},
	}))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request", append(logging.ContextFields(c.Request().Context()),
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
			)...)

			return err
		}
	})
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	if len(cfg.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		}))
	}
	if cfg.RequestsPerMinute > 0 {
		e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/health" || c.Path() == "/metrics"
			},
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(float64(cfg.RequestsPerMinute) / 60),
				Burst:     cfg.RequestsPerMinute,
				ExpiresIn: time.Minute,
			}),
			DenyHandler: func(c echo.Context, _ string, _ error) error {
				return c.JSON(http.StatusTooManyRequests, apiv1.ErrorResponse{Error: "rate limit exceeded"})
			},
		}))
	}

	s := &Server{
		echo:     e,
		analyzer: deps.Analyzer,
		remote:   deps.Remote,
		index:    deps.Index,
		scrubber: deps.Scrubber,
		logger:   logger,
		config:   cfg,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/", s.handleInfo)
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 routes
	v1 := s.echo.Group("/api/v1")
	v1.POST("/analyze", s.handleAnalyze)
	v1.POST("/scrub", s.handleScrub)
	v1.POST("/index/rebuild", s.handleRebuild)
}

// log returns the server logger carrying the request ID.
func (s *Server) log(c echo.Context) *zap.Logger {
	return s.logger.With(logging.ContextFields(c.Request().Context())...)
}

// handleInfo describes the service and its entry points.
func (s *Server) handleInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, InfoResponse{
		Message: "tracelens stack trace analyzer",
		Version: s.config.Version,
		Health:  "/health",
		Analyze: "/api/v1/analyze",
	})
}

// handleHealth probes the remote store so every check reflects live state.
// Without a remote store the service is degraded.
func (s *Server) handleHealth(c echo.Context) error {
	remoteUp := false
	status := apiv1.StatusDegraded
	if s.remote != nil && s.remote.HasRemote() {
		ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.HealthTimeout)
		defer cancel()
		remoteUp = s.remote.Probe(ctx)
		status = s.remote.Health().Status()
	}

	return c.JSON(http.StatusOK, apiv1.HealthResponse{
		Status:       status,
		Timestamp:    time.Now().UTC(),
		Version:      s.config.Version,
		IndexEntries: s.index.Len(),
		Dependencies: apiv1.HealthDependencies{RemoteStore: remoteUp},
	})
}

// handleAnalyze runs one trace through the pipeline.
func (s *Server) handleAnalyze(c echo.Context) error {
	var req apiv1.AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		s.log(c).Warn("invalid analyze request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, apiv1.ErrorResponse{Error: "invalid request body"})
	}

	start := time.Now()
	rec, err := s.analyzer.Analyze(c.Request().Context(), req.Trace)
	if err != nil {
		var verr *troubleshoot.ValidationError
		if errors.As(err, &verr) {
			return c.JSON(http.StatusBadRequest, apiv1.ErrorResponse{
				Error:  verr.Message,
				Reason: string(verr.Reason),
			})
		}
		s.log(c).Error("analysis failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, apiv1.ErrorResponse{Error: "analysis failed"})
	}

	return c.JSON(http.StatusOK, apiv1.NewAnalyzeResponse(rec, time.Since(start)))
}

// handleScrub redacts secrets from a trace so it can be shared safely.
func (s *Server) handleScrub(c echo.Context) error {
	var req ScrubRequest
	if err := c.Bind(&req); err != nil {
		s.log(c).Warn("invalid scrub request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	result := s.scrubber.Scrub(req.Content)

	s.log(c).Debug("scrubbed content",
		zap.Int("findings", result.TotalFindings),
		zap.Duration("duration", result.Duration),
	)

	return c.JSON(http.StatusOK, ScrubResponse{
		Content:       result.Scrubbed,
		FindingsCount: result.TotalFindings,
	})
}

// handleRebuild rebuilds the similarity index from its configured source.
// Searches block for the duration of the rebuild.
func (s *Server) handleRebuild(c echo.Context) error {
	start := time.Now()
	if err := s.index.Rebuild(c.Request().Context()); err != nil {
		if errors.Is(err, vectorstore.ErrNoBuilder) {
			return c.JSON(http.StatusConflict, apiv1.ErrorResponse{Error: "index has no rebuild source configured"})
		}
		s.log(c).Error("index rebuild failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, apiv1.ErrorResponse{Error: "index rebuild failed"})
	}

	return c.JSON(http.StatusOK, RebuildResponse{
		IndexEntries: s.index.Len(),
		Duration:     time.Since(start).Seconds(),
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
