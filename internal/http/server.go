// Package http provides the ragguard HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/ragguard/internal/access"
	"github.com/fyrsmithlabs/ragguard/internal/index"
	"github.com/fyrsmithlabs/ragguard/internal/ingest"
	"github.com/fyrsmithlabs/ragguard/internal/logging"
	"github.com/fyrsmithlabs/ragguard/internal/retrieval"
	"github.com/fyrsmithlabs/ragguard/internal/synth"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies; ingest carries whole documents.
const maxBodyBytes = "4M"

// Asker answers role-gated questions.
type Asker interface {
	Ask(ctx context.Context, question, role string) (retrieval.Result, error)
}

// Ingester writes documents to the index.
type Ingester interface {
	IngestDocument(ctx context.Context, text, label, source string) ([]string, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides the ragguard HTTP endpoints.
type Server struct {
	echo     *echo.Echo
	asker    Asker
	ingester Ingester
	policy   *access.Policy
	logger   *logging.Logger
	config   *Config
}

// NewServer creates a new HTTP server. ingester may be nil, in which case
// the ingest route is not registered.
func NewServer(asker Asker, ingester Ingester, policy *access.Policy, logger *logging.Logger, cfg *Config) (*Server, error) {
	if asker == nil {
		return nil, fmt.Errorf("asker cannot be nil")
	}
	if policy == nil {
		return nil, fmt.Errorf("access policy cannot be nil")
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

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			reqID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), reqID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	})
	e.Use(NewHTTPMetrics(logger.Underlying()).MetricsMiddleware())
	e.Use(middleware.BodyLimit(maxBodyBytes))

	s := &Server{
		echo:     e,
		asker:    asker,
		ingester: ingester,
		policy:   policy,
		logger:   logger,
		config:   cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/roles", s.handleRoles)
	v1.POST("/ask", s.handleAsk)
	if s.ingester != nil {
		v1.POST("/ingest", s.handleIngest)
	}
}

// ServeHTTP lets the server be mounted or tested without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleRoles(c echo.Context) error {
	return c.JSON(http.StatusOK, RolesResponse{Roles: s.policy.Table()})
}

// handleAsk maps result kinds to status codes: answer and refusal are 200,
// storage failure 502, timeout 504.
func (s *Server) handleAsk(c echo.Context) error {
	var req AskRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	res, err := s.asker.Ask(ctx, req.Question, req.Role)
	if err != nil {
		var roleErr *access.UnknownRoleError
		switch {
		case errors.As(err, &roleErr), errors.Is(err, retrieval.ErrEmptyQuestion):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, synth.ErrGeneration):
			s.logger.Error(ctx, "answer generation failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusBadGateway, "answer generation failed")
		default:
			return fmt.Errorf("ask: %w", err)
		}
	}

	resp := AskResponse{Kind: res.Kind, Answer: res.Text, Sources: res.Sources}
	switch res.Kind {
	case retrieval.KindAnswer, retrieval.KindRefusal:
		return c.JSON(http.StatusOK, resp)
	case retrieval.KindStorageFailure:
		resp.Error = errorText(res.Err, "storage failure")
		return c.JSON(http.StatusBadGateway, resp)
	case retrieval.KindTimeout:
		resp.Error = errorText(res.Err, "index timeout")
		return c.JSON(http.StatusGatewayTimeout, resp)
	default:
		return fmt.Errorf("ask: unexpected result kind %v", res.Kind)
	}
}

func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	ids, err := s.ingester.IngestDocument(ctx, req.Text, req.Sensitivity, req.Source)
	if err != nil {
		var labelErr *access.UnknownLabelError
		switch {
		case errors.As(err, &labelErr), errors.Is(err, ingest.ErrEmptyText):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case index.IsTimeout(err):
			return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
		case index.IsStorageError(err):
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		default:
			return fmt.Errorf("ingest: %w", err)
		}
	}
	return c.JSON(http.StatusOK, IngestResponse{FragmentIDs: ids})
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func errorText(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}

// errorHandler renders every error as ErrorResponse. Unexpected errors are
// logged and reported as 500 without detail.
func errorHandler(logger *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		msg := http.StatusText(code)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(code)
			}
		} else {
			logger.Error(c.Request().Context(), "request failed", zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, ErrorResponse{Error: msg})
		}
		if err != nil {
			logger.Warn(c.Request().Context(), "writing error response", zap.Error(err))
		}
	}
}

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
