// Package server wires the HTTP surface: the versions endpoint, the
// health endpoint and the Prometheus metrics endpoint, with request-id,
// logging and metrics middleware around them.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aksver/aksver/pkg/cache"
	"github.com/aksver/aksver/pkg/health"
	"github.com/aksver/aksver/pkg/token"
	"github.com/aksver/aksver/pkg/upstream"
)

// Config holds the handler-relevant settings.
type Config struct {
	Port int

	// SubscriptionID is part of every cache key so two proxies with
	// different subscriptions sharing a Redis never cross-serve.
	SubscriptionID string

	// ShowPreview is the default channel when a request does not pick
	// one explicitly.
	ShowPreview bool

	// MaxRetryAttempts bounds the upstream retry loop per fetch.
	MaxRetryAttempts int
}

// Server is the HTTP front of the proxy.
type Server struct {
	echo   *echo.Echo
	cfg    Config
	cache  *cache.VersionCache
	client *upstream.Client
	tokens *token.Store
	health *health.Reporter
	logger zerolog.Logger
}

// New assembles the server. All collaborators are constructed by the
// caller so tests can substitute isolated instances.
func New(cfg Config, vc *cache.VersionCache, client *upstream.Client, tokens *token.Store, reporter *health.Reporter, logger zerolog.Logger) *Server {
	s := &Server{
		echo:   echo.New(),
		cfg:    cfg,
		cache:  vc,
		client: client,
		tokens: tokens,
		health: reporter,
		logger: logger,
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	s.echo.Use(s.requestLogger())
	s.echo.Use(requestMetrics())

	s.echo.GET("/versions", s.handleVersions)
	s.echo.GET("/status", s.handleStatus)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return s
}

// Start blocks serving HTTP until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.logger.Info().Str("addr", addr).Msg("HTTP server listening")

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// requestLogger emits one structured line per request. Health and
// metrics probes are skipped; they fire every few seconds and carry no
// information.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/status" || p == "/metrics"
		},
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("Request completed")
			return nil
		},
	})
}

func requestMetrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().URL.Path == "/metrics" {
				return next(c)
			}

			start := time.Now()
			err := next(c)

			path := c.Path()
			RequestsTotal.WithLabelValues(path, c.Request().Method, strconv.Itoa(c.Response().Status)).Inc()
			RequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
