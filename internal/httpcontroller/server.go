// Package httpcontroller hosts the echo HTTP server that fronts the
// monitoring API.
package httpcontroller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	api "github.com/swarahealth/coughwatch-go/internal/api/v2"
	"github.com/swarahealth/coughwatch-go/internal/conf"
	"github.com/swarahealth/coughwatch-go/internal/cough"
	"github.com/swarahealth/coughwatch-go/internal/datastore"
	"github.com/swarahealth/coughwatch-go/internal/device"
	"github.com/swarahealth/coughwatch-go/internal/events"
	"github.com/swarahealth/coughwatch-go/internal/logging"
	"github.com/swarahealth/coughwatch-go/internal/notification"
	"github.com/swarahealth/coughwatch-go/internal/observability"
	"github.com/swarahealth/coughwatch-go/internal/security"
)

// Server hosts the HTTP API.
type Server struct {
	Echo     *echo.Echo
	Settings *conf.Settings
	DS       datastore.Interface
	APIV2    *api.Controller

	webLogger      *slog.Logger
	webLoggerClose func() error
}

// Dependencies carries the services the HTTP layer exposes.
type Dependencies struct {
	DS            datastore.Interface
	Coughs        *cough.Manager
	Devices       *device.Service
	Notifications *notification.Manager
	Auth          *security.Authenticator
	Sessions      *security.SessionManager
	Bus           *events.Bus
	Metrics       *observability.Metrics
	Registry      *prometheus.Registry
}

// New initializes the HTTP server and mounts all routes.
func New(settings *conf.Settings, deps *Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.IPExtractor = echo.ExtractIPFromXFFHeader()

	s := &Server{
		Echo:      e,
		Settings:  settings,
		DS:        deps.DS,
		webLogger: logging.ForService("http"),
	}

	// Request logs go to a rotated file when a path is configured,
	// otherwise they share the process logger.
	if settings.WebServer.LogPath != "" {
		level := slog.LevelInfo
		if settings.WebServer.Debug {
			level = slog.LevelDebug
		}
		fileLogger, closeFn, err := logging.NewFileLogger(settings.WebServer.LogPath, "http", level)
		if err != nil {
			s.webLogger.Warn("failed to open web log file, logging to default output",
				"path", settings.WebServer.LogPath,
				"error", err)
		} else {
			s.webLogger = fileLogger
			s.webLoggerClose = closeFn
		}
	}

	s.initializeMiddlewares()

	s.APIV2 = api.New(e, deps.DS, settings,
		deps.Coughs, deps.Devices, deps.Notifications,
		deps.Auth, deps.Sessions, deps.Bus, deps.Metrics)

	if deps.Registry != nil {
		e.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	return s
}

func (s *Server) initializeMiddlewares() {
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 6,
		Skipper: func(c echo.Context) bool {
			// SSE responses must not be buffered by the gzip writer.
			return c.Path() == "/api/v2/events/stream" || c.Path() == "/metrics"
		},
	}))
	s.Echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{echo.GET, echo.POST, echo.PUT, echo.PATCH, echo.DELETE},
		AllowCredentials: false,
	}))
	if s.Settings.Storage.MaxUploadMB > 0 {
		s.Echo.Use(middleware.BodyLimit(fmt.Sprintf("%dM", s.Settings.Storage.MaxUploadMB)))
	}
	s.Echo.Use(s.requestLoggingMiddleware())
}

// requestLoggingMiddleware logs each request to the structured web logger.
func (s *Server) requestLoggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			s.webLogger.Info("request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"ip", c.RealIP())
			return err
		}
	}
}

// Start begins listening and serving HTTP requests. Errors other than a
// clean shutdown are sent on the returned channel.
func (s *Server) Start() <-chan error {
	errChan := make(chan error, 1)

	go func() {
		addr := fmt.Sprintf(":%s", s.Settings.WebServer.Port)
		if err := s.Echo.Start(addr); err != nil {
			errChan <- err
		}
	}()

	s.webLogger.Info("HTTP server started", "port", s.Settings.WebServer.Port)
	return errChan
}

// Shutdown performs cleanup operations and gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.APIV2.Shutdown()
	err := s.Echo.Shutdown(ctx)
	if s.webLoggerClose != nil {
		_ = s.webLoggerClose()
	}
	return err
}
