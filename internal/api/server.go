// Package api exposes the engine commands over HTTP.
//
// The acting role is taken from the X-Role-ID header; authentication is left
// to the proxy in front of the server. Instance responses carry the snapshot
// hash as ETag, and mutating instance requests may send it back as If-Match
// to be rejected with 412 when the instance changed in between.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel/trace"

	"github.com/tikcccc/Form-demo/internal/engine"
	"github.com/tikcccc/Form-demo/internal/ir"
)

// RoleHeader carries the acting role id.
const RoleHeader = "X-Role-ID"

const roleKey = "formflow.role_id"

// Server routes HTTP requests to an engine.
type Server struct {
	eng    *engine.Engine
	echo   *echo.Echo
	logger *slog.Logger
	tp     trace.TracerProvider
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracerProvider enables request spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		s.tp = tp
	}
}

// New builds the router.
func New(eng *engine.Engine, opts ...Option) *Server {
	s := &Server{
		eng:    eng,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	if s.tp != nil {
		e.Use(otelecho.Middleware("formflow", otelecho.WithTracerProvider(s.tp)))
	}
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.InfoContext(c.Request().Context(), "request",
				"method", v.Method, "uri", v.URI, "status", v.Status,
				"latency", v.Latency, "role_id", c.Request().Header.Get(RoleHeader))
			return nil
		},
	}))

	e.GET("/healthz", s.health)

	g := e.Group("", requireRole)
	g.GET("/templates", s.listTemplates)
	g.POST("/templates", s.createTemplate)
	g.POST("/templates/import", s.importTemplates)
	g.GET("/templates/:id", s.getTemplate)
	g.PATCH("/templates/:id", s.updateTemplate)
	g.DELETE("/templates/:id", s.deleteTemplate)
	g.POST("/templates/:id/duplicate", s.duplicateTemplate)
	g.POST("/templates/:id/publish", s.publishTemplate)

	g.GET("/instances", s.listInstances)
	g.POST("/instances", s.createInstance)
	g.GET("/instances/:id", s.getInstance)
	g.DELETE("/instances/:id", s.deleteInstance)
	g.PATCH("/instances/:id/form", s.updateForm)
	g.POST("/instances/:id/attachments", s.addAttachment)
	g.DELETE("/instances/:id/attachments/:attachment", s.removeAttachment)
	g.PUT("/instances/:id/attachments/:attachment/status", s.updateAttachmentStatus)
	g.POST("/instances/:id/send", s.sendAction)
	g.POST("/instances/:id/delegate", s.delegateStep)
	g.POST("/instances/:id/open", s.markOpened)

	s.echo = e
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func requireRole(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		role := c.Request().Header.Get(RoleHeader)
		if role == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, RoleHeader+" header is required")
		}
		c.Set(roleKey, role)
		return next(c)
	}
}

func roleOf(c echo.Context) string {
	role, _ := c.Get(roleKey).(string)
	return role
}

type healthStatus struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthStatus{Status: "ok", Service: "formflow", Version: ir.EngineVersion})
}
