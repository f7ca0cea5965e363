package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TobiSchelling/NewsAI/internal/auth"
	"github.com/TobiSchelling/NewsAI/internal/listing"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

const shutdownTimeout = 10 * time.Second

// Deps are the services the server exposes.
type Deps struct {
	Listing  *listing.Service
	Recorder *listing.Recorder
	Auth     *auth.Service
	// Health reports whether the store is reachable. Optional.
	Health func(ctx context.Context) error
	Log    *slog.Logger
}

// Options tune the HTTP surface.
type Options struct {
	SecureCookies     bool
	AuthRatePerMinute int
}

// Server serves the JSON API and the HTML pages.
type Server struct {
	echo     *echo.Echo
	listing  *listing.Service
	recorder *listing.Recorder
	auth     *auth.Service
	health   func(ctx context.Context) error
	log      *slog.Logger
	opts     Options
}

// New creates a new Server.
func New(deps Deps, opts Options) (*Server, error) {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if opts.AuthRatePerMinute <= 0 {
		opts.AuthRatePerMinute = 20
	}

	r, err := newRenderer()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = r

	s := &Server{
		echo:     e,
		listing:  deps.Listing,
		recorder: deps.Recorder,
		auth:     deps.Auth,
		health:   deps.Health,
		log:      deps.Log,
		opts:     opts,
	}
	e.HTTPErrorHandler = s.errorHandler
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) routes() {
	e := s.echo
	e.Use(instrument())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return path == "/healthz" || path == "/metrics"
		},
		HandleError: true,
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.log.InfoContext(c.Request().Context(), "HTTP request completed",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"error", v.Error)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		ReferrerPolicy:     "same-origin",
	}))
	e.Use(s.session())

	staticSub, _ := fs.Sub(staticFS, "static")
	e.StaticFS("/static", staticSub)

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	limited := newRateLimiter(s.opts.AuthRatePerMinute).middleware()

	api := e.Group("/api")
	api.GET("/articles", s.apiRecent)
	api.GET("/articles/category/:name", s.apiCategory)
	api.GET("/articles/:id", s.apiArticle)
	api.POST("/articles/read", s.apiMarkRead)
	api.GET("/search", s.apiSearch)
	api.GET("/categories", s.apiCategories)
	api.POST("/auth/register", s.apiRegister, limited)
	api.POST("/auth/signin", s.apiSignIn, limited)
	api.POST("/auth/signout", s.apiSignOut)
	api.GET("/auth/session", s.apiSession)

	e.GET("/", s.pageRecent)
	e.GET("/categories", s.pageCategories)
	e.GET("/articles/category/:name", s.pageCategory)
	e.GET("/articles/:id", s.pageArticle)
	e.POST("/articles/:id/read", s.pageMarkRead)
	e.GET("/search", s.pageSearch)
	e.GET("/auth/signin", s.pageSignIn)
	e.POST("/auth/signin", s.pageSignInSubmit, limited)
	e.GET("/auth/register", s.pageRegister)
	e.POST("/auth/register", s.pageRegisterSubmit, limited)
	e.POST("/auth/signout", s.pageSignOut)
}

func (s *Server) handleHealth(c echo.Context) error {
	if s.health != nil {
		if err := s.health(c.Request().Context()); err != nil {
			s.log.ErrorContext(c.Request().Context(), "Health check failed", "error", err)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.InfoContext(ctx, "Server listening", "addr", fmt.Sprintf("http://%s", addr))
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.InfoContext(ctx, "Shutting down server")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}
