// Package server binds the catalog pages, the cache invalidation API and the
// operator panel to HTTP.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/Sternrassler/bookshelf-web/pkg/catalog"
	"github.com/Sternrassler/bookshelf-web/pkg/invalidation"
	"github.com/Sternrassler/bookshelf-web/pkg/ledger"
	"github.com/Sternrassler/bookshelf-web/pkg/logging"
	"github.com/Sternrassler/bookshelf-web/pkg/metrics"
	"github.com/Sternrassler/bookshelf-web/pkg/panel"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

//go:embed templates/*.html
var templateFS embed.FS

// Deps are the services the server binds.
type Deps struct {
	Ledger       *ledger.Ledger
	Catalog      *catalog.Client
	Invalidation *invalidation.Service
	Panel        *panel.Panel
}

// Config holds HTTP server settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the default server settings for addr.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:            addr,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Server is the HTTP front end.
type Server struct {
	deps   Deps
	router *gin.Engine
	logger zerolog.Logger
}

// New creates a server with all routes registered.
func New(deps Deps) (*Server, error) {
	if deps.Ledger == nil || deps.Catalog == nil || deps.Invalidation == nil || deps.Panel == nil {
		return nil, errors.New("server: all dependencies are required")
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.SetHTMLTemplate(tmpl)

	logger := logging.NewLogger("http")
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	s := &Server{
		deps:   deps,
		router: router,
		logger: logger,
	}
	s.setupRoutes()

	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/ready", s.readyCheck)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Pages
	s.router.GET("/", s.listBooks)
	s.router.GET("/book/:bookId", s.showBook)
	s.router.GET("/book/:bookId/download", s.downloadBook)

	// Cache API
	api := s.router.Group("/api")
	{
		api.GET("/cache", s.getCacheStats)
		api.DELETE("/cache", s.clearCache)
		api.POST("/cache", s.forceRefresh)

		api.POST("/webhook/cache-invalidate", s.handleWebhook)
		api.GET("/webhook/cache-invalidate", s.webhookHealth)
	}

	// Operator panel
	p := s.router.Group("/panel")
	{
		p.GET("", s.showPanel)
		p.GET("/stats", s.panelStats)
		p.POST("/clear", s.panelClear)
		p.POST("/clear-all", s.panelClearAll)
		p.POST("/force-refresh", s.panelForceRefresh)
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, cfg Config) error {
	httpServer := &http.Server{
		Addr:           cfg.Addr,
		Handler:        s.router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", cfg.Addr).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down HTTP server")

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

func (s *Server) healthCheck(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *Server) readyCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.deps.Ledger.Ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Ledger not reachable")
		c.String(http.StatusServiceUnavailable, "Ledger unavailable")
		return
	}
	c.String(http.StatusOK, "Ready")
}
