package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/alkime/ebooks/internal/config"
	"github.com/alkime/ebooks/internal/metrics"
	"github.com/alkime/ebooks/internal/workflow"
)

const (
	sweepInterval     = time.Minute
	keepaliveInterval = 25 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server represents the HTTP server
type Server struct {
	config    *config.Config
	logger    *slog.Logger
	router    *gin.Engine
	sessions  *sessionStore
	keepalive time.Duration
}

// New creates a new Server instance. Every browser session gets its own
// workflow backed by gen.
func New(cfg *config.Config, logger *slog.Logger, gen workflow.Generator) *Server {
	// Set Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Configure proxy trust for production (Fly.io)
	if cfg.IsProduction() {
		router.TrustedPlatform = gin.PlatformFlyIO
		logger.Debug("Configured trusted platform", "platform", "fly.io")
	} else if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Warn("Ignoring invalid trusted proxies", "error", err, "proxies", cfg.TrustedProxies)
	}

	newMachine := func() *workflow.Machine {
		return workflow.New(gen,
			workflow.WithLogger(logger),
			workflow.WithObserver(metrics.Observer{}),
		)
	}

	server := &Server{
		config:    cfg,
		logger:    logger,
		router:    router,
		sessions:  newSessionStore(cfg.SessionTTL, cfg.IsProduction(), logger, newMachine),
		keepalive: keepaliveInterval,
	}

	setupMiddleware(router, cfg, logger)
	server.setupRoutes()

	return server
}

// Router returns the HTTP handler serving all routes.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves HTTP and sweeps idle sessions until ctx is cancelled, then shuts
// the listener down gracefully.
func Run(ctx context.Context, s *Server) error {
	srv := &http.Server{
		Addr:              ":" + s.config.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Server listening", "port", s.config.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return s.sessions.janitor(ctx, sweepInterval)
	})

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("Shutting down server")

		// open event streams only end once their subscriptions close
		s.sessions.closeAll()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api/v1")
	{
		api.GET("/options", s.handleOptions)

		book := api.Group("/ebook")
		book.GET("", s.handleGetEbook)
		book.POST("", s.handleGenerate)
		book.DELETE("", s.handleReset)
		book.POST("/continue", s.handleContinue)
		book.POST("/dismiss", s.handleDismiss)
		book.GET("/events", s.handleEvents)
		book.GET("/export/:format", s.handleExport)
	}

	// Registered last so it only runs for paths without a route.
	s.router.Use(static.Serve("/", webFileSystem()))
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"service":  "ebooks",
		"sessions": s.sessions.len(),
	})
}
