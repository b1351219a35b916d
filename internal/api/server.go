// Package api exposes the matching engine over HTTP for the web UI:
// batch import, reconciliation triggers, match lookups, ambiguity reports,
// manual links, and import pattern management.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ledgerline/ledgerline-backend/internal/application/service"
	"github.com/ledgerline/ledgerline-backend/internal/infrastructure/storage"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults for local development.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
	}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	engine     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger
	repo       storage.Repository
	importSvc  *service.ImportService
	reconSvc   *service.ReconcileService
}

// NewServer creates an API server wired to the given services.
func NewServer(cfg Config, repo storage.Repository, importSvc *service.ImportService, reconSvc *service.ReconcileService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s := &Server{
		config:    cfg,
		engine:    engine,
		logger:    logger,
		repo:      repo,
		importSvc: importSvc,
		reconSvc:  reconSvc,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	s.engine.GET("/health", s.health)

	apiGroup := s.engine.Group("/api")
	{
		apiGroup.POST("/import", s.importBatch)

		apiGroup.GET("/accounts/:accountID/transactions", s.listTransactions)
		apiGroup.POST("/transactions/:id/reconcile", s.reconcile)
		apiGroup.GET("/transactions/:id/match", s.matchByTransaction)
		apiGroup.GET("/transactions/:id/ambiguity", s.ambiguity)
		apiGroup.POST("/instances", s.upsertInstances)
		apiGroup.GET("/instances/match", s.matchByInstance)

		apiGroup.POST("/links", s.createLink)
		apiGroup.DELETE("/links/:id", s.deleteLink)

		apiGroup.GET("/patterns", s.listPatterns)
		apiGroup.POST("/patterns", s.createPattern)
		apiGroup.DELETE("/patterns/:id", s.deletePattern)
	}
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start begins serving and blocks until the server stops.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("api server listening", "port", s.config.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// requestLogger logs each request with method, path, status, and duration.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
