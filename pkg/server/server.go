// Package server exposes retrieval over HTTP: health probes, per-index
// search, weighted fusion and the current relevance judgments.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/soundprediction/risposta/pkg/config"
	"github.com/soundprediction/risposta/pkg/search"
	"github.com/soundprediction/risposta/pkg/server/handlers"
)

// Server represents the HTTP server
type Server struct {
	config   *config.Config
	router   *gin.Engine
	searcher *search.Searcher
	qrels    *search.Qrels
	server   *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, searcher *search.Searcher, qrels *search.Qrels) *Server {
	if qrels == nil {
		qrels = search.NewQrels()
	}
	return &Server{
		config:   cfg,
		searcher: searcher,
		qrels:    qrels,
	}
}

// Setup sets up the server routes and middleware
func (s *Server) Setup() {
	// Set gin mode
	gin.SetMode(s.config.Server.Mode)

	// Create router
	s.router = gin.New()

	// Add middleware
	s.router.Use(gin.Logger())
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware())
	s.router.Use(requestIDMiddleware())

	// Setup routes
	s.setupRoutes()

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
}

// Router returns the configured gin engine.
func (s *Server) Router() *gin.Engine { return s.router }

// setupRoutes sets up all the routes
func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.searcher)
	retrieveHandler := handlers.NewRetrieveHandler(s.searcher, s.qrels)

	// Health endpoints
	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/ready", healthHandler.ReadinessCheck)

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/search", retrieveHandler.Search)
		v1.POST("/fuse", retrieveHandler.Fuse)
		v1.GET("/qrels", retrieveHandler.Qrels)
	}

	// Unversioned aliases
	s.router.POST("/search", retrieveHandler.Search)
	s.router.POST("/fuse", retrieveHandler.Fuse)
	s.router.GET("/qrels", retrieveHandler.Qrels)
}

// Start starts the server
func (s *Server) Start() error {
	fmt.Printf("Starting server on %s\n", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the server gracefully
func (s *Server) Stop(ctx context.Context) error {
	fmt.Println("Stopping server...")
	return s.server.Shutdown(ctx)
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// requestIDMiddleware tags every request with an id for log correlation.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Set("request_id", id)
		c.Next()
	}
}
