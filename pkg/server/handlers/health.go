package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/risposta/pkg/search"
)

// Build information - can be set at build time using ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// HealthHandler handles health check requests
type HealthHandler struct {
	searcher *search.Searcher
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(s *search.Searcher) *HealthHandler {
	return &HealthHandler{searcher: s}
}

// HealthCheck handles GET /health - basic liveness check
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "risposta",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

// ReadinessCheck handles GET /ready - the service is ready once a
// searcher with at least one index is wired.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if h.searcher == nil || len(h.searcher.Indexes()) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  "no search indexes configured",
		})
		return
	}
	names := make([]string, 0, len(h.searcher.Indexes()))
	for _, idx := range h.searcher.Indexes() {
		names = append(names, idx.Name())
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ready",
		"indexes": names,
		"k":       h.searcher.K(),
	})
}
