package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Environment string    `json:"environment"`
	Version     string    `json:"version"`
}

type HealthHandler struct {
	environment string
	version     string
	now         func() time.Time
}

func NewHealthHandler(environment, version string) *HealthHandler {
	return &HealthHandler{
		environment: environment,
		version:     version,
		now:         time.Now,
	}
}

func (h *HealthHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Bienvenue sur l'API CalyBase",
		"version": h.version,
	})
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "healthy",
		Timestamp:   h.now().UTC(),
		Environment: h.environment,
		Version:     h.version,
	})
}

// TestDelete lets clients check that DELETE requests reach the API through
// proxies and CORS.
func (h *HealthHandler) TestDelete(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "DELETE method is working",
	})
}

func (h *HealthHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/status", h.Status)
	r.GET("/health", h.HealthCheck)
	r.GET("/healthz", h.HealthCheck)
	r.DELETE("/test-delete", h.TestDelete)
}
