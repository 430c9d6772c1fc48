package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

// HealthChecker is implemented by PostgresDB and RedisClient.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type HealthHandler struct {
	checks  map[string]HealthChecker
	version string
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
}

// NewHealthHandler reports on the given dependencies. Nil checkers are
// skipped so optional backends do not mark the service unhealthy.
func NewHealthHandler(checks map[string]HealthChecker, version string) *HealthHandler {
	active := make(map[string]HealthChecker, len(checks))
	for name, c := range checks {
		if c != nil {
			active[name] = c
		}
	}
	return &HealthHandler{checks: active, version: version}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	services := make(map[string]string, len(h.checks))
	overallStatus := "healthy"

	for name, check := range h.checks {
		if err := check.HealthCheck(c.Request.Context()); err != nil {
			services[name] = "unhealthy: " + err.Error()
			overallStatus = "unhealthy"
			continue
		}
		services[name] = "healthy"
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Services:  services,
		Version:   h.version,
		Uptime:    time.Since(startTime).String(),
	})
}
