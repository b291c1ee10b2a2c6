package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/settlement/internal/infrastructure/logger"
	"github.com/erp/settlement/internal/interfaces/http/dto"
)

// healthCheckTimeout bounds each dependency check
const healthCheckTimeout = 2 * time.Second

// HealthCheck probes one dependency
type HealthCheck struct {
	Name string
	// Check returns nil when the dependency is usable
	Check func(ctx context.Context) error
	// Optional dependencies report "degraded" instead of failing the probe
	Optional bool
}

// HealthHandler serves liveness and service information
type HealthHandler struct {
	BaseHandler
	name      string
	version   string
	checks    []HealthCheck
	startTime time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(name, version string, checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{
		name:      name,
		version:   version,
		checks:    checks,
		startTime: time.Now(),
	}
}

// Health godoc
// @ID           getHealth
// @Summary      Health check
// @Description  Answers 503 when a required dependency fails.
// @Tags         system
// @Produce      json
// @Success      200 {object} map[string]any
// @Failure      503 {object} map[string]any
// @Router       /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	results := make(map[string]string, len(h.checks))

	for _, check := range h.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		err := check.Check(ctx)
		cancel()
		if err == nil {
			results[check.Name] = "ok"
			continue
		}
		logger.GetGinLogger(c).Warn("Health check failed",
			zap.String("check", check.Name),
			zap.Error(err))
		if check.Optional {
			results[check.Name] = "degraded"
			if status == "healthy" {
				status = "degraded"
			}
			continue
		}
		results[check.Name] = "error"
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status": status,
		"time":   time.Now().UTC().Format(time.RFC3339),
		"checks": results,
	})
}

// InfoResponse describes the running service
type InfoResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// Info godoc
// @ID           getSystemInfo
// @Summary      Get system information
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.Response{data=InfoResponse}
// @Router       /system/info [get]
func (h *HealthHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(InfoResponse{
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}))
}
