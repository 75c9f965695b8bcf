// Package health exposes Kubernetes-style liveness and readiness
// probes over the snapshot store dependencies.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quizbattle/quizroom/internal/v1/logging"
)

const checkTimeout = 3 * time.Second

// Pinger is the connectivity probe both snapshot tiers expose.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler manages the health check endpoints. The hot tier is optional;
// a nil hot pinger reports healthy since the service degrades to the
// durable store alone.
type Handler struct {
	hot     Pinger
	durable Pinger
}

// NewHandler wires the probes over the store tiers. hot may be nil.
func NewHandler(hot, durable Pinger) *Handler {
	return &Handler{hot: hot, durable: durable}
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles GET /health/live. Returns 200 whenever the process
// is up, no dependency checks.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles GET /health/ready. Returns 200 only when every
// critical dependency answers, 503 otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
	defer cancel()

	checks := map[string]string{
		"redis":    h.check(ctx, "redis", h.hot),
		"postgres": h.check(ctx, "postgres", h.durable),
	}

	status := "ready"
	statusCode := http.StatusOK
	for _, state := range checks {
		if state != "healthy" {
			status = "unavailable"
			statusCode = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) check(ctx context.Context, name string, p Pinger) string {
	if p == nil {
		// Optional dependency, absent by configuration.
		return "healthy"
	}
	if err := p.Ping(ctx); err != nil {
		logging.Error(ctx, "health check failed", zap.String("dependency", name), zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}
