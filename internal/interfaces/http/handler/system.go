package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger checks one dependency's liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler serves health and readiness probes.
type SystemHandler struct {
	db    Pinger
	cache Pinger
}

// NewSystemHandler creates a system handler. Either dependency may be
// nil when not deployed.
func NewSystemHandler(db, cache Pinger) *SystemHandler {
	return &SystemHandler{db: db, cache: cache}
}

// Health reports the service and its dependencies. A degraded cache
// does not fail the probe; an unreachable data store does.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			checks["database"] = "down"
			status = http.StatusServiceUnavailable
		} else {
			checks["database"] = "up"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			checks["cache"] = "degraded"
		} else {
			checks["cache"] = "up"
		}
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ok", false: "unavailable"}[status == http.StatusOK],
		"checks": checks,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
