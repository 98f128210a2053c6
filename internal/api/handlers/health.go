package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/voiceloop/backend/internal/health"
)

type HealthHandler struct {
	checker *health.HealthChecker
	logger  *logrus.Logger
}

func NewHealthHandler(checker *health.HealthChecker, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{checker: checker, logger: logger}
}

// HandleHealth returns system health, cached when the periodic checker has
// run recently
func (h *HealthHandler) HandleHealth(c *gin.Context) {
	if cached, err := h.checker.CheckCached(c.Request.Context()); err == nil && len(cached.Services) > 0 {
		h.respond(c, cached)
		return
	}

	overall := h.checker.CheckAll()
	h.respond(c, &overall)
}

func (h *HealthHandler) respond(c *gin.Context, overall *health.OverallHealth) {
	code := http.StatusOK
	if overall.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, overall)
}
