package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"mail-autoresponder-go/internal/models"
)

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := models.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Monitor:   string(h.monitor.State()),
		Details:   make(map[string]string),
	}

	if err := h.db.Raw("SELECT 1").Error; err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	if h.monitor.IsRunning() {
		response.Details["next_run"] = h.monitor.NextRun().Format(time.RFC3339)
		last := h.monitor.LastRun()
		if !last.IsZero() {
			response.Details["last_run"] = last.Format(time.RFC3339)
		}
	}
	response.Details["pending_replies"] = strconv.Itoa(h.responder.PendingCount())

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}
