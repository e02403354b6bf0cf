package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mail-autoresponder-go/internal/config"
	"mail-autoresponder-go/internal/models"
	"mail-autoresponder-go/internal/monitor"
	"mail-autoresponder-go/internal/responder"
)

// Store is the query surface the read endpoints need.
type Store interface {
	ListLogs(page, limit int) ([]models.ActivityLog, int64, error)
	ListRepliesByStatus(status string) ([]models.Reply, error)
	CountRepliesByStatus(status string) (int64, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	db        *gorm.DB
	repo      Store
	manager   *config.Manager
	responder *responder.AutoResponder
	monitor   *monitor.EmailMonitor
}

// NewHandlers creates new HTTP handlers
func NewHandlers(db *gorm.DB, repo Store, manager *config.Manager, r *responder.AutoResponder, m *monitor.EmailMonitor) *Handlers {
	return &Handlers{
		db:        db,
		repo:      repo,
		manager:   manager,
		responder: r,
		monitor:   m,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	// Health check
	router.GET("/healthz", h.HealthCheck)

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api/v1")
	{
		// Dashboard status
		api.GET("/status", h.GetStatus)

		// Runtime configuration
		api.GET("/config", h.GetConfig)
		api.PUT("/config", h.UpdateConfig)

		// Activity logs
		api.GET("/logs", h.GetLogs)

		// Replies
		api.GET("/replies", h.GetReplies)
		api.GET("/replies/pending", h.GetPendingReplies)
		api.POST("/replies/:id/approve", h.ApproveReply)
		api.POST("/replies/:id/reject", h.RejectReply)

		// Monitor control
		api.POST("/monitor/start", h.StartMonitor)
		api.POST("/monitor/stop", h.StopMonitor)
		api.POST("/monitor/poll", h.TriggerPoll)
	}
}

// GetStatus returns the dashboard status view.
func (h *Handlers) GetStatus(c *gin.Context) {
	settings := h.manager.Current()

	sent, err := h.repo.CountRepliesByStatus(models.ReplyStatusSent)
	if err != nil {
		logrus.Errorf("Failed to count sent replies: %v", err)
	}

	response := models.StatusResponse{
		Monitoring:         h.monitor.IsRunning(),
		State:              string(h.monitor.State()),
		ManualConfirmation: settings.ManualConfirmation,
		PendingCount:       h.responder.PendingCount(),
		SentCount:          sent,
	}

	if h.monitor.IsRunning() {
		next := h.monitor.NextRun()
		last := h.monitor.LastRun()
		response.NextRun = &next
		if !last.IsZero() {
			response.LastRun = &last
		}
	}

	c.JSON(http.StatusOK, response)
}

// GetConfig returns the current runtime settings.
func (h *Handlers) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.Current())
}

// UpdateConfig applies a partial settings update and hot-reloads all
// subscribed components before responding.
func (h *Handlers) UpdateConfig(c *gin.Context) {
	var req models.SettingsUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	settings, err := h.manager.Update(&req)
	if err != nil {
		var validationErr *config.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "validation_error",
				Message: validationErr.Error(),
				Code:    http.StatusBadRequest,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "settings_error",
			Message: "Failed to update settings",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, settings)
}

// GetLogs returns activity logs with pagination
func (h *Handlers) GetLogs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}

	logs, total, err := h.repo.ListLogs(page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch logs",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs": logs,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetReplies returns persisted reply rows, optionally filtered by status.
func (h *Handlers) GetReplies(c *gin.Context) {
	replies, err := h.repo.ListRepliesByStatus(c.Query("status"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch replies",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, replies)
}

// GetPendingReplies returns the in-memory pending-confirmation snapshot.
func (h *Handlers) GetPendingReplies(c *gin.Context) {
	c.JSON(http.StatusOK, h.responder.PendingReplies())
}

// ApproveReply approves a pending reply and sends it.
func (h *Handlers) ApproveReply(c *gin.Context) {
	var req models.ConfirmationRequest
	// Body is optional; an empty approver is allowed.
	_ = c.ShouldBindJSON(&req)

	h.resolveReply(c, true, req.ApprovedBy)
}

// RejectReply rejects a pending reply.
func (h *Handlers) RejectReply(c *gin.Context) {
	var req models.ConfirmationRequest
	_ = c.ShouldBindJSON(&req)

	h.resolveReply(c, false, req.ApprovedBy)
}

func (h *Handlers) resolveReply(c *gin.Context, approved bool, approvedBy string) {
	reply, err := h.responder.ProcessConfirmation(c.Request.Context(), c.Param("id"), approved, approvedBy)
	if err != nil {
		if errors.Is(err, responder.ErrReplyNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error:   "not_found",
				Message: "Pending reply not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "confirmation_error",
			Message: "Failed to process confirmation",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, reply)
}

// StartMonitor starts the email monitor.
func (h *Handlers) StartMonitor(c *gin.Context) {
	if err := h.monitor.Start(); err != nil {
		if errors.Is(err, monitor.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Error:   "monitor_error",
				Message: "Monitor is already running",
				Code:    http.StatusConflict,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "monitor_error",
			Message: "Failed to start monitor",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Monitor started successfully",
		"status":  string(h.monitor.State()),
	})
}

// TriggerPoll runs one poll cycle outside the regular schedule.
func (h *Handlers) TriggerPoll(c *gin.Context) {
	if err := h.monitor.RunOnce(); err != nil {
		if errors.Is(err, monitor.ErrNotRunning) {
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Error:   "monitor_error",
				Message: "Monitor is not running",
				Code:    http.StatusConflict,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "monitor_error",
			Message: "Failed to trigger poll",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Poll cycle triggered",
	})
}

// StopMonitor stops the email monitor, waiting for any in-flight poll cycle.
func (h *Handlers) StopMonitor(c *gin.Context) {
	if err := h.monitor.Stop(); err != nil {
		if errors.Is(err, monitor.ErrNotRunning) {
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Error:   "monitor_error",
				Message: "Monitor is not running",
				Code:    http.StatusConflict,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "monitor_error",
			Message: "Failed to stop monitor",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Monitor stopped successfully",
		"status":  string(h.monitor.State()),
	})
}
