package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/campusgig/internal/models"
	"github.com/huangang/campusgig/internal/services"
	"gorm.io/gorm"
)

// HealthHandler reports the state of the database, the notification queue
// and the SSE hub.
type HealthHandler struct {
	db    *gorm.DB
	queue services.TaskQueue
	hub   *services.SSEHub
}

func NewHealthHandler(db *gorm.DB, queue services.TaskQueue, hub *services.SSEHub) *HealthHandler {
	return &HealthHandler{db: db, queue: queue, hub: hub}
}

// CheckHealth
// GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := 200

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	}
	if overall != "healthy" {
		status = 503
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	sseClients := 0
	if h.hub != nil {
		sseClients = h.hub.ClientCount()
	}

	var pendingReviews int64
	if dbStatus == "ok" {
		h.db.WithContext(c.Request.Context()).Model(&models.Review{}).
			Where("is_visible = ?", false).
			Count(&pendingReviews)
	}

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "campusgig",
		"components": gin.H{
			"database":        dbStatus,
			"queue_mode":      queueMode,
			"sse_clients":     sseClients,
			"pending_reviews": pendingReviews,
		},
	})
}
