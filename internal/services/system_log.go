package services

import (
	"sync"
	"time"

	"github.com/huangang/campusgig/internal/models"
	"github.com/huangang/campusgig/pkg/logger"
	"gorm.io/gorm"
)

const ModuleReviews = "Reviews"

var (
	globalDB   *gorm.DB
	globalDBMu sync.RWMutex
)

// InitSystemLogger sets the database the audit helpers write to. Until it
// is called they only log.
func InitSystemLogger(db *gorm.DB) {
	globalDBMu.Lock()
	defer globalDBMu.Unlock()
	globalDB = db
}

func LogInfo(module, action, message string, userID *uint, ip, userAgent string, extra interface{}) {
	writeLog(models.LogLevelInfo, module, action, message, userID, nil, ip, userAgent, extra)
}

func LogWarning(module, action, message string, userID *uint, ip, userAgent string, extra interface{}) {
	writeLog(models.LogLevelWarning, module, action, message, userID, nil, ip, userAgent, extra)
}

func LogError(module, action, message string, userID *uint, ip, userAgent string, extra interface{}) {
	writeLog(models.LogLevelError, module, action, message, userID, nil, ip, userAgent, extra)
}

// LogJobEvent records a review workflow action on a job. Call it after the
// transaction that made the change has committed.
func LogJobEvent(action, message string, userID *uint, jobID uint, extra interface{}) {
	writeLog(models.LogLevelInfo, ModuleReviews, action, message, userID, &jobID, "", "", extra)
}

func writeLog(level, module, action, message string, userID, jobID *uint, ip, userAgent string, extra interface{}) {
	globalDBMu.RLock()
	db := globalDB
	globalDBMu.RUnlock()
	if db == nil {
		return
	}

	entry := &models.SystemLog{
		Level:     level,
		Module:    module,
		Action:    action,
		Message:   message,
		UserID:    userID,
		JobID:     jobID,
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: time.Now().UTC(),
	}
	entry.SetExtra(extra)
	if err := db.Create(entry).Error; err != nil {
		logger.Warnf("[SystemLog] Failed to write %s/%s: %v", module, action, err)
	}
}

type SystemLogService struct {
	db *gorm.DB
}

func NewSystemLogService(db *gorm.DB) *SystemLogService {
	return &SystemLogService{db: db}
}

type SystemLogListRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Level    string `form:"level"`
	Module   string `form:"module"`
	Action   string `form:"action"`
	JobID    uint   `form:"job_id"`
	UserID   uint   `form:"user_id"`
}

type SystemLogListResponse struct {
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Items    []models.SystemLog `json:"items"`
}

func (s *SystemLogService) List(req *SystemLogListRequest) (*SystemLogListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	var logs []models.SystemLog
	var total int64

	query := s.db.Model(&models.SystemLog{})

	if req.Level != "" {
		query = query.Where("level = ?", req.Level)
	}
	if req.Module != "" {
		query = query.Where("module = ?", req.Module)
	}
	if req.Action != "" {
		query = query.Where("action LIKE ?", "%"+req.Action+"%")
	}
	if req.JobID != 0 {
		query = query.Where("job_id = ?", req.JobID)
	}
	if req.UserID != 0 {
		query = query.Where("user_id = ?", req.UserID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
		return nil, err
	}

	return &SystemLogListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    logs,
	}, nil
}

// CleanupOldLogs deletes logs older than retentionDays and returns how many
// rows went.
func (s *SystemLogService) CleanupOldLogs(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoffTime := time.Now().UTC().AddDate(0, 0, -retentionDays)
	result := s.db.Where("created_at < ?", cutoffTime).Delete(&models.SystemLog{})
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}

// StartLogCleanupScheduler prunes old logs at startup and every 24 hours.
func StartLogCleanupScheduler(db *gorm.DB, retentionDays int) {
	go func() {
		service := NewSystemLogService(db)

		runCleanup(service, retentionDays)

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for range ticker.C {
			runCleanup(service, retentionDays)
		}
	}()
}

func runCleanup(service *SystemLogService, retentionDays int) {
	if retentionDays <= 0 {
		logger.Infof("[SystemLog] Log cleanup disabled (retention_days <= 0)")
		return
	}
	deleted, err := service.CleanupOldLogs(retentionDays)
	if err != nil {
		logger.Errorf("[SystemLog] Cleanup failed: %v", err)
		return
	}
	if deleted > 0 {
		logger.Infof("[SystemLog] Cleaned up %d logs older than %d days", deleted, retentionDays)
	}
}
