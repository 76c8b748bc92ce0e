package models

import (
	"encoding/json"
	"time"
)

const (
	LogLevelInfo    = "info"
	LogLevelWarning = "warning"
	LogLevelError   = "error"
)

// SystemLog records workflow actions (job completed, review submitted,
// reviews revealed) and audited API writes.
type SystemLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Level     string    `gorm:"size:20;index" json:"level"` // info, warning, error
	Module    string    `gorm:"size:100;index" json:"module"`
	Action    string    `gorm:"size:200;index" json:"action"`
	Message   string    `gorm:"type:text" json:"message"`
	UserID    *uint     `json:"user_id"`
	JobID     *uint     `gorm:"index" json:"job_id"`
	IP        string    `gorm:"size:50" json:"ip"`
	UserAgent string    `gorm:"size:500" json:"user_agent"`
	Extra     string    `gorm:"type:text" json:"extra"` // JSON extra data
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (SystemLog) TableName() string { return "system_logs" }

// SetExtra stores v as the JSON extra payload. Values that fail to marshal
// are dropped.
func (l *SystemLog) SetExtra(v interface{}) {
	if v == nil {
		return
	}
	if b, err := json.Marshal(v); err == nil {
		l.Extra = string(b)
	}
}
