package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleStudent  = "student"
	RoleEmployer = "employer"
	RoleAdmin    = "admin"
)

// User is the display identity of a marketplace participant. Accounts and
// credentials are owned by the platform's identity service.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"uniqueIndex;size:100;not null" json:"username"`
	Nickname  string         `gorm:"size:100" json:"nickname"`
	Avatar    string         `gorm:"size:500" json:"avatar"`
	Role      string         `gorm:"size:50;default:student" json:"role"` // student, employer, admin
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string { return "users" }

// DisplayName prefers the nickname over the username.
func (u *User) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Username
}
