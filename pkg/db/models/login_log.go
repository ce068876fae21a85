package models

import (
	"time"

	"github.com/google/uuid"
)

// LoginLog records which business system (callback host) a user logged in
// from, powering the per-user source listing on the admin dashboard.
type LoginLog struct {
	ID          uuid.UUID `gorm:"type:uuid;column:id;primaryKey"`
	UserID      uuid.UUID `gorm:"type:uuid;column:user_id;index;not null"`
	SourceHost  string    `gorm:"column:source_host;not null"`
	LoginMethod string    `gorm:"column:login_method;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (LoginLog) TableName() string {
	return "user_login_logs"
}
