package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is one issued login instance. A row past its expiresAt is logically
// dead and gets deleted by the next verification that finds it (lazy reap).
type Session struct {
	ID         uuid.UUID `gorm:"type:uuid;column:id;primaryKey"`
	UserID     uuid.UUID `gorm:"type:uuid;column:user_id;index;not null"`
	Token      string    `gorm:"column:token;uniqueIndex:idx_sessions_token;not null"`
	DeviceInfo *string   `gorm:"column:device_info"`
	ExpiresAt  time.Time `gorm:"column:expires_at;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Session) TableName() string {
	return "sessions"
}
