package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the durable identity: one row per natural person. unionId is the
// cross-application merge key; phoneNumber is the password-login key. Both are
// globally unique when present.
type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;column:id;primaryKey"`
	UnionID      *string    `gorm:"column:union_id;uniqueIndex:idx_users_union_id"`
	PhoneNumber  *string    `gorm:"column:phone_number;uniqueIndex:idx_users_phone_number"`
	Email        *string    `gorm:"column:email"`
	PasswordHash *string    `gorm:"column:password_hash"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`

	Accounts []Account `gorm:"foreignKey:UserID;references:ID"`
}

func (User) TableName() string {
	return "users"
}
