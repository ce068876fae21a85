package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ProviderWeChat = "wechat"

	ChannelWeb     = "web"
	ChannelMP      = "mp"
	ChannelMiniApp = "miniapp"
)

// Account is one login entry point bound to a User. openId only identifies an
// entry point together with its provider and appId, never a person.
type Account struct {
	ID        uuid.UUID `gorm:"type:uuid;column:id;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;column:user_id;index;not null"`
	Provider  string    `gorm:"column:provider;not null;uniqueIndex:idx_accounts_entry_point"`
	AppID     string    `gorm:"column:app_id;not null;uniqueIndex:idx_accounts_entry_point"`
	OpenID    string    `gorm:"column:open_id;not null;uniqueIndex:idx_accounts_entry_point"`
	Type      string    `gorm:"column:type;not null"`
	Nickname  string    `gorm:"column:nickname"`
	AvatarURL string    `gorm:"column:avatar_url"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Account) TableName() string {
	return "accounts"
}
