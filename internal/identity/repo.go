package identity

import (
	"context"

	"github.com/google/uuid"
	"github.com/keenchase/auth-center/pkg/db/models"
	"gorm.io/gorm"
)

// AccountRepository exposes persistence for login entry points.
type AccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository constructs an accounts repo bound to the provided GORM DB.
func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account row.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

// FindByEntryPoint loads the account matching the (provider, appId, openId)
// uniqueness triple.
func (r *AccountRepository) FindByEntryPoint(ctx context.Context, provider, appID, openID string) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).
		Where("provider = ? AND app_id = ? AND open_id = ?", provider, appID, openID).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// UpdateProfile refreshes the display fields captured from the provider.
func (r *AccountRepository) UpdateProfile(ctx context.Context, id uuid.UUID, nickname, avatarURL string) error {
	return r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"nickname":   nickname,
			"avatar_url": avatarURL,
		}).Error
}
