package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/keenchase/auth-center/pkg/db/models"
	"github.com/keenchase/auth-center/pkg/pagination"
	"gorm.io/gorm"
)

// Repository exposes user persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user row.
func (r *Repository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByIDWithAccounts loads a user and preloads their login entry points.
func (r *Repository) FindByIDWithAccounts(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Preload("Accounts").First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByUnionID retrieves the user holding the given unionId.
func (r *Repository) FindByUnionID(ctx context.Context, unionID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("union_id = ?", unionID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByPhone retrieves the user holding the given phone number.
func (r *Repository) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("phone_number = ?", phone).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateLastLogin refreshes the user's last_login_at timestamp.
func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

// UpdateUnionID backfills the cross-application merge key on a user first
// seen through a flow that did not carry it.
func (r *Repository) UpdateUnionID(ctx context.Context, id uuid.UUID, unionID string) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("union_id", unionID).Error
}

// UpdatePhonePassword writes the password hash and, when phone is non-empty,
// the phone number in the same statement. An empty phone leaves the stored
// number untouched so a password reset does not clear phone login.
func (r *Repository) UpdatePhonePassword(ctx context.Context, id uuid.UUID, phone, passwordHash string) error {
	columns := map[string]any{"password_hash": passwordHash}
	if phone != "" {
		columns["phone_number"] = phone
	}
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumns(columns).Error
}

// List returns users newest first with their accounts preloaded, using cursor
// pagination. The caller passes a buffered limit to detect a next page.
func (r *Repository) List(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.User, error) {
	query := r.db.WithContext(ctx).
		Preload("Accounts").
		Order("created_at DESC, id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.User
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the total number of users.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountWithPhone returns how many users can log in with phone and password.
func (r *Repository) CountWithPhone(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("phone_number IS NOT NULL AND password_hash IS NOT NULL").
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountWithWeChat returns how many users have at least one bound account.
func (r *Repository) CountWithWeChat(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id IN (?)", r.db.Model(&models.Account{}).Select("user_id")).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
