package loginlog

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/keenchase/auth-center/pkg/db/models"
	"gorm.io/gorm"
)

// Source aggregates a user's logins from one business system.
type Source struct {
	SourceHost  string    `json:"sourceHost"`
	LoginCount  int64     `json:"loginCount"`
	LastLoginAt time.Time `json:"lastLoginAt"`
}

// Repository persists and aggregates login trail rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a login log repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Record appends one login event. sourceHost may be empty when the caller
// supplied no callback URL.
func (r *Repository) Record(ctx context.Context, userID uuid.UUID, sourceHost, loginMethod string) error {
	if sourceHost == "" {
		sourceHost = "unknown"
	}
	row := &models.LoginLog{
		ID:          uuid.New(),
		UserID:      userID,
		SourceHost:  sourceHost,
		LoginMethod: loginMethod,
		CreatedAt:   time.Now(),
	}
	return r.db.WithContext(ctx).Create(row).Error
}

// SourcesForUser returns the user's login sources, most recently used first.
// Aggregation happens here rather than in SQL; a MAX(created_at) column scans
// back as text on some drivers instead of time.Time.
func (r *Repository) SourcesForUser(ctx context.Context, userID uuid.UUID) ([]Source, error) {
	var rows []models.LoginLog
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(rows))
	sources := make([]Source, 0, len(rows))
	for _, row := range rows {
		i, ok := index[row.SourceHost]
		if !ok {
			i = len(sources)
			index[row.SourceHost] = i
			sources = append(sources, Source{SourceHost: row.SourceHost})
		}
		sources[i].LoginCount++
		if row.CreatedAt.After(sources[i].LastLoginAt) {
			sources[i].LastLoginAt = row.CreatedAt
		}
	}

	sort.Slice(sources, func(a, b int) bool {
		return sources[a].LastLoginAt.After(sources[b].LastLoginAt)
	})
	return sources, nil
}

// CountSince returns how many logins happened at or after the cutoff.
func (r *Repository) CountSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LoginLog{}).
		Where("created_at >= ?", cutoff).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
