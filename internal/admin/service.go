package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/keenchase/auth-center/internal/loginlog"
	"github.com/keenchase/auth-center/pkg/config"
	"github.com/keenchase/auth-center/pkg/db"
	"github.com/keenchase/auth-center/pkg/db/models"
	pkgerrors "github.com/keenchase/auth-center/pkg/errors"
	"github.com/keenchase/auth-center/pkg/logger"
	"github.com/keenchase/auth-center/pkg/pagination"
	"github.com/keenchase/auth-center/pkg/security"
)

const maskVisiblePrefix = 10

// UserRow is one user in the admin listing. Provider identifiers are masked;
// the dashboard needs to correlate rows, not harvest identities.
type UserRow struct {
	ID           uuid.UUID    `json:"id"`
	UnionID      *string      `json:"unionId,omitempty"`
	PhoneNumber  *string      `json:"phoneNumber,omitempty"`
	Email        *string      `json:"email,omitempty"`
	HasPassword  bool         `json:"hasPassword"`
	AccountCount int          `json:"accountCount"`
	LoginMethods []string     `json:"loginMethods"`
	Accounts     []AccountRow `json:"accounts,omitempty"`
	LastLoginAt  *time.Time   `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// AccountRow is one masked entry point in the admin listing.
type AccountRow struct {
	AppID    string `json:"appId"`
	OpenID   string `json:"openId"`
	Type     string `json:"type"`
	Nickname string `json:"nickname,omitempty"`
}

// ListUsersResult is a page of the user listing.
type ListUsersResult struct {
	Users      []UserRow `json:"users"`
	NextCursor string    `json:"nextCursor,omitempty"`
	HasMore    bool      `json:"hasMore"`

	// Aggregates ride along so the dashboard renders summary cards
	// without a second round trip.
	Total        int64 `json:"total"`
	WithPassword int64 `json:"withPassword"`
	WithWeChat   int64 `json:"withWechat"`
}

// Statistics summarizes the user base for the dashboard.
type Statistics struct {
	TotalUsers      int64 `json:"totalUsers"`
	UsersWithPhone  int64 `json:"usersWithPhone"`
	UsersWithWeChat int64 `json:"usersWithWeChat"`
	ActiveSessions  int64 `json:"activeSessions"`
	LoginsLast24h   int64 `json:"loginsLast24h"`
}

// SetPhonePasswordRequest provisions phone login for an existing user. Phone
// may be omitted to reset only the password, keeping the stored number.
type SetPhonePasswordRequest struct {
	UserID   string `json:"userId" validate:"required,uuid"`
	Phone    string `json:"phone" validate:"omitempty"`
	Password string `json:"password" validate:"required"`
}

// Service defines the behavior needed by the admin controller.
type Service interface {
	ListUsers(ctx context.Context, params pagination.Params) (*ListUsersResult, error)
	GetStatistics(ctx context.Context) (*Statistics, error)
	GetUserLoginSources(ctx context.Context, userID uuid.UUID) ([]loginlog.Source, error)
	SetPhonePassword(ctx context.Context, req SetPhonePasswordRequest) error
}

type userRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
	UpdatePhonePassword(ctx context.Context, id uuid.UUID, phone, passwordHash string) error
	List(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.User, error)
	Count(ctx context.Context) (int64, error)
	CountWithPhone(ctx context.Context) (int64, error)
	CountWithWeChat(ctx context.Context) (int64, error)
}

type sessionCounter interface {
	CountActive(ctx context.Context) (int64, error)
}

type loginTrail interface {
	SourcesForUser(ctx context.Context, userID uuid.UUID) ([]loginlog.Source, error)
	CountSince(ctx context.Context, cutoff time.Time) (int64, error)
}

type service struct {
	users       userRepository
	sessions    sessionCounter
	trail       loginTrail
	passwordCfg config.PasswordConfig
	logg        *logger.Logger
}

// ServiceParams bundles the dependencies required to build an admin service.
type ServiceParams struct {
	UserRepo       userRepository
	SessionCounter sessionCounter
	LoginTrail     loginTrail
	PasswordConfig config.PasswordConfig
	Logger         *logger.Logger
}

// NewService constructs an admin service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.SessionCounter == nil {
		return nil, fmt.Errorf("session counter is required")
	}
	if params.LoginTrail == nil {
		return nil, fmt.Errorf("login trail is required")
	}
	return &service{
		users:       params.UserRepo,
		sessions:    params.SessionCounter,
		trail:       params.LoginTrail,
		passwordCfg: params.PasswordConfig,
		logg:        params.Logger,
	}, nil
}

func (s *service) ListUsers(ctx context.Context, params pagination.Params) (*ListUsersResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidRequest, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.users.List(ctx, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list users")
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	result := &ListUsersResult{Users: make([]UserRow, 0, len(rows)), HasMore: hasMore}
	for _, user := range rows {
		result.Users = append(result.Users, rowFromModel(&user))
	}
	if hasMore && len(rows) > 0 {
		last := rows[len(rows)-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	if result.Total, err = s.users.Count(ctx); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count users")
	}
	if result.WithPassword, err = s.users.CountWithPhone(ctx); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count phone users")
	}
	if result.WithWeChat, err = s.users.CountWithWeChat(ctx); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count wechat users")
	}
	return result, nil
}

func (s *service) GetStatistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{}
	var err error

	if stats.TotalUsers, err = s.users.Count(ctx); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count users")
	}
	if stats.UsersWithPhone, err = s.users.CountWithPhone(ctx); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count phone users")
	}
	if stats.UsersWithWeChat, err = s.users.CountWithWeChat(ctx); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count wechat users")
	}
	if stats.ActiveSessions, err = s.sessions.CountActive(ctx); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count active sessions")
	}
	if stats.LoginsLast24h, err = s.trail.CountSince(ctx, time.Now().Add(-24*time.Hour)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count recent logins")
	}
	return stats, nil
}

func (s *service) GetUserLoginSources(ctx context.Context, userID uuid.UUID) ([]loginlog.Source, error) {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeUserNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}

	sources, err := s.trail.SourcesForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load login sources")
	}
	return sources, nil
}

func (s *service) SetPhonePassword(ctx context.Context, req SetPhonePasswordRequest) error {
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeInvalidRequest, "invalid user id")
	}
	if req.Phone != "" && !security.ValidPhoneNumber(req.Phone) {
		return pkgerrors.New(pkgerrors.CodeInvalidRequest, "invalid phone number format")
	}
	if err := security.CheckPasswordStrength(req.Password); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInvalidRequest, err, "weak password")
	}

	if _, err := s.users.FindByID(ctx, userID); err != nil {
		if db.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeUserNotFound, "user not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}

	if req.Phone != "" {
		if holder, err := s.users.FindByPhone(ctx, req.Phone); err == nil && holder.ID != userID {
			return pkgerrors.New(pkgerrors.CodePhoneNumberInUse, "phone number belongs to another user")
		} else if err != nil && !db.IsNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check phone holder")
		}
	}

	hash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	if err := s.users.UpdatePhonePassword(ctx, userID, req.Phone, hash); err != nil {
		// The unique index closes the race between the check above and the
		// write.
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.New(pkgerrors.CodePhoneNumberInUse, "phone number belongs to another user")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update phone and password")
	}

	if s.logg != nil {
		ctx = s.logg.WithUserID(ctx, userID.String())
		s.logg.Info(ctx, "phone login provisioned by admin")
	}
	return nil
}

func rowFromModel(user *models.User) UserRow {
	row := UserRow{
		ID:           user.ID,
		UnionID:      maskPtr(user.UnionID),
		PhoneNumber:  maskPhonePtr(user.PhoneNumber),
		Email:        user.Email,
		HasPassword:  user.PasswordHash != nil,
		AccountCount: len(user.Accounts),
		LastLoginAt:  user.LastLoginAt,
		CreatedAt:    user.CreatedAt,
	}
	if len(user.Accounts) > 0 {
		row.LoginMethods = append(row.LoginMethods, "wechat")
	}
	if user.PhoneNumber != nil && user.PasswordHash != nil {
		row.LoginMethods = append(row.LoginMethods, "password")
	}
	for _, account := range user.Accounts {
		row.Accounts = append(row.Accounts, AccountRow{
			AppID:    account.AppID,
			OpenID:   mask(account.OpenID),
			Type:     account.Type,
			Nickname: account.Nickname,
		})
	}
	return row
}

// mask keeps a correlatable prefix and hides the rest.
func mask(value string) string {
	if len(value) <= maskVisiblePrefix {
		return value
	}
	return value[:maskVisiblePrefix] + "..."
}

func maskPtr(value *string) *string {
	if value == nil {
		return nil
	}
	masked := mask(*value)
	return &masked
}

// maskPhonePtr hides the middle digits of an 11-digit phone number.
func maskPhonePtr(value *string) *string {
	if value == nil {
		return nil
	}
	phone := *value
	if len(phone) == 11 {
		phone = phone[:3] + "****" + phone[7:]
	}
	return &phone
}
