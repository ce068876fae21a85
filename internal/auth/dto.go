package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/keenchase/auth-center/pkg/db/models"
)

// WeChatLoginRequest carries a provider callback into the broker. LoginType
// distinguishes the QR website flow from the embedded-browser flow.
type WeChatLoginRequest struct {
	Code        string  `json:"code" validate:"required"`
	LoginType   string  `json:"loginType" validate:"omitempty,oneof=open mp"`
	CallbackURL string  `json:"callbackUrl" validate:"omitempty"`
	DeviceInfo  *string `json:"deviceInfo,omitempty"`
}

// PasswordLoginRequest is the phone and password login payload.
type PasswordLoginRequest struct {
	Phone       string  `json:"phone" validate:"required"`
	Password    string  `json:"password" validate:"required"`
	CallbackURL string  `json:"callbackUrl" validate:"omitempty"`
	DeviceInfo  *string `json:"deviceInfo,omitempty"`
}

// VerifyTokenRequest asks whether a session token is still live.
type VerifyTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// AccountSummary is one login entry point on a user, shaped for API output.
type AccountSummary struct {
	AppID     string `json:"appId"`
	OpenID    string `json:"openId"`
	Type      string `json:"type"`
	Nickname  string `json:"nickname,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// UserSummary is the caller-facing view of a user.
type UserSummary struct {
	ID          uuid.UUID        `json:"id"`
	UnionID     *string          `json:"unionId,omitempty"`
	PhoneNumber *string          `json:"phoneNumber,omitempty"`
	Email       *string          `json:"email,omitempty"`
	HasPassword bool             `json:"hasPassword"`
	LastLoginAt *time.Time       `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	Accounts    []AccountSummary `json:"accounts,omitempty"`
}

// LoginResult is returned by both login flows.
type LoginResult struct {
	Token       string      `json:"token"`
	ExpiresAt   time.Time   `json:"expiresAt"`
	User        UserSummary `json:"user"`
	NewUser     bool        `json:"newUser"`
	CallbackURL string      `json:"callbackUrl,omitempty"`

	// Mock marks identities produced without real provider credentials.
	Mock bool `json:"mock,omitempty"`
}

// VerifyResult is returned for a live session token.
type VerifyResult struct {
	Valid     bool        `json:"valid"`
	UserID    uuid.UUID   `json:"userId"`
	LoginType string      `json:"loginType"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      UserSummary `json:"user"`
}

// UserFromModel shapes a user row for API output.
func UserFromModel(user *models.User) UserSummary {
	summary := UserSummary{
		ID:          user.ID,
		UnionID:     user.UnionID,
		PhoneNumber: user.PhoneNumber,
		Email:       user.Email,
		HasPassword: user.PasswordHash != nil,
		LastLoginAt: user.LastLoginAt,
		CreatedAt:   user.CreatedAt,
	}
	for _, account := range user.Accounts {
		summary.Accounts = append(summary.Accounts, AccountSummary{
			AppID:     account.AppID,
			OpenID:    account.OpenID,
			Type:      account.Type,
			Nickname:  account.Nickname,
			AvatarURL: account.AvatarURL,
		})
	}
	return summary
}
