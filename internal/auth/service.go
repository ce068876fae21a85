package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/keenchase/auth-center/internal/identity"
	"github.com/keenchase/auth-center/internal/sessions"
	"github.com/keenchase/auth-center/internal/wechat"
	"github.com/keenchase/auth-center/pkg/callback"
	"github.com/keenchase/auth-center/pkg/db"
	"github.com/keenchase/auth-center/pkg/db/models"
	pkgerrors "github.com/keenchase/auth-center/pkg/errors"
	"github.com/keenchase/auth-center/pkg/logger"
	"github.com/keenchase/auth-center/pkg/metrics"
	"github.com/keenchase/auth-center/pkg/security"
)

const (
	// LoginMethodWeChat and LoginMethodPassword name the two ways into the
	// broker, recorded on sessions and the login trail.
	LoginMethodWeChat   = "wechat"
	LoginMethodPassword = "password"
)

// Service defines the behavior needed by the auth controller.
type Service interface {
	WeChatLogin(ctx context.Context, req WeChatLoginRequest) (*LoginResult, error)
	PasswordLogin(ctx context.Context, req PasswordLoginRequest) (*LoginResult, error)
	VerifyToken(ctx context.Context, token string) (*VerifyResult, error)
	UserInfo(ctx context.Context, token string) (*UserSummary, error)
	Logout(ctx context.Context, token string) error
}

type credentialVerifier interface {
	Exchange(ctx context.Context, loginType, code string) (*wechat.UserInfo, error)
}

type identityResolver interface {
	Resolve(ctx context.Context, profile identity.Profile) (*identity.Resolution, error)
}

type sessionIssuer interface {
	Issue(ctx context.Context, userID uuid.UUID, loginType string, deviceInfo *string) (string, time.Time, error)
	Verify(ctx context.Context, token string) (*sessions.Verification, error)
	Revoke(ctx context.Context, token string) error
}

type userRepository interface {
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
	FindByIDWithAccounts(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type loginRecorder interface {
	Record(ctx context.Context, userID uuid.UUID, sourceHost, loginMethod string) error
}

type service struct {
	verifier  credentialVerifier
	resolver  identityResolver
	issuer    sessionIssuer
	users     userRepository
	trail     loginRecorder
	callbacks *callback.Validator
	metrics   *metrics.AuthMetrics
	logg      *logger.Logger
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	Verifier          credentialVerifier
	Resolver          identityResolver
	Issuer            sessionIssuer
	UserRepo          userRepository
	LoginRecorder     loginRecorder
	CallbackValidator *callback.Validator
	Metrics           *metrics.AuthMetrics
	Logger            *logger.Logger
}

// NewService constructs an auth service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Verifier == nil {
		return nil, fmt.Errorf("credential verifier is required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("identity resolver is required")
	}
	if params.Issuer == nil {
		return nil, fmt.Errorf("session issuer is required")
	}
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.CallbackValidator == nil {
		return nil, fmt.Errorf("callback validator is required")
	}
	return &service{
		verifier:  params.Verifier,
		resolver:  params.Resolver,
		issuer:    params.Issuer,
		users:     params.UserRepo,
		trail:     params.LoginRecorder,
		callbacks: params.CallbackValidator,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

func (s *service) WeChatLogin(ctx context.Context, req WeChatLoginRequest) (*LoginResult, error) {
	if req.CallbackURL != "" {
		if err := s.callbacks.Validate(req.CallbackURL); err != nil {
			s.metrics.IncLogin(LoginMethodWeChat, "rejected_callback")
			return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidRequest, err, "callback rejected")
		}
	}

	loginType := req.LoginType
	if loginType == "" {
		loginType = wechat.LoginTypeOpen
	}

	info, err := s.verifier.Exchange(ctx, loginType, req.Code)
	if err != nil {
		s.metrics.IncLogin(LoginMethodWeChat, "failure")
		return nil, err
	}

	channel := models.ChannelWeb
	if loginType == wechat.LoginTypeMP {
		channel = models.ChannelMP
	}

	resolution, err := s.resolver.Resolve(ctx, identity.Profile{
		Provider:  models.ProviderWeChat,
		AppID:     info.AppID,
		OpenID:    info.OpenID,
		UnionID:   info.UnionID,
		Channel:   channel,
		Nickname:  info.Nickname,
		AvatarURL: info.AvatarURL,
	})
	if err != nil {
		s.metrics.IncLogin(LoginMethodWeChat, "failure")
		return nil, err
	}

	result, err := s.finishLogin(ctx, resolution.User.ID, LoginMethodWeChat, req.DeviceInfo, req.CallbackURL)
	if err != nil {
		s.metrics.IncLogin(LoginMethodWeChat, "failure")
		return nil, err
	}
	result.NewUser = resolution.UserCreated
	result.Mock = info.Mock
	s.metrics.IncLogin(LoginMethodWeChat, "success")

	if s.logg != nil {
		ctx = s.logg.WithUserID(ctx, resolution.User.ID.String())
		ctx = s.logg.WithLoginMethod(ctx, LoginMethodWeChat)
		s.logg.Info(ctx, "wechat login completed")
	}
	return result, nil
}

func (s *service) PasswordLogin(ctx context.Context, req PasswordLoginRequest) (*LoginResult, error) {
	if !security.ValidPhoneNumber(req.Phone) {
		s.metrics.IncLogin(LoginMethodPassword, "failure")
		return nil, pkgerrors.New(pkgerrors.CodeInvalidRequest, "invalid phone number format")
	}
	if req.CallbackURL != "" {
		if err := s.callbacks.Validate(req.CallbackURL); err != nil {
			s.metrics.IncLogin(LoginMethodPassword, "rejected_callback")
			return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidRequest, err, "callback rejected")
		}
	}

	user, err := s.users.FindByPhone(ctx, req.Phone)
	if err != nil {
		s.metrics.IncLogin(LoginMethodPassword, "failure")
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeUserNotFound, "no user with this phone number")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find user by phone")
	}
	if user.PasswordHash == nil {
		s.metrics.IncLogin(LoginMethodPassword, "failure")
		return nil, pkgerrors.New(pkgerrors.CodePasswordNotSet, "password login not set up for this user")
	}

	match, err := security.VerifyPassword(req.Password, *user.PasswordHash)
	if err != nil {
		s.metrics.IncLogin(LoginMethodPassword, "failure")
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !match {
		s.metrics.IncLogin(LoginMethodPassword, "failure")
		return nil, pkgerrors.New(pkgerrors.CodeInvalidCredentials, "wrong password")
	}

	result, err := s.finishLogin(ctx, user.ID, LoginMethodPassword, req.DeviceInfo, req.CallbackURL)
	if err != nil {
		s.metrics.IncLogin(LoginMethodPassword, "failure")
		return nil, err
	}
	s.metrics.IncLogin(LoginMethodPassword, "success")

	if s.logg != nil {
		ctx = s.logg.WithUserID(ctx, user.ID.String())
		ctx = s.logg.WithLoginMethod(ctx, LoginMethodPassword)
		s.logg.Info(ctx, "password login completed")
	}
	return result, nil
}

// finishLogin mints the session and records the bookkeeping shared by both
// flows. Trail and last-login failures are non-fatal.
func (s *service) finishLogin(ctx context.Context, userID uuid.UUID, method string, deviceInfo *string, callbackURL string) (*LoginResult, error) {
	token, expiresAt, err := s.issuer.Issue(ctx, userID, method, deviceInfo)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, userID, time.Now()); err != nil && s.logg != nil {
		s.logg.Warn(ctx, "failed to update last login: "+err.Error())
	}
	if s.trail != nil {
		if err := s.trail.Record(ctx, userID, callback.Host(callbackURL), method); err != nil && s.logg != nil {
			s.logg.Warn(ctx, "failed to record login source: "+err.Error())
		}
	}

	user, err := s.users.FindByIDWithAccounts(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user after login")
	}

	return &LoginResult{
		Token:       token,
		ExpiresAt:   expiresAt,
		User:        UserFromModel(user),
		CallbackURL: callbackURL,
	}, nil
}

func (s *service) VerifyToken(ctx context.Context, token string) (*VerifyResult, error) {
	verification, err := s.issuer.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByIDWithAccounts(ctx, verification.UserID)
	if err != nil {
		if db.IsNotFound(err) {
			// User deleted since issuance. Drop the orphaned session.
			_ = s.issuer.Revoke(ctx, token)
			return nil, pkgerrors.New(pkgerrors.CodeTokenInvalid, "user no longer exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user for token")
	}

	return &VerifyResult{
		Valid:     true,
		UserID:    verification.UserID,
		LoginType: verification.LoginType,
		ExpiresAt: verification.ExpiresAt,
		User:      UserFromModel(user),
	}, nil
}

func (s *service) UserInfo(ctx context.Context, token string) (*UserSummary, error) {
	result, err := s.VerifyToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return &result.User, nil
}

func (s *service) Logout(ctx context.Context, token string) error {
	return s.issuer.Revoke(ctx, token)
}
