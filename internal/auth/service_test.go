package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/keenchase/auth-center/internal/identity"
	"github.com/keenchase/auth-center/internal/loginlog"
	"github.com/keenchase/auth-center/internal/sessions"
	"github.com/keenchase/auth-center/internal/users"
	"github.com/keenchase/auth-center/internal/wechat"
	"github.com/keenchase/auth-center/pkg/callback"
	"github.com/keenchase/auth-center/pkg/config"
	"github.com/keenchase/auth-center/pkg/db/models"
	pkgerrors "github.com/keenchase/auth-center/pkg/errors"
	"github.com/keenchase/auth-center/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubVerifier struct {
	infos map[string]*wechat.UserInfo
	err   error
}

func (s *stubVerifier) Exchange(_ context.Context, loginType, code string) (*wechat.UserInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	if info, ok := s.infos[code]; ok {
		return info, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeCredentialExpired, "authorization code expired or already used")
}

func setupAuthTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  union_id TEXT,
  phone_number TEXT,
  email TEXT,
  password_hash TEXT,
  last_login_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_union_id ON users (union_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_phone_number ON users (phone_number);
CREATE TABLE IF NOT EXISTS accounts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  provider TEXT NOT NULL,
  app_id TEXT NOT NULL,
  open_id TEXT NOT NULL,
  type TEXT NOT NULL,
  nickname TEXT NOT NULL DEFAULT '',
  avatar_url TEXT NOT NULL DEFAULT '',
  created_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_entry_point ON accounts (provider, app_id, open_id);
CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  token TEXT NOT NULL,
  device_info TEXT,
  expires_at DATETIME NOT NULL,
  created_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_token ON sessions (token);
CREATE TABLE IF NOT EXISTS user_login_logs (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  source_host TEXT NOT NULL,
  login_method TEXT NOT NULL,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

type testHarness struct {
	db       *gorm.DB
	service  Service
	verifier *stubVerifier
	clock    *time.Time
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	db := setupAuthTestDB(t)

	userRepo := users.NewRepository(db)
	resolver, err := identity.NewResolver(identity.ResolverParams{
		UserRepo:    userRepo,
		AccountRepo: identity.NewAccountRepository(db),
	})
	require.NoError(t, err)

	now := time.Now()
	clock := &now
	issuer, err := sessions.NewIssuer(sessions.IssuerParams{
		SessionRepo: sessions.NewRepository(db),
		JWTConfig: config.JWTConfig{
			Secret:     "auth-service-test-secret",
			Issuer:     "auth-center",
			SessionTTL: time.Hour,
		},
		Now: func() time.Time { return *clock },
	})
	require.NoError(t, err)

	verifier := &stubVerifier{infos: map[string]*wechat.UserInfo{}}
	svc, err := NewService(ServiceParams{
		Verifier:          verifier,
		Resolver:          resolver,
		Issuer:            issuer,
		UserRepo:          userRepo,
		LoginRecorder:     loginlog.NewRepository(db),
		CallbackValidator: callback.NewValidator(config.CallbackConfig{}),
	})
	require.NoError(t, err)

	return &testHarness{db: db, service: svc, verifier: verifier, clock: clock}
}

func (h *testHarness) seedPhoneUser(t *testing.T, phone, password string) uuid.UUID {
	t.Helper()
	hash, err := security.HashPassword(password, config.PasswordConfig{
		ArgonMemoryKB: 8, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32,
	})
	require.NoError(t, err)

	user := &models.User{ID: uuid.New(), PhoneNumber: &phone, PasswordHash: &hash, CreatedAt: time.Now()}
	require.NoError(t, h.db.Create(user).Error)
	return user.ID
}

func TestWeChatLoginCreatesAndReusesUser(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.verifier.infos["code-1"] = &wechat.UserInfo{
		AppID: "wx-open", OpenID: "open-1", UnionID: "union-1", Nickname: "nick",
	}

	first, err := h.service.WeChatLogin(ctx, WeChatLoginRequest{
		Code:        "code-1",
		LoginType:   wechat.LoginTypeOpen,
		CallbackURL: "https://pr.crazyaigc.com/cb",
	})
	require.NoError(t, err)
	assert.True(t, first.NewUser)
	assert.NotEmpty(t, first.Token)
	assert.Equal(t, "https://pr.crazyaigc.com/cb", first.CallbackURL)
	require.Len(t, first.User.Accounts, 1)
	assert.Equal(t, "open-1", first.User.Accounts[0].OpenID)

	second, err := h.service.WeChatLogin(ctx, WeChatLoginRequest{Code: "code-1"})
	require.NoError(t, err)
	assert.False(t, second.NewUser)
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.NotEqual(t, first.Token, second.Token)
}

func TestWeChatLoginMergesAcrossApplications(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.verifier.infos["qr-code"] = &wechat.UserInfo{AppID: "wx-open", OpenID: "open-1", UnionID: "union-1"}
	h.verifier.infos["mp-code"] = &wechat.UserInfo{AppID: "wx-mp", OpenID: "mp-open-9", UnionID: "union-1"}

	qr, err := h.service.WeChatLogin(ctx, WeChatLoginRequest{Code: "qr-code", LoginType: wechat.LoginTypeOpen})
	require.NoError(t, err)
	mp, err := h.service.WeChatLogin(ctx, WeChatLoginRequest{Code: "mp-code", LoginType: wechat.LoginTypeMP})
	require.NoError(t, err)

	assert.Equal(t, qr.User.ID, mp.User.ID)
	assert.False(t, mp.NewUser)
	assert.Len(t, mp.User.Accounts, 2)
}

func TestWeChatLoginExpiredCode(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.service.WeChatLogin(context.Background(), WeChatLoginRequest{Code: "unknown"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCredentialExpired))
}

func TestWeChatLoginRejectsBadCallback(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.service.WeChatLogin(context.Background(), WeChatLoginRequest{
		Code:        "code-1",
		CallbackURL: "https://evil.com/cb",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidRequest))
}

func TestPasswordLoginSuccess(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	userID := h.seedPhoneUser(t, "13800138000", "secret123")

	result, err := h.service.PasswordLogin(ctx, PasswordLoginRequest{
		Phone:       "13800138000",
		Password:    "secret123",
		CallbackURL: "http://localhost:3000/cb",
	})
	require.NoError(t, err)
	assert.Equal(t, userID, result.User.ID)
	assert.True(t, result.User.HasPassword)
	assert.NotEmpty(t, result.Token)

	verification, err := h.service.VerifyToken(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, userID, verification.UserID)
	assert.Equal(t, LoginMethodPassword, verification.LoginType)
}

func TestPasswordLoginFailures(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.seedPhoneUser(t, "13800138000", "secret123")

	noHash := "13900139000"
	require.NoError(t, h.db.Create(&models.User{ID: uuid.New(), PhoneNumber: &noHash, CreatedAt: time.Now()}).Error)

	cases := []struct {
		name string
		req  PasswordLoginRequest
		code pkgerrors.Code
	}{
		{"bad phone format", PasswordLoginRequest{Phone: "12345", Password: "secret123"}, pkgerrors.CodeInvalidRequest},
		{"unknown phone", PasswordLoginRequest{Phone: "13700137000", Password: "secret123"}, pkgerrors.CodeUserNotFound},
		{"password not set", PasswordLoginRequest{Phone: noHash, Password: "secret123"}, pkgerrors.CodePasswordNotSet},
		{"wrong password", PasswordLoginRequest{Phone: "13800138000", Password: "nope12345"}, pkgerrors.CodeInvalidCredentials},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.service.PasswordLogin(ctx, tc.req)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}
}

func TestVerifyTokenExpiredSessionReaped(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.seedPhoneUser(t, "13800138000", "secret123")

	result, err := h.service.PasswordLogin(ctx, PasswordLoginRequest{Phone: "13800138000", Password: "secret123"})
	require.NoError(t, err)

	*h.clock = h.clock.Add(2 * time.Hour)

	_, err = h.service.VerifyToken(ctx, result.Token)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeTokenExpired))

	// The row is gone, so a second check is plain invalid.
	_, err = h.service.VerifyToken(ctx, result.Token)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeTokenInvalid))
}

func TestLogoutRevokesSession(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.seedPhoneUser(t, "13800138000", "secret123")

	result, err := h.service.PasswordLogin(ctx, PasswordLoginRequest{Phone: "13800138000", Password: "secret123"})
	require.NoError(t, err)

	require.NoError(t, h.service.Logout(ctx, result.Token))

	_, err = h.service.VerifyToken(ctx, result.Token)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeTokenInvalid))

	// Idempotent.
	assert.NoError(t, h.service.Logout(ctx, result.Token))
}

func TestUserInfo(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.verifier.infos["code-1"] = &wechat.UserInfo{AppID: "wx-open", OpenID: "open-1", UnionID: "union-1"}

	login, err := h.service.WeChatLogin(ctx, WeChatLoginRequest{Code: "code-1"})
	require.NoError(t, err)

	info, err := h.service.UserInfo(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, login.User.ID, info.ID)
	require.NotNil(t, info.UnionID)
	assert.Equal(t, "union-1", *info.UnionID)
}

func TestLoginRecordsSourceTrail(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	userID := h.seedPhoneUser(t, "13800138000", "secret123")

	_, err := h.service.PasswordLogin(ctx, PasswordLoginRequest{
		Phone: "13800138000", Password: "secret123", CallbackURL: "https://pr.crazyaigc.com/cb",
	})
	require.NoError(t, err)

	sources, err := loginlog.NewRepository(h.db).SourcesForUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "pr.crazyaigc.com", sources[0].SourceHost)
	assert.EqualValues(t, 1, sources[0].LoginCount)
}
