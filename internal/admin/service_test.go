package admin

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/keenchase/auth-center/internal/loginlog"
	"github.com/keenchase/auth-center/internal/sessions"
	"github.com/keenchase/auth-center/internal/users"
	"github.com/keenchase/auth-center/pkg/config"
	"github.com/keenchase/auth-center/pkg/db/models"
	pkgerrors "github.com/keenchase/auth-center/pkg/errors"
	"github.com/keenchase/auth-center/pkg/pagination"
	"github.com/keenchase/auth-center/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupAdminTestDB(t *testing.T) *gorm.DB {
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
CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  token TEXT NOT NULL,
  device_info TEXT,
  expires_at DATETIME NOT NULL,
  created_at DATETIME
);
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

func newAdminService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		UserRepo:       users.NewRepository(db),
		SessionCounter: sessions.NewRepository(db),
		LoginTrail:     loginlog.NewRepository(db),
		PasswordConfig: config.PasswordConfig{
			ArgonMemoryKB: 8, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32,
		},
	})
	require.NoError(t, err)
	return svc
}

func seedUser(t *testing.T, db *gorm.DB, unionID string, createdAt time.Time) *models.User {
	t.Helper()
	user := &models.User{ID: uuid.New(), CreatedAt: createdAt}
	if unionID != "" {
		user.UnionID = &unionID
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestListUsersMasksIdentifiers(t *testing.T) {
	db := setupAdminTestDB(t)
	svc := newAdminService(t, db)
	ctx := context.Background()

	user := seedUser(t, db, "union-id-that-is-long", time.Now())
	phone := "13800138000"
	hash := "$argon2id$v=19$m=8,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGhhc2g"
	require.NoError(t, db.Model(user).UpdateColumns(map[string]any{"phone_number": phone, "password_hash": hash}).Error)
	require.NoError(t, db.Create(&models.Account{
		ID: uuid.New(), UserID: user.ID, Provider: models.ProviderWeChat,
		AppID: "wx-open", OpenID: "openid-that-is-long", Type: models.ChannelWeb,
	}).Error)

	result, err := svc.ListUsers(ctx, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, result.Users, 1)

	row := result.Users[0]
	require.NotNil(t, row.UnionID)
	assert.Equal(t, "union-id-t...", *row.UnionID)
	require.NotNil(t, row.PhoneNumber)
	assert.Equal(t, "138****8000", *row.PhoneNumber)
	assert.Equal(t, 1, row.AccountCount)
	assert.ElementsMatch(t, []string{"wechat", "password"}, row.LoginMethods)
	require.Len(t, row.Accounts, 1)
	assert.Equal(t, "openid-tha...", row.Accounts[0].OpenID)
	assert.True(t, row.HasPassword)

	assert.Equal(t, int64(1), result.Total)
	assert.Equal(t, int64(1), result.WithPassword)
	assert.Equal(t, int64(1), result.WithWeChat)
}

func TestListUsersPagination(t *testing.T) {
	db := setupAdminTestDB(t)
	svc := newAdminService(t, db)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		seedUser(t, db, fmt.Sprintf("union-%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	first, err := svc.ListUsers(ctx, pagination.Params{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, first.Users, 2)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.ListUsers(ctx, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	assert.Len(t, second.Users, 2)
	assert.True(t, second.HasMore)

	third, err := svc.ListUsers(ctx, pagination.Params{Limit: 2, Cursor: second.NextCursor})
	require.NoError(t, err)
	assert.Len(t, third.Users, 1)
	assert.False(t, third.HasMore)

	seen := map[uuid.UUID]bool{}
	for _, page := range [][]UserRow{first.Users, second.Users, third.Users} {
		for _, row := range page {
			assert.False(t, seen[row.ID], "user %s appeared twice", row.ID)
			seen[row.ID] = true
		}
	}
	assert.Len(t, seen, 5)
}

func TestListUsersBadCursor(t *testing.T) {
	db := setupAdminTestDB(t)
	svc := newAdminService(t, db)

	_, err := svc.ListUsers(context.Background(), pagination.Params{Cursor: "not-base64!!"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidRequest))
}

func TestGetStatistics(t *testing.T) {
	db := setupAdminTestDB(t)
	svc := newAdminService(t, db)
	ctx := context.Background()

	withPhone := seedUser(t, db, "union-1", time.Now())
	phone := "13800138000"
	hash := "x"
	require.NoError(t, db.Model(withPhone).UpdateColumns(map[string]any{"phone_number": phone, "password_hash": hash}).Error)

	withWeChat := seedUser(t, db, "union-2", time.Now())
	require.NoError(t, db.Create(&models.Account{
		ID: uuid.New(), UserID: withWeChat.ID, Provider: models.ProviderWeChat,
		AppID: "wx-open", OpenID: "open-1", Type: models.ChannelWeb,
	}).Error)

	require.NoError(t, db.Create(&models.Session{
		ID: uuid.New(), UserID: withWeChat.ID, Token: "t1", ExpiresAt: time.Now().Add(time.Hour),
	}).Error)
	require.NoError(t, db.Create(&models.Session{
		ID: uuid.New(), UserID: withWeChat.ID, Token: "t2", ExpiresAt: time.Now().Add(-time.Hour),
	}).Error)

	require.NoError(t, loginlog.NewRepository(db).Record(ctx, withWeChat.ID, "pr.crazyaigc.com", "wechat"))

	stats, err := svc.GetStatistics(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalUsers)
	assert.EqualValues(t, 1, stats.UsersWithPhone)
	assert.EqualValues(t, 1, stats.UsersWithWeChat)
	assert.EqualValues(t, 1, stats.ActiveSessions)
	assert.EqualValues(t, 1, stats.LoginsLast24h)
}

func TestGetUserLoginSources(t *testing.T) {
	db := setupAdminTestDB(t)
	svc := newAdminService(t, db)
	ctx := context.Background()

	user := seedUser(t, db, "union-1", time.Now())
	require.NoError(t, loginlog.NewRepository(db).Record(ctx, user.ID, "pr.crazyaigc.com", "wechat"))

	sources, err := svc.GetUserLoginSources(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "pr.crazyaigc.com", sources[0].SourceHost)

	_, err = svc.GetUserLoginSources(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUserNotFound))
}

func TestSetPhonePassword(t *testing.T) {
	db := setupAdminTestDB(t)
	svc := newAdminService(t, db)
	ctx := context.Background()

	user := seedUser(t, db, "union-1", time.Now())

	err := svc.SetPhonePassword(ctx, SetPhonePasswordRequest{
		UserID: user.ID.String(), Phone: "13800138000", Password: "secret123",
	})
	require.NoError(t, err)

	reloaded, err := users.NewRepository(db).FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.PhoneNumber)
	assert.Equal(t, "13800138000", *reloaded.PhoneNumber)
	require.NotNil(t, reloaded.PasswordHash)

	match, err := security.VerifyPassword("secret123", *reloaded.PasswordHash)
	require.NoError(t, err)
	assert.True(t, match)
}

func TestSetPhonePasswordPasswordOnly(t *testing.T) {
	db := setupAdminTestDB(t)
	svc := newAdminService(t, db)
	ctx := context.Background()

	user := seedUser(t, db, "union-1", time.Now())
	require.NoError(t, svc.SetPhonePassword(ctx, SetPhonePasswordRequest{
		UserID: user.ID.String(), Phone: "13800138000", Password: "secret123",
	}))

	// Omitting the phone rotates the password and keeps the stored number.
	err := svc.SetPhonePassword(ctx, SetPhonePasswordRequest{
		UserID: user.ID.String(), Password: "rotated456",
	})
	require.NoError(t, err)

	reloaded, err := users.NewRepository(db).FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.PhoneNumber)
	assert.Equal(t, "13800138000", *reloaded.PhoneNumber)
	require.NotNil(t, reloaded.PasswordHash)

	match, err := security.VerifyPassword("rotated456", *reloaded.PasswordHash)
	require.NoError(t, err)
	assert.True(t, match)

	match, err = security.VerifyPassword("secret123", *reloaded.PasswordHash)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestSetPhonePasswordRejections(t *testing.T) {
	db := setupAdminTestDB(t)
	svc := newAdminService(t, db)
	ctx := context.Background()

	user := seedUser(t, db, "union-1", time.Now())
	other := seedUser(t, db, "union-2", time.Now())
	require.NoError(t, svc.SetPhonePassword(ctx, SetPhonePasswordRequest{
		UserID: other.ID.String(), Phone: "13900139000", Password: "secret123",
	}))

	cases := []struct {
		name string
		req  SetPhonePasswordRequest
		code pkgerrors.Code
	}{
		{"bad uuid", SetPhonePasswordRequest{UserID: "nope", Phone: "13800138000", Password: "secret123"}, pkgerrors.CodeInvalidRequest},
		{"bad phone", SetPhonePasswordRequest{UserID: user.ID.String(), Phone: "12345", Password: "secret123"}, pkgerrors.CodeInvalidRequest},
		{"weak password", SetPhonePasswordRequest{UserID: user.ID.String(), Phone: "13800138000", Password: "abcdefgh"}, pkgerrors.CodeInvalidRequest},
		{"unknown user", SetPhonePasswordRequest{UserID: uuid.NewString(), Phone: "13800138000", Password: "secret123"}, pkgerrors.CodeUserNotFound},
		{"phone in use", SetPhonePasswordRequest{UserID: user.ID.String(), Phone: "13900139000", Password: "secret123"}, pkgerrors.CodePhoneNumberInUse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.SetPhonePassword(ctx, tc.req)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}

	// Re-setting the same user's own phone is allowed.
	require.NoError(t, svc.SetPhonePassword(ctx, SetPhonePasswordRequest{
		UserID: other.ID.String(), Phone: "13900139000", Password: "rotated456",
	}))
}

func TestGateAuthorize(t *testing.T) {
	ctx := context.Background()
	unionID := "admin-union"
	user := &models.User{ID: uuid.New(), UnionID: &unionID, Accounts: []models.Account{
		{OpenID: "admin-open"},
	}}

	byUnion := NewGate(config.AdminConfig{Identifier: "admin-union"}, nil)
	assert.NoError(t, byUnion.Authorize(ctx, user))

	byOpen := NewGate(config.AdminConfig{Identifier: "admin-open"}, nil)
	assert.NoError(t, byOpen.Authorize(ctx, user))

	denied := NewGate(config.AdminConfig{Identifier: "someone-else"}, nil)
	err := denied.Authorize(ctx, user)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	assert.True(t, pkgerrors.IsCode(denied.Authorize(ctx, nil), pkgerrors.CodeForbidden))

	bootstrap := NewGate(config.AdminConfig{}, nil)
	assert.NoError(t, bootstrap.Authorize(ctx, user))
	assert.NoError(t, bootstrap.Authorize(ctx, nil))
}
