package loginlog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupLoginLogTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	table := `
CREATE TABLE IF NOT EXISTS user_login_logs (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  source_host TEXT NOT NULL,
  login_method TEXT NOT NULL,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(table).Error)
	return db
}

func TestRecordAndSourcesForUser(t *testing.T) {
	db := setupLoginLogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, repo.Record(ctx, userID, "pr.crazyaigc.com", "wechat"))
	require.NoError(t, repo.Record(ctx, userID, "pr.crazyaigc.com", "password"))
	require.NoError(t, repo.Record(ctx, userID, "os.crazyaigc.com", "wechat"))
	require.NoError(t, repo.Record(ctx, uuid.New(), "www.crazyaigc.com", "wechat"))

	sources, err := repo.SourcesForUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, sources, 2)

	byHost := map[string]Source{}
	for _, s := range sources {
		byHost[s.SourceHost] = s
	}
	assert.EqualValues(t, 2, byHost["pr.crazyaigc.com"].LoginCount)
	assert.EqualValues(t, 1, byHost["os.crazyaigc.com"].LoginCount)

	for _, s := range sources {
		assert.False(t, s.LastLoginAt.IsZero(), "host %s has no last login", s.SourceHost)
	}
	assert.False(t, sources[0].LastLoginAt.Before(sources[1].LastLoginAt))
}

func TestRecordDefaultsUnknownHost(t *testing.T) {
	db := setupLoginLogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, repo.Record(ctx, userID, "", "password"))

	sources, err := repo.SourcesForUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "unknown", sources[0].SourceHost)
}

func TestCountSince(t *testing.T) {
	db := setupLoginLogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, uuid.New(), "pr.crazyaigc.com", "wechat"))
	require.NoError(t, repo.Record(ctx, uuid.New(), "pr.crazyaigc.com", "wechat"))

	count, err := repo.CountSince(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	count, err = repo.CountSince(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}
