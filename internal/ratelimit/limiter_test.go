package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mediaforge/api/internal/ratelimit"
	"github.com/mediaforge/api/internal/store"
)

func setupLimiter(t *testing.T) *ratelimit.Limiter {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s := store.NewGormStore(db)
	require.NoError(t, s.Migrate(context.Background()))
	return ratelimit.New(s)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "generate:user-1", ratelimit.Key("generate", "user-1"))
	assert.Equal(t, "generate:anonymous", ratelimit.Key("generate", ""))
}

func TestAdmitUpToLimitThenDeny(t *testing.T) {
	l := setupLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Admit(ctx, "generate:user-1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "call %d", i)
		assert.Equal(t, 2-i, d.Remaining)
	}

	d, err := l.Admit(ctx, "generate:user-1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)
}

func TestAdmitKeysAreIndependent(t *testing.T) {
	l := setupLimiter(t)
	ctx := context.Background()

	d, err := l.Admit(ctx, "generate:user-1", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = l.Admit(ctx, "generate:user-1", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	// a different user and a different endpoint each get their own window
	d, err = l.Admit(ctx, "generate:user-2", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = l.Admit(ctx, "enhance:user-1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestAdmitResetsExpiredWindow(t *testing.T) {
	l := setupLimiter(t)
	ctx := context.Background()
	window := 30 * time.Millisecond

	d, err := l.Admit(ctx, "generate:user-1", 1, window)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = l.Admit(ctx, "generate:user-1", 1, window)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	time.Sleep(window + 10*time.Millisecond)

	d, err = l.Admit(ctx, "generate:user-1", 1, window)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
