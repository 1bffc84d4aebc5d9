package cache

import (
	"context"
	"testing"
	"time"

	"github.com/erp/sellersync/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRunLock(t *testing.T) {
	ctx := context.Background()

	t.Run("second holder is refused until unlock", func(t *testing.T) {
		lock := NewMemoryRunLock()

		token, ok, err := lock.TryLock(ctx, "orders", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NotEmpty(t, token)

		_, ok, err = lock.TryLock(ctx, "orders", time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, err = lock.TryLock(ctx, "finances", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok, "keys are independent")

		require.NoError(t, lock.Unlock(ctx, "orders", token))
		_, ok, err = lock.TryLock(ctx, "orders", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unlock with a stale token is ignored", func(t *testing.T) {
		lock := NewMemoryRunLock()

		_, ok, err := lock.TryLock(ctx, "orders", time.Hour)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, lock.Unlock(ctx, "orders", "someone-else"))
		_, ok, err = lock.TryLock(ctx, "orders", time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("expired lock can be taken over", func(t *testing.T) {
		lock := NewMemoryRunLock()
		now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		lock.now = func() time.Time { return now }

		first, ok, err := lock.TryLock(ctx, "orders", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		now = now.Add(30 * time.Second)
		held, err := lock.Extend(ctx, "orders", first, time.Minute)
		require.NoError(t, err)
		assert.True(t, held)

		now = now.Add(61 * time.Second)
		held, err = lock.Extend(ctx, "orders", first, time.Minute)
		require.NoError(t, err)
		assert.False(t, held, "expired lock cannot be extended")

		second, ok, err := lock.TryLock(ctx, "orders", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NotEqual(t, first, second)
	})
}

func TestRunLockFactory_RedisDisabled(t *testing.T) {
	lock, err := NewRunLockFactory(config.RedisConfig{Enabled: false}).CreateLock()
	require.NoError(t, err)
	assert.IsType(t, &MemoryRunLock{}, lock)
	assert.NoError(t, lock.Close())
}

func TestRunLockFactory_RedisUnreachable(t *testing.T) {
	cfg := config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}

	lock, err := NewRunLockFactory(cfg).CreateLock()
	require.NoError(t, err)
	assert.IsType(t, &MemoryRunLock{}, lock)

	_, err = NewRunLockFactory(cfg, WithInMemoryFallback(false)).CreateLock()
	assert.Error(t, err)
}
