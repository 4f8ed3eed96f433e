package joblock

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/weclapp-migration/internal/infrastructure/config"
)

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	lease, err := l.Acquire(ctx, "jobs", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, lease.Token)

	_, err = l.Acquire(ctx, "jobs", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	_, err = l.Acquire(ctx, "other", time.Minute)
	assert.NoError(t, err)

	// A stale lease does not release the current holder.
	require.NoError(t, l.Release(ctx, Lease{Key: "jobs", Token: "stale"}))
	_, err = l.Acquire(ctx, "jobs", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, l.Release(ctx, lease))
	_, err = l.Acquire(ctx, "jobs", time.Minute)
	assert.NoError(t, err)
}

func TestMemoryLocker_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLocker()
	l.now = func() time.Time { return now }

	_, err := l.Acquire(ctx, "jobs", time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = l.Acquire(ctx, "jobs", time.Minute)
	assert.NoError(t, err)
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestFactory_Create(t *testing.T) {
	t.Run("disabled redis uses memory", func(t *testing.T) {
		l, err := NewFactory(config.RedisConfig{Enabled: false}).Create()
		require.NoError(t, err)
		assert.IsType(t, &MemoryLocker{}, l)
	})

	t.Run("unreachable redis falls back", func(t *testing.T) {
		cfg := config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: closedPort(t)}
		l, err := NewFactory(cfg).Create()
		require.NoError(t, err)
		assert.IsType(t, &MemoryLocker{}, l)
	})

	t.Run("fallback can be disabled", func(t *testing.T) {
		cfg := config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: closedPort(t)}
		_, err := NewFactory(cfg, WithInMemoryFallback(false)).Create()
		assert.Error(t, err)
	})
}
