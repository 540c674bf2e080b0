//go:build integration

package cache_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/cache"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	url := startRedis(t)

	c, err := cache.NewRedis(ctx, url, "kanbee-test:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	t.Run("get set delete", func(t *testing.T) {
		_, err := c.Get(ctx, "missing")
		require.ErrorIs(t, err, cache.ErrMiss)

		require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
		got, err := c.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, []byte("v"), got)

		require.NoError(t, c.Delete(ctx, "k"))
		_, err = c.Get(ctx, "k")
		require.ErrorIs(t, err, cache.ErrMiss)
	})

	t.Run("ttl expires", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "ttl", []byte("v"), time.Second))
		require.Eventually(t, func() bool {
			_, err := c.Get(ctx, "ttl")
			return err == cache.ErrMiss
		}, 5*time.Second, 100*time.Millisecond)
	})

	t.Run("set multi", func(t *testing.T) {
		require.NoError(t, c.SetMulti(ctx,
			cache.Entry{Key: cache.UserIDKey("u1"), Value: []byte("1"), TTL: time.Minute},
			cache.Entry{Key: cache.UserEmailKey("u1@x.io"), Value: []byte("1"), TTL: time.Minute},
		))
		a, err := c.Get(ctx, cache.UserIDKey("u1"))
		require.NoError(t, err)
		b, err := c.Get(ctx, cache.UserEmailKey("u1@x.io"))
		require.NoError(t, err)
		require.Equal(t, a, b)
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, c.Ping(ctx))
	})
}
