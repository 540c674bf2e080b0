package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/cache"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("connection refused")

// brokenCache fails writes and reads but records deletes.
type brokenCache struct {
	*cache.Memory
	failGet bool
	failSet bool
	deleted []string
}

func (b *brokenCache) Get(ctx context.Context, key string) ([]byte, error) {
	if b.failGet {
		return nil, errBackend
	}
	return b.Memory.Get(ctx, key)
}

func (b *brokenCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if b.failSet {
		return errBackend
	}
	return b.Memory.Set(ctx, key, value, ttl)
}

func (b *brokenCache) SetMulti(ctx context.Context, entries ...cache.Entry) error {
	if b.failSet {
		return errBackend
	}
	return b.Memory.SetMulti(ctx, entries...)
}

func (b *brokenCache) Delete(ctx context.Context, keys ...string) error {
	b.deleted = append(b.deleted, keys...)
	return b.Memory.Delete(ctx, keys...)
}

func TestObservedDegradesReadErrorsToMiss(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := metrics.New()
	inner := &brokenCache{Memory: cache.NewMemory(nil), failGet: true}
	require.NoError(t, inner.Memory.Set(ctx, "k", []byte("v"), 0))

	c := cache.NewObserved(inner, m)
	_, err := c.Get(ctx, "k")
	require.ErrorIs(t, err, cache.ErrMiss)

	inner.failGet = false
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)

	_, err = c.Get(ctx, "absent")
	require.ErrorIs(t, err, cache.ErrMiss)

	n, err := testutil.GatherAndCount(m.Registry(), "kanbee_cache_operations_total")
	require.NoError(t, err)
	require.Equal(t, 3, n, "hit, miss and error series")
}

func TestObservedSwallowsWriteErrorsAndEvicts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inner := &brokenCache{Memory: cache.NewMemory(nil)}
	require.NoError(t, inner.Memory.Set(ctx, "a", []byte("stale"), 0))

	c := cache.NewObserved(inner, nil)
	inner.failSet = true

	require.NoError(t, c.SetMulti(ctx,
		cache.Entry{Key: "a", Value: []byte("fresh")},
		cache.Entry{Key: "b", Value: []byte("fresh")},
	))
	require.ElementsMatch(t, []string{"a", "b"}, inner.deleted)

	_, err := c.Get(ctx, "a")
	require.ErrorIs(t, err, cache.ErrMiss, "a failed write must not leave the old value behind")

	require.NoError(t, c.Set(ctx, "c", []byte("x"), 0))
	require.Contains(t, inner.deleted, "c")
}
