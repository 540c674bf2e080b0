package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/metrics"
	"github.com/aussiebroadwan/kanbee/pkg/slogx"
)

// Observed wraps a Cache so that backend failures never reach callers: a
// failed read becomes ErrMiss and a failed write is logged and dropped after
// a best-effort eviction of the keys involved. Every call is counted.
type Observed struct {
	next    Cache
	metrics *metrics.Metrics
}

func NewObserved(next Cache, m *metrics.Metrics) *Observed {
	return &Observed{next: next, metrics: m}
}

func (o *Observed) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := o.next.Get(ctx, key)
	switch {
	case err == nil:
		o.metrics.CacheOp("get", metrics.ResultHit)
		return raw, nil
	case errors.Is(err, ErrMiss):
		o.metrics.CacheOp("get", metrics.ResultMiss)
		return nil, ErrMiss
	default:
		o.metrics.CacheOp("get", metrics.ResultError)
		slogx.FromContext(ctx).Warn("cache get failed, treating as miss", slog.String("key", key), slog.Any("error", err))
		return nil, ErrMiss
	}
}

func (o *Observed) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := o.next.Set(ctx, key, value, ttl); err != nil {
		o.writeFailed(ctx, "set", err, key)
		return nil
	}
	o.metrics.CacheOp("set", metrics.ResultOK)
	return nil
}

func (o *Observed) SetMulti(ctx context.Context, entries ...Entry) error {
	if err := o.next.SetMulti(ctx, entries...); err != nil {
		keys := make([]string, len(entries))
		for i, e := range entries {
			keys[i] = e.Key
		}
		o.writeFailed(ctx, "set_multi", err, keys...)
		return nil
	}
	o.metrics.CacheOp("set_multi", metrics.ResultOK)
	return nil
}

func (o *Observed) Delete(ctx context.Context, keys ...string) error {
	if err := o.next.Delete(ctx, keys...); err != nil {
		o.metrics.CacheOp("delete", metrics.ResultError)
		slogx.FromContext(ctx).Warn("cache delete failed", slog.Any("keys", keys), slog.Any("error", err))
		return nil
	}
	o.metrics.CacheOp("delete", metrics.ResultOK)
	return nil
}

// Ping is passed through untouched; readiness probes need the real answer.
func (o *Observed) Ping(ctx context.Context) error { return o.next.Ping(ctx) }

func (o *Observed) Close() error { return o.next.Close() }

func (o *Observed) writeFailed(ctx context.Context, op string, err error, keys ...string) {
	o.metrics.CacheOp(op, metrics.ResultError)
	l := slogx.FromContext(ctx)
	l.Warn("cache write failed", slog.String("op", op), slog.Any("keys", keys), slog.Any("error", err))

	// Evict so readers fall back to the store.
	if derr := o.next.Delete(ctx, keys...); derr != nil {
		l.Warn("cache eviction after failed write also failed", slog.Any("keys", keys), slog.Any("error", derr))
	}
}
