package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// GetJSON fetches key and decodes it into a T. A value that no longer
// decodes is treated as a miss.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, error) {
	var out T

	raw, err := c.Get(ctx, key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: decode %s: %v", ErrMiss, key, err)
	}
	return out, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	e, err := JSONEntry(key, v, ttl)
	if err != nil {
		return err
	}
	return c.Set(ctx, e.Key, e.Value, e.TTL)
}

// JSONEntry encodes v into an Entry for SetMulti.
func JSONEntry(key string, v any, ttl time.Duration) (Entry, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Entry{}, fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return Entry{Key: key, Value: raw, TTL: ttl}, nil
}
