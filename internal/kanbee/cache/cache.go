package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrMiss reports that a key is absent or expired.
	ErrMiss   = errors.New("cache: miss")
	ErrClosed = errors.New("cache: closed")
)

// Entry is one key written by SetMulti. A zero TTL keeps the value until it
// is deleted or overwritten.
type Entry struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// Cache is the ephemeral key/value shadow of the store. Implementations must
// be safe for concurrent use.
type Cache interface {
	// Get returns ErrMiss when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetMulti writes every entry or none of them.
	SetMulti(ctx context.Context, entries ...Entry) error

	// Delete removes keys. Absent keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	Ping(ctx context.Context) error
	Close() error
}

// Key prefixes. A user is cached twice, under its id and under its email.
const (
	userIDPrefix    = "user:id:"
	userEmailPrefix = "user:email:"
	projectPrefix   = "project:"

	// QuoteKey holds the single cached random quote.
	QuoteKey = "quote:random"
)

func UserIDKey(id string) string { return userIDPrefix + id }

// UserEmailKey lowercases email so lookups are case-insensitive.
func UserEmailKey(email string) string {
	return userEmailPrefix + strings.ToLower(strings.TrimSpace(email))
}

func ProjectKey(id string) string { return projectPrefix + id }
