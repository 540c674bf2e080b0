package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface implemented by the sqlite,
// postgres and memory drivers. Repositories hang off it so a transaction can
// hand out the same repositories scoped to itself.
type Store interface {
	Users() Users
	Projects() Projects
	Sessions() Sessions
	Quotes() Quotes

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn inside a transaction, committing when fn returns nil and
	// rolling back otherwise. Code inside fn must only use the tx repositories;
	// reaching for the root store can deadlock single-connection drivers.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store. Rollback after Commit is a no-op.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts u. ErrAlreadyExists when the email is taken.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateUser replaces every mutable field of the user with u.ID.
	UpdateUser(ctx context.Context, u domain.User) error

	// UpsertUserByEmail creates u or, when the email exists, refreshes the
	// profile fields (username, avatar when set, provider). The stored user
	// is returned either way.
	UpsertUserByEmail(ctx context.Context, u domain.User) (domain.User, error)

	// SearchUsers matches a case-insensitive substring of email or username.
	SearchUsers(ctx context.Context, query string, limit int) ([]domain.User, error)

	// DeleteUser cascades to sessions and quotes (per schema).
	DeleteUser(ctx context.Context, id string) error
}

type Projects interface {
	GetProjectByID(ctx context.Context, id string) (domain.Project, error)
	CreateProject(ctx context.Context, p domain.Project) error
	UpdateKanban(ctx context.Context, id string, kanban []domain.Column, now time.Time) error
	UpdateMembers(ctx context.Context, id string, memberIDs []string, now time.Time) error
	DeleteProject(ctx context.Context, id string) error
}

type Sessions interface {
	// UpsertSession stores s, replacing the token and expiry of any existing
	// row for the same (user, device).
	UpsertSession(ctx context.Context, s domain.Session) error

	GetSession(ctx context.Context, token string) (domain.Session, error)

	// RotateSession swaps oldToken for newToken in a single compare-and-swap.
	// Only a live row bound to userAgent matches; anything else is
	// ErrNotFound, so two racing rotations of one token see exactly one winner.
	RotateSession(ctx context.Context, oldToken, userAgent, newToken string, expiresAt, now time.Time) (userID string, err error)

	// DeleteSession is idempotent.
	DeleteSession(ctx context.Context, token string) error

	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

type Quotes interface {
	CreateQuote(ctx context.Context, q domain.Quote) error

	// RandomQuote returns ErrNotFound when no quotes exist.
	RandomQuote(ctx context.Context) (domain.Quote, error)
}
