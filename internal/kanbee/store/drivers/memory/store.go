// Package memory is an in-process store for tests and single-node
// development. Transactions are serializable: a Tx holds the store lock and
// works on a private copy that replaces the live state on Commit.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store"
)

var errTxDone = errors.New("memory: transaction already committed or rolled back")

type state struct {
	users      map[string]domain.User
	emails     map[string]string // email -> user id
	projects   map[string]domain.Project
	sessions   map[string]domain.Session
	sessionKey map[deviceKey]string // (user, agent) -> token
	quotes     []domain.Quote
}

type deviceKey struct {
	userID    string
	userAgent string
}

func newState() *state {
	return &state{
		users:      make(map[string]domain.User),
		emails:     make(map[string]string),
		projects:   make(map[string]domain.Project),
		sessions:   make(map[string]domain.Session),
		sessionKey: make(map[deviceKey]string),
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.users {
		c.users[k] = v.Clone()
	}
	for k, v := range st.emails {
		c.emails[k] = v
	}
	for k, v := range st.projects {
		c.projects[k] = v.Clone()
	}
	for k, v := range st.sessions {
		c.sessions[k] = v
	}
	for k, v := range st.sessionKey {
		c.sessionKey[k] = v
	}
	c.quotes = append([]domain.Quote(nil), st.quotes...)
	return c
}

type Store struct {
	mu sync.Mutex
	st *state
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) ApplyMigrations() error         { return nil }
func (s *Store) Close() error                   { return nil }
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &txStore{root: s, st: s.st.clone()}, nil
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// run applies fn to the live state under the store lock.
func (s *Store) run(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (s *Store) Users() store.Users       { return &usersRepo{run: s.run} }
func (s *Store) Projects() store.Projects { return &projectsRepo{run: s.run} }
func (s *Store) Sessions() store.Sessions { return &sessionsRepo{run: s.run} }
func (s *Store) Quotes() store.Quotes     { return &quotesRepo{run: s.run} }

type txStore struct {
	root *Store
	st   *state
	done bool
}

func (t *txStore) run(fn func(st *state) error) error {
	if t.done {
		return errTxDone
	}
	return fn(t.st)
}

func (t *txStore) Commit() error {
	if t.done {
		return errTxDone
	}
	t.done = true
	t.root.st = t.st
	t.root.mu.Unlock()
	return nil
}

func (t *txStore) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.root.mu.Unlock()
	return nil
}

func (t *txStore) ApplyMigrations() error                             { return nil }
func (t *txStore) Close() error                                       { return nil }
func (t *txStore) Ping(context.Context) error                         { return nil }
func (t *txStore) Tx(context.Context) (store.Tx, error)               { return nil, errTxDone }
func (t *txStore) WithTx(context.Context, func(store.Tx) error) error { return errTxDone }

func (t *txStore) Users() store.Users       { return &usersRepo{run: t.run} }
func (t *txStore) Projects() store.Projects { return &projectsRepo{run: t.run} }
func (t *txStore) Sessions() store.Sessions { return &sessionsRepo{run: t.run} }
func (t *txStore) Quotes() store.Quotes     { return &quotesRepo{run: t.run} }

type runner func(fn func(st *state) error) error
