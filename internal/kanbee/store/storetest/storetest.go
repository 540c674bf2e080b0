// Package storetest holds the behavioural contract every store driver must
// satisfy. Driver packages call Run from their own tests.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store"
	"github.com/aussiebroadwan/kanbee/pkg/idx"
	"github.com/stretchr/testify/require"
)

// Opener returns a fresh, migrated store. It should register cleanup itself.
type Opener func(t *testing.T) store.Store

func Run(t *testing.T, open Opener) {
	t.Run("Users", func(t *testing.T) { testUsers(t, open(t)) })
	t.Run("UserUpsert", func(t *testing.T) { testUserUpsert(t, open(t)) })
	t.Run("UserSearch", func(t *testing.T) { testUserSearch(t, open(t)) })
	t.Run("Projects", func(t *testing.T) { testProjects(t, open(t)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, open(t)) })
	t.Run("SessionRotationRace", func(t *testing.T) { testSessionRotationRace(t, open(t)) })
	t.Run("Quotes", func(t *testing.T) { testQuotes(t, open(t)) })
	t.Run("Transactions", func(t *testing.T) { testTransactions(t, open(t)) })
	t.Run("ConcurrentUserUpdates", func(t *testing.T) { testConcurrentUserUpdates(t, open(t)) })
}

func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

// NewUser builds a valid local user.
func NewUser(email, username string) domain.User {
	ts := now()
	return domain.User{
		ID:        idx.New().String(),
		Email:     email,
		Username:  username,
		Roles:     []domain.Role{domain.RoleUser},
		Provider:  domain.ProviderLocal,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}

func mustCreateUser(t *testing.T, s store.Store, email, username string) domain.User {
	t.Helper()
	u := NewUser(email, username)
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()

	u := NewUser("alice@kanbee.dev", "alice")
	u.PasswordHash = "$argon2id$fake"
	u.Invites = []domain.Invite{{ProjectID: "p1", Title: "Sprint"}}
	require.NoError(t, s.Users().CreateUser(ctx, u))

	byID, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	byEmail, err := s.Users().GetUserByEmail(ctx, u.Email)
	require.NoError(t, err)
	require.Equal(t, byID, byEmail)
	require.Equal(t, u.PasswordHash, byID.PasswordHash)
	require.Equal(t, u.Invites, byID.Invites)
	require.Empty(t, byID.ProjectIDs)
	require.True(t, u.CreatedAt.Equal(byID.CreatedAt))

	dup := NewUser("alice@kanbee.dev", "other")
	require.ErrorIs(t, s.Users().CreateUser(ctx, dup), store.ErrAlreadyExists)

	byID.AddProject("p1")
	byID.RemoveInvite("p1")
	byID.AddExclusion("Old")
	byID.CreatedProjects = 2
	byID.CycleTimer = 7
	byID.Roles = append(byID.Roles, domain.RoleAdmin)
	require.NoError(t, s.Users().UpdateUser(ctx, byID))

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"p1"}, got.ProjectIDs)
	require.Empty(t, got.Invites)
	require.Equal(t, []string{"Old"}, got.Exclusions)
	require.Equal(t, 2, got.CreatedProjects)
	require.Equal(t, 7, got.CycleTimer)
	require.True(t, got.IsAdmin())

	missing := NewUser("ghost@kanbee.dev", "ghost")
	require.ErrorIs(t, s.Users().UpdateUser(ctx, missing), store.ErrNotFound)
	_, err = s.Users().GetUserByID(ctx, missing.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Users().GetUserByEmail(ctx, missing.Email)
	require.ErrorIs(t, err, store.ErrNotFound)

	ts := now()
	require.NoError(t, s.Sessions().UpsertSession(ctx, domain.Session{
		Token: "tok", UserID: u.ID, UserAgent: "ua", ExpiresAt: ts.Add(time.Hour), CreatedAt: ts, UpdatedAt: ts,
	}))
	require.NoError(t, s.Users().DeleteUser(ctx, u.ID))
	require.ErrorIs(t, s.Users().DeleteUser(ctx, u.ID), store.ErrNotFound)
	_, err = s.Sessions().GetSession(ctx, "tok")
	require.ErrorIs(t, err, store.ErrNotFound, "sessions cascade with their user")
	_, err = s.Users().GetUserByEmail(ctx, u.Email)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testUserUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()

	fed := NewUser("fed@kanbee.dev", "fed")
	fed.Provider = domain.ProviderGitHub
	fed.Avatar = "https://avatars/1.png"

	created, err := s.Users().UpsertUserByEmail(ctx, fed)
	require.NoError(t, err)
	require.Equal(t, fed.ID, created.ID)
	require.Equal(t, domain.ProviderGitHub, created.Provider)

	created.AddProject("p9")
	created.PasswordHash = "keep-me"
	require.NoError(t, s.Users().UpdateUser(ctx, created))

	again := NewUser("fed@kanbee.dev", "fed-renamed")
	again.Provider = domain.ProviderGoogle
	updated, err := s.Users().UpsertUserByEmail(ctx, again)
	require.NoError(t, err)
	require.Equal(t, fed.ID, updated.ID, "existing id is kept")
	require.Equal(t, "fed-renamed", updated.Username)
	require.Equal(t, domain.ProviderGoogle, updated.Provider)
	require.Equal(t, "https://avatars/1.png", updated.Avatar, "empty avatar does not clobber")
	require.Equal(t, []string{"p9"}, updated.ProjectIDs)
	require.Equal(t, "keep-me", updated.PasswordHash)
}

func testUserSearch(t *testing.T, s store.Store) {
	ctx := context.Background()

	mustCreateUser(t, s, "bee@kanbee.dev", "Bumble")
	mustCreateUser(t, s, "wasp@kanbee.dev", "Yellowjacket")
	mustCreateUser(t, s, "ant@colony.dev", "Worker_1")

	hits, err := s.Users().SearchUsers(ctx, "KANBEE", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "Bumble", hits[0].Username)

	hits, err = s.Users().SearchUsers(ctx, "bumb", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hits, err = s.Users().SearchUsers(ctx, "_", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1, "underscore is literal, not a wildcard")

	hits, err = s.Users().SearchUsers(ctx, ".dev", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func testProjects(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := mustCreateUser(t, s, "owner@kanbee.dev", "owner")

	p := domain.NewProject(idx.New().String(), "Sprint", owner.ID, now())
	require.NoError(t, s.Projects().CreateProject(ctx, p))
	require.ErrorIs(t, s.Projects().CreateProject(ctx, p), store.ErrAlreadyExists)

	got, err := s.Projects().GetProjectByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, p.Title, got.Title)
	require.Equal(t, owner.ID, got.AdminID)
	require.Equal(t, []string{owner.ID}, got.MemberIDs)
	require.Len(t, got.Kanban, 3)

	kanban := got.Kanban
	kanban[0].Tasks = append(kanban[0].Tasks, json.RawMessage(`{"id":"t1","title":"write tests"}`))
	require.NoError(t, s.Projects().UpdateKanban(ctx, p.ID, kanban, now()))
	require.NoError(t, s.Projects().UpdateMembers(ctx, p.ID, []string{owner.ID, "bob"}, now()))

	got, err = s.Projects().GetProjectByID(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Kanban[0].Tasks, 1)
	require.JSONEq(t, `{"id":"t1","title":"write tests"}`, string(got.Kanban[0].Tasks[0]))
	require.Equal(t, []string{owner.ID, "bob"}, got.MemberIDs)

	require.NoError(t, s.Projects().DeleteProject(ctx, p.ID))
	_, err = s.Projects().GetProjectByID(ctx, p.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.Projects().DeleteProject(ctx, p.ID), store.ErrNotFound)
	require.ErrorIs(t, s.Projects().UpdateKanban(ctx, p.ID, nil, now()), store.ErrNotFound)
	require.ErrorIs(t, s.Projects().UpdateMembers(ctx, p.ID, nil, now()), store.ErrNotFound)
}

func testSessions(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustCreateUser(t, s, "sess@kanbee.dev", "sess")
	ts := now()

	sess := func(token, ua string, exp time.Time) domain.Session {
		return domain.Session{Token: token, UserID: u.ID, UserAgent: ua, ExpiresAt: exp, CreatedAt: ts, UpdatedAt: ts}
	}

	require.NoError(t, s.Sessions().UpsertSession(ctx, sess("a1", "firefox", ts.Add(time.Hour))))
	require.NoError(t, s.Sessions().UpsertSession(ctx, sess("b1", "chrome", ts.Add(time.Hour))))

	t.Run("upsert replaces per device", func(t *testing.T) {
		require.NoError(t, s.Sessions().UpsertSession(ctx, sess("a2", "firefox", ts.Add(2*time.Hour))))

		_, err := s.Sessions().GetSession(ctx, "a1")
		require.ErrorIs(t, err, store.ErrNotFound)

		got, err := s.Sessions().GetSession(ctx, "a2")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.UserID)
		require.True(t, ts.Add(2*time.Hour).Equal(got.ExpiresAt))

		_, err = s.Sessions().GetSession(ctx, "b1")
		require.NoError(t, err, "other devices are untouched")
	})

	t.Run("rotate", func(t *testing.T) {
		uid, err := s.Sessions().RotateSession(ctx, "a2", "firefox", "a3", ts.Add(3*time.Hour), ts)
		require.NoError(t, err)
		require.Equal(t, u.ID, uid)

		_, err = s.Sessions().RotateSession(ctx, "a2", "firefox", "a4", ts.Add(3*time.Hour), ts)
		require.ErrorIs(t, err, store.ErrNotFound, "replay of a rotated token")

		_, err = s.Sessions().RotateSession(ctx, "a3", "chrome", "a4", ts.Add(3*time.Hour), ts)
		require.ErrorIs(t, err, store.ErrNotFound, "device mismatch")

		_, err = s.Sessions().RotateSession(ctx, "a3", "firefox", "a4", ts.Add(4*time.Hour), ts.Add(3*time.Hour))
		require.ErrorIs(t, err, store.ErrNotFound, "expired")
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, s.Sessions().DeleteSession(ctx, "b1"))
		require.NoError(t, s.Sessions().DeleteSession(ctx, "b1"))
		_, err := s.Sessions().GetSession(ctx, "b1")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("delete expired", func(t *testing.T) {
		require.NoError(t, s.Sessions().UpsertSession(ctx, sess("old", "safari", ts.Add(-time.Minute))))
		n, err := s.Sessions().DeleteExpiredSessions(ctx, ts)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)

		_, err = s.Sessions().GetSession(ctx, "a3")
		require.NoError(t, err)
	})
}

func testSessionRotationRace(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustCreateUser(t, s, "race@kanbee.dev", "race")
	ts := now()
	require.NoError(t, s.Sessions().UpsertSession(ctx, domain.Session{
		Token: "stale", UserID: u.ID, UserAgent: "ua", ExpiresAt: ts.Add(time.Hour), CreatedAt: ts, UpdatedAt: ts,
	}))

	const racers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Sessions().RotateSession(ctx, "stale", "ua", idx.New().String()+string(rune('a'+i)), ts.Add(2*time.Hour), ts)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}

func testQuotes(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Quotes().RandomQuote(ctx)
	require.ErrorIs(t, err, store.ErrNotFound)

	author := mustCreateUser(t, s, "poet@kanbee.dev", "poet")
	q := domain.Quote{ID: idx.New().String(), AuthorID: author.ID, Text: "ship it", CreatedAt: now()}
	require.NoError(t, s.Quotes().CreateQuote(ctx, q))

	got, err := s.Quotes().RandomQuote(ctx)
	require.NoError(t, err)
	require.Equal(t, q.Text, got.Text)
	require.Equal(t, author.ID, got.AuthorID)
}

func testTransactions(t *testing.T, s store.Store) {
	ctx := context.Background()

	t.Run("rollback discards", func(t *testing.T) {
		tx, err := s.Tx(ctx)
		require.NoError(t, err)
		u := NewUser("rolled@kanbee.dev", "rolled")
		require.NoError(t, tx.Users().CreateUser(ctx, u))
		require.NoError(t, tx.Rollback())

		_, err = s.Users().GetUserByID(ctx, u.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("commit persists and rollback after commit is harmless", func(t *testing.T) {
		tx, err := s.Tx(ctx)
		require.NoError(t, err)
		u := NewUser("kept@kanbee.dev", "kept")
		require.NoError(t, tx.Users().CreateUser(ctx, u))
		require.NoError(t, tx.Commit())
		require.NoError(t, tx.Rollback())

		_, err = s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
	})

	t.Run("WithTx rolls back on error", func(t *testing.T) {
		u := NewUser("withtx@kanbee.dev", "withtx")
		err := s.WithTx(ctx, func(tx store.Tx) error {
			require.NoError(t, tx.Users().CreateUser(ctx, u))
			return store.ErrAlreadyExists
		})
		require.ErrorIs(t, err, store.ErrAlreadyExists)

		_, err = s.Users().GetUserByID(ctx, u.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("nested transactions are refused", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx store.Tx) error {
			_, err := tx.Tx(ctx)
			return err
		})
		require.Error(t, err)
	})
}

// testConcurrentUserUpdates runs read-modify-write transactions on one user
// from many goroutines. Every write must survive.
func testConcurrentUserUpdates(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustCreateUser(t, s, "busy@kanbee.dev", "busy")

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithTx(ctx, func(tx store.Tx) error {
				cur, err := tx.Users().GetUserByID(ctx, u.ID)
				if err != nil {
					return err
				}
				if i%2 == 0 {
					cur.AddProject(fmt.Sprintf("p%d", i))
				} else {
					cur.AddInvite(domain.Invite{ProjectID: fmt.Sprintf("p%d", i), Title: "Sprint"})
				}
				return tx.Users().UpdateUser(ctx, cur)
			})
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Empty(t, errs)

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, got.ProjectIDs, writers/2)
	require.Len(t, got.Invites, writers/2)
}
