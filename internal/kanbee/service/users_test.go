package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/cache"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/service"
	"github.com/stretchr/testify/require"
)

func TestSaveThenFindByIDAndEmail(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "Ann@Kanbee.dev", "ann")

	byID, err := e.users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	byEmail, err := e.users.FindByEmail(ctx, "ann@kanbee.dev")
	require.NoError(t, err)
	require.Equal(t, byID, byEmail)
	require.Equal(t, "ann@kanbee.dev", byID.Email)
	require.Empty(t, byID.PasswordHash, "hashes never enter the cache")

	// Both keys were written by the save itself, not by the reads.
	e2 := newEnv(t)
	u2 := e2.register(t, "bob@kanbee.dev", "bob")
	_, err = e2.cache.Get(ctx, cache.UserIDKey(u2.ID))
	require.NoError(t, err)
	_, err = e2.cache.Get(ctx, cache.UserEmailKey(u2.Email))
	require.NoError(t, err)
}

func TestFindReadsThroughAfterExpiry(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "cat@kanbee.dev", "cat")

	e.clock.Advance(2 * time.Hour)
	_, err := e.cache.Get(ctx, cache.UserIDKey(u.ID))
	require.ErrorIs(t, err, cache.ErrMiss)

	got, err := e.users.FindOne(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	_, err = e.cache.Get(ctx, cache.UserIDKey(u.ID))
	require.NoError(t, err, "a miss repopulates the cache")

	_, err = e.users.FindOne(ctx, "ghost@kanbee.dev")
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestRegister(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("duplicate email conflicts", func(t *testing.T) {
		e := newEnv(t)
		e.register(t, "dup@kanbee.dev", "one")
		_, err := e.users.Register(ctx, service.SignUpInput{Email: "DUP@kanbee.dev", Password: "secret1", Username: "two"})
		require.ErrorIs(t, err, service.ErrConflict)
	})

	t.Run("validation", func(t *testing.T) {
		e := newEnv(t)
		for _, in := range []service.SignUpInput{
			{Email: "", Password: "secret1", Username: "x"},
			{Email: "not-an-email", Password: "secret1", Username: "x"},
			{Email: "a@b.dev", Password: "short", Username: "x"},
			{Email: "a@b.dev", Password: "secret1", Username: "  "},
		} {
			_, err := e.users.Register(ctx, in)
			require.ErrorIs(t, err, service.ErrInvalidInput, "%+v", in)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		e := newEnv(t)
		e.users.AvatarBaseURL = "https://cdn.kanbee.dev/avatars/"
		u := e.register(t, "new@kanbee.dev", "new")
		require.Equal(t, []domain.Role{domain.RoleUser}, u.Roles)
		require.Equal(t, domain.ProviderLocal, u.Provider)
		require.Regexp(t, `^https://cdn\.kanbee\.dev/avatars/meow[1-5]\.png$`, u.Avatar)
		require.NotEmpty(t, e.user(t, u.ID).PasswordHash)
	})
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	e.register(t, "dee@kanbee.dev", "dee")

	u, err := e.users.Authenticate(ctx, " DEE@kanbee.dev", "secret1")
	require.NoError(t, err)
	require.Equal(t, "dee", u.Username)

	_, err = e.users.Authenticate(ctx, "dee@kanbee.dev", "wrong-password")
	require.ErrorIs(t, err, service.ErrUnauthenticated)

	_, err = e.users.Authenticate(ctx, "nobody@kanbee.dev", "secret1")
	require.ErrorIs(t, err, service.ErrUnauthenticated)

	_, err = e.users.UpsertFederated(ctx, "fed@kanbee.dev", "fed", "", domain.ProviderGitHub)
	require.NoError(t, err)
	_, err = e.users.Authenticate(ctx, "fed@kanbee.dev", "")
	require.ErrorIs(t, err, service.ErrUnauthenticated)
}

func TestUpsertFederatedIsIdempotent(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()

	first, err := e.users.UpsertFederated(ctx, "Fed@Kanbee.dev", "Fed", "https://img/a.png", domain.ProviderGoogle)
	require.NoError(t, err)
	second, err := e.users.UpsertFederated(ctx, "fed@kanbee.dev", "Fed", "https://img/a.png", domain.ProviderGoogle)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, domain.ProviderGoogle, second.Provider)

	third, err := e.users.UpsertFederated(ctx, "fed@kanbee.dev", "Fed", "", domain.ProviderGoogle)
	require.NoError(t, err)
	require.Equal(t, "https://img/a.png", third.Avatar, "an empty provider avatar keeps the stored one")

	fresh, err := e.users.UpsertFederated(ctx, "noavatar@kanbee.dev", "", "", domain.ProviderGitHub)
	require.NoError(t, err)
	require.Regexp(t, `meow[1-5]\.png$`, fresh.Avatar)
}

func TestUpdateProfileAndTimer(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "eve@kanbee.dev", "eve")
	other := e.register(t, "fay@kanbee.dev", "fay")
	self := service.Actor{UserID: u.ID}

	name := "  Eve B  "
	got, err := e.users.UpdateProfile(ctx, self, u.ID, service.ProfileUpdate{Username: &name})
	require.NoError(t, err)
	require.Equal(t, "Eve B", got.Username)

	cached, err := e.users.FindByEmail(ctx, u.Email)
	require.NoError(t, err)
	require.Equal(t, "Eve B", cached.Username, "writes refresh the email key too")

	_, err = e.users.UpdateProfile(ctx, service.Actor{UserID: other.ID}, u.ID, service.ProfileUpdate{Username: &name})
	require.ErrorIs(t, err, service.ErrForbidden)

	admin := service.Actor{UserID: other.ID, Roles: []string{"ADMIN"}}
	avatar := "https://img/eve.png"
	_, err = e.users.UpdateProfile(ctx, admin, u.ID, service.ProfileUpdate{Avatar: &avatar})
	require.NoError(t, err)

	for range 3 {
		_, err = e.users.IncrementTimer(ctx, u.ID)
		require.NoError(t, err)
	}
	require.Equal(t, 3, e.user(t, u.ID).CycleTimer)
	require.Equal(t, "https://img/eve.png", e.user(t, u.ID).Avatar)
}

func TestDeleteUser(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "gus@kanbee.dev", "gus")
	other := e.register(t, "hal@kanbee.dev", "hal")

	require.ErrorIs(t, e.users.Delete(ctx, service.Actor{UserID: other.ID}, u.ID), service.ErrForbidden)

	require.NoError(t, e.users.Delete(ctx, service.Actor{UserID: u.ID}, u.ID))
	_, err := e.cache.Get(ctx, cache.UserIDKey(u.ID))
	require.ErrorIs(t, err, cache.ErrMiss)
	_, err = e.cache.Get(ctx, cache.UserEmailKey(u.Email))
	require.ErrorIs(t, err, cache.ErrMiss)

	_, err = e.users.FindByID(ctx, u.ID)
	require.ErrorIs(t, err, service.ErrNotFound)

	require.ErrorIs(t, e.users.Delete(ctx, service.Actor{Roles: []string{"ADMIN"}}, u.ID), service.ErrNotFound)
}

func TestMembersAndSearch(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	a := e.register(t, "ivy@kanbee.dev", "ivy")
	b := e.register(t, "jon@kanbee.dev", "jon")

	got, err := e.users.Members(ctx, []string{b.ID, "missing", a.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, b.ID, got[0].ID)
	require.Equal(t, a.ID, got[1].ID)

	found, err := e.users.Search(ctx, "IVY")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, a.ID, found[0].ID)

	_, err = e.users.Search(ctx, " ")
	require.ErrorIs(t, err, service.ErrInvalidInput)
}
