package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/service"
	"github.com/stretchr/testify/require"
)

const device = "Mozilla/5.0 (X11; Linux x86_64)"

func TestIssueAndAuthenticate(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "kim@kanbee.dev", "kim")

	pair, err := e.sessions.Issue(ctx, u, device)
	require.NoError(t, err)
	require.NotEmpty(t, pair.RefreshToken)
	require.WithinDuration(t, e.clock.Now().Add(24*time.Hour), pair.RefreshExpiresAt, time.Second)

	claims, err := e.sessions.Authenticate(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, claims.UserID())
	require.Equal(t, u.Email, claims.Email)
	require.Equal(t, []string{"USER"}, claims.Roles)

	_, err = e.sessions.Authenticate("garbage")
	require.ErrorIs(t, err, service.ErrUnauthenticated)
}

func TestRotateChainAndReplay(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "lee@kanbee.dev", "lee")

	first, err := e.sessions.Issue(ctx, u, device)
	require.NoError(t, err)

	current := first.RefreshToken
	for range 3 {
		next, err := e.sessions.Rotate(ctx, current, device)
		require.NoError(t, err)
		require.NotEqual(t, current, next.RefreshToken)
		current = next.RefreshToken
	}

	_, err = e.sessions.Rotate(ctx, first.RefreshToken, device)
	require.ErrorIs(t, err, service.ErrSessionExpired)
	require.ErrorIs(t, err, service.ErrUnauthenticated)

	_, err = e.sessions.Rotate(ctx, current, device)
	require.NoError(t, err, "a failed replay leaves the live token intact")
}

func TestRotateRejects(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("other device", func(t *testing.T) {
		e := newEnv(t)
		u := e.register(t, "max@kanbee.dev", "max")
		pair, err := e.sessions.Issue(ctx, u, device)
		require.NoError(t, err)

		_, err = e.sessions.Rotate(ctx, pair.RefreshToken, "curl/8.0")
		require.ErrorIs(t, err, service.ErrSessionExpired)
	})

	t.Run("past expiry", func(t *testing.T) {
		e := newEnv(t)
		u := e.register(t, "ned@kanbee.dev", "ned")
		pair, err := e.sessions.Issue(ctx, u, device)
		require.NoError(t, err)

		e.clock.Advance(25 * time.Hour)
		_, err = e.sessions.Rotate(ctx, pair.RefreshToken, device)
		require.ErrorIs(t, err, service.ErrSessionExpired)
	})

	t.Run("empty and unknown", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.sessions.Rotate(ctx, "", device)
		require.ErrorIs(t, err, service.ErrSessionExpired)
		_, err = e.sessions.Rotate(ctx, "never-issued", device)
		require.ErrorIs(t, err, service.ErrSessionExpired)
	})

	t.Run("deleted user", func(t *testing.T) {
		e := newEnv(t)
		u := e.register(t, "oli@kanbee.dev", "oli")
		pair, err := e.sessions.Issue(ctx, u, device)
		require.NoError(t, err)
		require.NoError(t, e.users.Delete(ctx, service.Actor{UserID: u.ID}, u.ID))

		_, err = e.sessions.Rotate(ctx, pair.RefreshToken, device)
		require.ErrorIs(t, err, service.ErrSessionExpired)
	})
}

func TestIssueReplacesDeviceSession(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "pam@kanbee.dev", "pam")

	a, err := e.sessions.Issue(ctx, u, device)
	require.NoError(t, err)
	b, err := e.sessions.Issue(ctx, u, device)
	require.NoError(t, err)

	_, err = e.sessions.Rotate(ctx, a.RefreshToken, device)
	require.ErrorIs(t, err, service.ErrSessionExpired, "one live token per device")
	_, err = e.sessions.Rotate(ctx, b.RefreshToken, device)
	require.NoError(t, err)

	other, err := e.sessions.Issue(ctx, u, "phone")
	require.NoError(t, err)
	_, err = e.sessions.Rotate(ctx, other.RefreshToken, "phone")
	require.NoError(t, err, "devices hold independent sessions")
}

func TestRacingRotationsHaveOneWinner(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "quinn@kanbee.dev", "quinn")
	pair, err := e.sessions.Issue(ctx, u, device)
	require.NoError(t, err)

	const racers = 2
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	start := make(chan struct{})
	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := e.sessions.Rotate(ctx, pair.RefreshToken, device)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	var ok, expired int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, service.ErrSessionExpired):
			expired++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, racers-1, expired)
}

func TestPeek(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "ray@kanbee.dev", "ray")
	pair, err := e.sessions.Issue(ctx, u, device)
	require.NoError(t, err)

	access, _, err := e.sessions.Peek(ctx, pair.RefreshToken, device)
	require.NoError(t, err)
	claims, err := e.sessions.Authenticate(access)
	require.NoError(t, err)
	require.Equal(t, u.ID, claims.UserID())

	_, err = e.sessions.Rotate(ctx, pair.RefreshToken, device)
	require.NoError(t, err, "peek does not consume the token")

	_, _, err = e.sessions.Peek(ctx, pair.RefreshToken, device)
	require.ErrorIs(t, err, service.ErrSessionExpired)
	_, _, err = e.sessions.Peek(ctx, "", device)
	require.ErrorIs(t, err, service.ErrSessionExpired)
}

func TestPeekUsesCurrentClaims(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "sam@kanbee.dev", "sam")
	pair, err := e.sessions.Issue(ctx, u, device)
	require.NoError(t, err)

	u = e.user(t, u.ID)
	u.Roles = append(u.Roles, "ADMIN")
	require.NoError(t, e.store.Users().UpdateUser(ctx, u))
	e.users.Forget(ctx, u)

	access, _, err := e.sessions.Peek(ctx, pair.RefreshToken, device)
	require.NoError(t, err)
	claims, err := e.sessions.Authenticate(access)
	require.NoError(t, err)
	require.True(t, claims.HasRole("ADMIN"))
}

func TestRevokeIsIdempotent(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "tao@kanbee.dev", "tao")
	pair, err := e.sessions.Issue(ctx, u, device)
	require.NoError(t, err)

	require.NoError(t, e.sessions.Revoke(ctx, pair.RefreshToken))
	require.NoError(t, e.sessions.Revoke(ctx, pair.RefreshToken))
	require.NoError(t, e.sessions.Revoke(ctx, ""))

	_, err = e.sessions.Rotate(ctx, pair.RefreshToken, device)
	require.ErrorIs(t, err, service.ErrSessionExpired)
}

func TestAuthServiceSignIn(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()

	_, err := e.auth.SignUp(ctx, service.SignUpInput{Email: "uma@kanbee.dev", Password: "secret1", Username: "uma"})
	require.NoError(t, err)

	pair, err := e.auth.SignIn(ctx, "uma@kanbee.dev", "secret1", device)
	require.NoError(t, err)
	_, err = e.sessions.Rotate(ctx, pair.RefreshToken, device)
	require.NoError(t, err)

	_, err = e.auth.SignIn(ctx, "uma@kanbee.dev", "nope-nope", device)
	require.ErrorIs(t, err, service.ErrUnauthenticated)

	_, err = e.auth.ProviderSignIn(ctx, "google", "code", device)
	require.ErrorIs(t, err, service.ErrNotFound, "no providers configured")
}
