//go:build e2e

package kanbee_test

import (
	"testing"

	"github.com/aussiebroadwan/kanbee/pkg/kanbeesdk"
	"github.com/stretchr/testify/require"
)

// TestSessionLifecycle signs up, rotates the refresh cookie, restores the
// session with init and logs out.
func TestSessionLifecycle(t *testing.T) {
	baseURL := setupKanbeeContainer(t)
	client, _, me := signUp(t, baseURL, "ann")
	require.Equal(t, "ann@kanbee.dev", me.Email)
	require.Equal(t, []string{"USER"}, me.Roles)
	require.NotEmpty(t, me.Avatar, "a default avatar is assigned")

	peek, err := client.AmIAuth(t.Context())
	require.NoError(t, err)
	require.NotEmpty(t, peek.AccessToken)

	rotated, err := client.Refresh(t.Context())
	require.NoError(t, err)
	require.NotEmpty(t, rotated.AccessToken)

	restored, user, err := client.Init(t.Context())
	require.NoError(t, err)
	require.Equal(t, me.ID, user.ID)
	require.NotEmpty(t, restored.AccessToken())

	require.NoError(t, client.Logout(t.Context()))

	_, err = client.Refresh(t.Context())
	require.ErrorIs(t, err, kanbeesdk.ErrUnauthenticated)
}

// TestSignInRejectsWrongPassword checks credential errors surface as 401.
func TestSignInRejectsWrongPassword(t *testing.T) {
	baseURL := setupKanbeeContainer(t)
	signUp(t, baseURL, "bob")

	client := kanbeesdk.NewClient(baseURL)
	_, err := client.SignIn(t.Context(), "bob@kanbee.dev", "wrong-password")
	require.ErrorIs(t, err, kanbeesdk.ErrUnauthenticated)

	sess, err := client.SignIn(t.Context(), "bob@kanbee.dev", testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, sess.AccessToken())

	_, err = client.SignUp(t.Context(), kanbeesdk.SignUpRequest{
		Email: "bob@kanbee.dev", Password: testPassword, Username: "bob2",
	})
	require.ErrorIs(t, err, kanbeesdk.ErrConflict)
}
