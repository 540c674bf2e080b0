package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/kanbee/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestNewAccessClaims(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	roles := []string{"USER"}
	c := jwtx.NewAccessClaims("user-1", "a@kanbee.dev", roles, 5*time.Minute, "kanbee", now)

	require.Equal(t, "user-1", c.UserID())
	require.Equal(t, "a@kanbee.dev", c.Email)
	require.True(t, c.HasRole("USER"))
	require.False(t, c.HasRole("ADMIN"))
	require.NotEmpty(t, c.ID)
	require.WithinDuration(t, now.Add(5*time.Minute), c.ExpiresAt.Time, time.Second)

	roles[0] = "ADMIN"
	require.False(t, c.HasRole("ADMIN"), "claims must not alias the caller's slice")
}

func TestClaimsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, (&jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}, Email: "e"}).Validate())
	require.ErrorIs(t, (&jwtx.Claims{Email: "e"}).Validate(), jwtx.ErrInvalidClaim)
	require.ErrorIs(t, (&jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}}).Validate(), jwtx.ErrInvalidClaim)
}

func TestValidateIssuer(t *testing.T) {
	t.Parallel()

	c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "kanbee"}}

	require.NoError(t, c.ValidateIssuer("kanbee"))
	require.NoError(t, c.ValidateIssuer(""))
	require.ErrorIs(t, c.ValidateIssuer("someone-else"), jwtx.ErrIssuer)
}

func TestValidateExpiry(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	t.Run("valid token", func(t *testing.T) {
		c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute))}}
		require.NoError(t, c.ValidateExpiry())
	})

	t.Run("expired token", func(t *testing.T) {
		c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))}}
		require.ErrorIs(t, c.ValidateExpiry(), jwtx.ErrExpired)
	})

	t.Run("not yet valid", func(t *testing.T) {
		c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{NotBefore: jwt.NewNumericDate(now.Add(time.Minute))}}
		require.ErrorIs(t, c.ValidateExpiry(), jwtx.ErrNotYetValid)
	})

	t.Run("leeway absorbs skew", func(t *testing.T) {
		c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-10 * time.Second))}}
		require.NoError(t, c.ValidateExpiryWithLeeway(30*time.Second))
		require.ErrorIs(t, c.ValidateExpiryWithLeeway(time.Second), jwtx.ErrExpired)
	})
}
