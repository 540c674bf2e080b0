//go:build e2e

package kanbee_test

import (
	"errors"
	"testing"

	"github.com/aussiebroadwan/kanbee/pkg/kanbeesdk"
	"github.com/stretchr/testify/require"
)

// TestSignInRateLimit hammers sign-in for one email with the default limits
// until the server answers 429.
func TestSignInRateLimit(t *testing.T) {
	baseURL := setupKanbeeContainerWithDefaultRateLimits(t)
	client := kanbeesdk.NewClient(baseURL)

	var limited bool
	for range 20 {
		_, err := client.SignIn(t.Context(), "nobody@kanbee.dev", "wrong-password")
		require.Error(t, err)
		if err != nil && isRateLimited(err) {
			limited = true
			break
		}
		require.ErrorIs(t, err, kanbeesdk.ErrUnauthenticated)
	}
	require.True(t, limited, "sign-in should be rate limited")
}

func isRateLimited(err error) bool {
	var apiErr *kanbeesdk.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 429 && apiErr.Code == kanbeesdk.ErrorCodeRateLimitExceeded
}
