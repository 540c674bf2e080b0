package http

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/service"
	"github.com/stretchr/testify/require"
)

func TestAPIError(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		err    error
		status int
		code   string
	}{
		{service.ErrSessionExpired, http.StatusUnauthorized, service.CodeUnauthenticated},
		{fmt.Errorf("%w: not a member", service.ErrForbidden), http.StatusForbidden, service.CodeForbidden},
		{service.ErrNotFound, http.StatusNotFound, service.CodeNotFound},
		{service.ErrConflict, http.StatusConflict, service.CodeConflict},
		{service.ErrInvalidInput, http.StatusBadRequest, service.CodeInvalidInput},
		{&service.SyncFault{Op: "exile_user", Cause: errors.New("commit")}, http.StatusInternalServerError, service.CodeSyncFault},
		{errors.New("disk on fire"), http.StatusInternalServerError, service.CodeServerError},
	} {
		got := apiError(tc.err)
		require.Equal(t, tc.status, got.Status, tc.err.Error())
		require.Equal(t, tc.code, got.Code, tc.err.Error())
	}

	require.Equal(t, "internal error", apiError(errors.New("disk on fire")).Description)
}
