package memory_test

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/store"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store/drivers/memory"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store/storetest"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return memory.NewStore() })
}

func TestReturnedValuesAreCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	u := storetest.NewUser("copy@kanbee.dev", "copy")
	require.NoError(t, s.Users().CreateUser(ctx, u))

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	got.AddProject("leak")

	again, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, again.ProjectIDs)
}

func TestTxUnusableAfterCommit(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	tx, err := s.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	_, err = tx.Users().GetUserByID(ctx, "x")
	require.Error(t, err)
	require.NotErrorIs(t, err, store.ErrNotFound)
}
