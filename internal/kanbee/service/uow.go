package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/store"
)

// InTx runs fn as one unit of work. fn's own error rolls back and is
// returned as is. A failed commit, or a rollback that fails after fn did,
// is a *SyncFault: the store may have applied part of the work.
func InTx(ctx context.Context, st store.Store, op string, fn func(tx store.Tx) error, attrs ...any) (err error) {
	tx, err := st.Tx(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return &SyncFault{Op: op, Cause: errors.Join(err, rbErr), Attrs: attrs}
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return &SyncFault{Op: op, Cause: err, Attrs: attrs}
	}
	return nil
}

// storeErr translates repository sentinels into the service taxonomy.
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return notFoundf("%s", what)
	case errors.Is(err, store.ErrAlreadyExists):
		return conflictf("%s already exists", what)
	default:
		return err
	}
}
