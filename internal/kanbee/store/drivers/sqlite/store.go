package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/store"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store/drivers/sqlstore"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect is SQLite's flavour of the shared repositories.
var Dialect = sqlstore.Dialect{
	Name:              "sqlite",
	ILike:             "LIKE", // ASCII case-insensitive by default
	IsUniqueViolation: isUniqueViolation,
}

type Store struct {
	*sqlstore.Store
}

var _ store.Store = (*Store)(nil)

// NewStore opens dsn (a file path or ":memory:"). SQLite allows a single
// writer, so the pool is pinned to one connection; this also keeps an
// in-memory database alive for the life of the Store.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	// Enforce FKs
	for _, pragma := range []string{`PRAGMA foreign_keys = ON;`, `PRAGMA busy_timeout = 5000;`} {
		if _, err := db.ExecContext(context.Background(), pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &Store{Store: sqlstore.NewStore(db, Dialect)}, nil
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
