// Package sqlstore implements the store repositories on database/sql. The
// sqlite and postgres drivers share it and differ only in their Dialect and
// migrations.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/store"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect captures the differences between the supported SQL engines.
type Dialect struct {
	Name string

	// NumberedParams rewrites ? placeholders to $1, $2, ...
	NumberedParams bool

	// ILike is the case-insensitive LIKE operator.
	ILike string

	// IsUniqueViolation reports whether err is a unique constraint failure.
	IsUniqueViolation func(error) bool

	// ForUpdate is appended to row reads made inside a transaction. Engines
	// that serialise writers on their own leave it empty.
	ForUpdate string
}

// Queries runs dialect-adjusted SQL against a DBTX.
type Queries struct {
	db DBTX
	d  Dialect

	// locking is set on transaction-scoped queries.
	locking bool
}

func New(db DBTX, d Dialect) *Queries {
	return &Queries{db: db, d: d}
}

func newTxQueries(tx DBTX, d Dialect) *Queries {
	return &Queries{db: tx, d: d, locking: true}
}

// forUpdate returns the row lock clause for reads that feed a write.
func (q *Queries) forUpdate() string {
	if !q.locking || q.d.ForUpdate == "" {
		return ""
	}
	return " " + q.d.ForUpdate
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.db.ExecContext(ctx, q.rebind(query), args...)
}

func (q *Queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.db.QueryContext(ctx, q.rebind(query), args...)
}

func (q *Queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.db.QueryRowContext(ctx, q.rebind(query), args...)
}

func (q *Queries) rebind(query string) string {
	if !q.d.NumberedParams || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (q *Queries) mapWriteErr(err error) error {
	if err != nil && q.d.IsUniqueViolation != nil && q.d.IsUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// expectOne turns a zero-row write into ErrNotFound.
func expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func encodeJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

// likePattern escapes LIKE wildcards in s and wraps it for substring search.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
