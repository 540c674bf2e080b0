package sqlstore

import (
	"context"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
)

type quotesRepo struct {
	q *Queries
}

func (r *quotesRepo) CreateQuote(ctx context.Context, qt domain.Quote) error {
	_, err := r.q.exec(ctx, `INSERT INTO quotes (id, author_id, text, created_at) VALUES (?, ?, ?, ?)`,
		qt.ID, qt.AuthorID, qt.Text, toMillis(qt.CreatedAt))
	return r.q.mapWriteErr(err)
}

func (r *quotesRepo) RandomQuote(ctx context.Context) (domain.Quote, error) {
	var (
		qt        domain.Quote
		createdAt int64
	)
	err := r.q.queryRow(ctx, `SELECT id, author_id, text, created_at FROM quotes ORDER BY RANDOM() LIMIT 1`).
		Scan(&qt.ID, &qt.AuthorID, &qt.Text, &createdAt)
	if err != nil {
		return domain.Quote{}, mapNotFound(err)
	}
	qt.CreatedAt = fromMillis(createdAt)
	return qt, nil
}
