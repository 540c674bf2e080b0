package memory

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store"
)

type quotesRepo struct {
	run runner
}

func (r *quotesRepo) CreateQuote(_ context.Context, q domain.Quote) error {
	return r.run(func(st *state) error {
		if _, ok := st.users[q.AuthorID]; !ok {
			return fmt.Errorf("memory: quote references unknown user %q", q.AuthorID)
		}
		for _, existing := range st.quotes {
			if existing.ID == q.ID {
				return store.ErrAlreadyExists
			}
		}
		st.quotes = append(st.quotes, q)
		return nil
	})
}

func (r *quotesRepo) RandomQuote(context.Context) (domain.Quote, error) {
	var out domain.Quote
	err := r.run(func(st *state) error {
		if len(st.quotes) == 0 {
			return store.ErrNotFound
		}
		out = st.quotes[rand.IntN(len(st.quotes))]
		return nil
	})
	return out, err
}
