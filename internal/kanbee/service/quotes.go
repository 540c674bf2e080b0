package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/cache"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store"
	"github.com/aussiebroadwan/kanbee/pkg/idx"
	"github.com/aussiebroadwan/kanbee/pkg/slogx"
)

const DefaultQuoteTTL = time.Hour

// PlaceholderQuote is served while no quotes exist.
var PlaceholderQuote = domain.QuoteOfTheDay{Text: "opss..."}

type QuoteService struct {
	Store store.Store
	Cache cache.Cache
	Users *UserService
	TTL   time.Duration
	Now   func() time.Time
}

// Create stores a quote by authorID.
func (s *QuoteService) Create(ctx context.Context, authorID, text string) (domain.Quote, error) {
	text = strings.TrimSpace(text)
	n := utf8.RuneCountInString(text)
	if n < domain.QuoteMinLen || n > domain.QuoteMaxLen {
		return domain.Quote{}, invalidf("quote must be %d to %d characters", domain.QuoteMinLen, domain.QuoteMaxLen)
	}

	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	q := domain.Quote{ID: idx.New().String(), AuthorID: authorID, Text: text, CreatedAt: now}
	if err := s.Store.Quotes().CreateQuote(ctx, q); err != nil {
		return domain.Quote{}, storeErr(err, "quote")
	}

	slogx.FromContext(ctx).Info("quote created", slog.String("quote_id", q.ID), slog.String("author_id", authorID))
	return q, nil
}

// Random returns the cached quote of the moment, picking and caching a new
// one when the previous entry has expired.
func (s *QuoteService) Random(ctx context.Context) (domain.QuoteOfTheDay, error) {
	if q, err := cache.GetJSON[domain.QuoteOfTheDay](ctx, s.Cache, cache.QuoteKey); err == nil {
		return q, nil
	}

	q, err := s.Store.Quotes().RandomQuote(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return PlaceholderQuote, nil
	}
	if err != nil {
		return domain.QuoteOfTheDay{}, err
	}

	out := domain.QuoteOfTheDay{Text: q.Text}
	author, err := s.Users.FindByID(ctx, q.AuthorID)
	switch {
	case err == nil:
		out.Username, out.Avatar = author.Username, author.Avatar
	case !errors.Is(err, ErrNotFound):
		return domain.QuoteOfTheDay{}, err
	}

	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultQuoteTTL
	}
	_ = cache.SetJSON(ctx, s.Cache, cache.QuoteKey, out, ttl)
	return out, nil
}
