package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store"
)

type usersRepo struct {
	run runner
}

func (r *usersRepo) GetUserByID(_ context.Context, id string) (domain.User, error) {
	var out domain.User
	err := r.run(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return store.ErrNotFound
		}
		out = u.Clone()
		return nil
	})
	return out, err
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var out domain.User
	err := r.run(func(st *state) error {
		id, ok := st.emails[email]
		if !ok {
			return store.ErrNotFound
		}
		out = st.users[id].Clone()
		return nil
	})
	return out, err
}

func (r *usersRepo) CreateUser(_ context.Context, u domain.User) error {
	return r.run(func(st *state) error {
		if _, ok := st.users[u.ID]; ok {
			return store.ErrAlreadyExists
		}
		if _, ok := st.emails[u.Email]; ok {
			return store.ErrAlreadyExists
		}
		u = u.Clone()
		u.Normalize()
		st.users[u.ID] = u
		st.emails[u.Email] = u.ID
		return nil
	})
}

func (r *usersRepo) UpdateUser(_ context.Context, u domain.User) error {
	return r.run(func(st *state) error {
		cur, ok := st.users[u.ID]
		if !ok {
			return store.ErrNotFound
		}
		next := u.Clone()
		next.Email = cur.Email
		next.CreatedAt = cur.CreatedAt
		next.Normalize()
		st.users[u.ID] = next
		return nil
	})
}

func (r *usersRepo) UpsertUserByEmail(_ context.Context, u domain.User) (domain.User, error) {
	var out domain.User
	err := r.run(func(st *state) error {
		if id, ok := st.emails[u.Email]; ok {
			cur := st.users[id]
			cur.Username = u.Username
			if u.Avatar != "" {
				cur.Avatar = u.Avatar
			}
			cur.Provider = u.Provider
			cur.UpdatedAt = u.UpdatedAt
			st.users[id] = cur
			out = cur.Clone()
			return nil
		}
		if _, ok := st.users[u.ID]; ok {
			return store.ErrAlreadyExists
		}
		u = u.Clone()
		u.Normalize()
		st.users[u.ID] = u
		st.emails[u.Email] = u.ID
		out = u.Clone()
		return nil
	})
	return out, err
}

func (r *usersRepo) SearchUsers(_ context.Context, query string, limit int) ([]domain.User, error) {
	q := strings.ToLower(query)
	var out []domain.User
	err := r.run(func(st *state) error {
		for _, u := range st.users {
			if strings.Contains(strings.ToLower(u.Email), q) || strings.Contains(strings.ToLower(u.Username), q) {
				out = append(out, u.Clone())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b domain.User) int {
		return cmp.Or(cmp.Compare(a.Username, b.Username), cmp.Compare(a.ID, b.ID))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *usersRepo) DeleteUser(_ context.Context, id string) error {
	return r.run(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return store.ErrNotFound
		}
		delete(st.users, id)
		delete(st.emails, u.Email)

		for tok, s := range st.sessions {
			if s.UserID == id {
				delete(st.sessions, tok)
				delete(st.sessionKey, deviceKey{s.UserID, s.UserAgent})
			}
		}
		st.quotes = slices.DeleteFunc(st.quotes, func(q domain.Quote) bool { return q.AuthorID == id })
		return nil
	})
}
