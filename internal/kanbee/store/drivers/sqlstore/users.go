package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
)

const userColumns = `id, email, username, password_hash, roles, avatar, provider,
	project_ids, invites, exclusions, created_projects, cycle_timer, created_at, updated_at`

type usersRepo struct {
	q *Queries
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u                                domain.User
		provider                         string
		roles, projects, invites, exiled string
		createdAt, updatedAt             int64
	)
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &roles, &u.Avatar, &provider,
		&projects, &invites, &exiled, &u.CreatedProjects, &u.CycleTimer, &createdAt, &updatedAt)
	if err != nil {
		return domain.User{}, err
	}

	u.Provider = domain.Provider(provider)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)

	if err := decodeJSON(roles, &u.Roles); err != nil {
		return domain.User{}, fmt.Errorf("decode users.roles: %w", err)
	}
	if err := decodeJSON(projects, &u.ProjectIDs); err != nil {
		return domain.User{}, fmt.Errorf("decode users.project_ids: %w", err)
	}
	if err := decodeJSON(invites, &u.Invites); err != nil {
		return domain.User{}, fmt.Errorf("decode users.invites: %w", err)
	}
	if err := decodeJSON(exiled, &u.Exclusions); err != nil {
		return domain.User{}, fmt.Errorf("decode users.exclusions: %w", err)
	}
	u.Normalize()
	return u, nil
}

type userSets struct {
	roles, projects, invites, exclusions string
}

func encodeUserSets(u domain.User) (userSets, error) {
	u.Normalize()
	var (
		s   userSets
		err error
	)
	if s.roles, err = encodeJSON(u.Roles); err != nil {
		return s, err
	}
	if s.projects, err = encodeJSON(u.ProjectIDs); err != nil {
		return s, err
	}
	if s.invites, err = encodeJSON(u.Invites); err != nil {
		return s, err
	}
	if s.exclusions, err = encodeJSON(u.Exclusions); err != nil {
		return s, err
	}
	return s, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	u, err := scanUser(r.q.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`+r.q.forUpdate(), id))
	return u, mapNotFound(err)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	u, err := scanUser(r.q.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`+r.q.forUpdate(), email))
	return u, mapNotFound(err)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	sets, err := encodeUserSets(u)
	if err != nil {
		return err
	}
	_, err = r.q.exec(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Username, u.PasswordHash, sets.roles, u.Avatar, string(u.Provider),
		sets.projects, sets.invites, sets.exclusions, u.CreatedProjects, u.CycleTimer,
		toMillis(u.CreatedAt), toMillis(u.UpdatedAt))
	return r.q.mapWriteErr(err)
}

func (r *usersRepo) UpdateUser(ctx context.Context, u domain.User) error {
	sets, err := encodeUserSets(u)
	if err != nil {
		return err
	}
	res, err := r.q.exec(ctx, `UPDATE users SET
			username = ?, password_hash = ?, roles = ?, avatar = ?, provider = ?,
			project_ids = ?, invites = ?, exclusions = ?,
			created_projects = ?, cycle_timer = ?, updated_at = ?
		WHERE id = ?`,
		u.Username, u.PasswordHash, sets.roles, u.Avatar, string(u.Provider),
		sets.projects, sets.invites, sets.exclusions,
		u.CreatedProjects, u.CycleTimer, toMillis(u.UpdatedAt), u.ID)
	return expectOne(res, r.q.mapWriteErr(err))
}

func (r *usersRepo) UpsertUserByEmail(ctx context.Context, u domain.User) (domain.User, error) {
	sets, err := encodeUserSets(u)
	if err != nil {
		return domain.User{}, err
	}
	row := r.q.queryRow(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			username = excluded.username,
			avatar = CASE WHEN excluded.avatar <> '' THEN excluded.avatar ELSE users.avatar END,
			provider = excluded.provider,
			updated_at = excluded.updated_at
		RETURNING `+userColumns,
		u.ID, u.Email, u.Username, u.PasswordHash, sets.roles, u.Avatar, string(u.Provider),
		sets.projects, sets.invites, sets.exclusions, u.CreatedProjects, u.CycleTimer,
		toMillis(u.CreatedAt), toMillis(u.UpdatedAt))
	return scanUser(row)
}

func (r *usersRepo) SearchUsers(ctx context.Context, query string, limit int) ([]domain.User, error) {
	pattern := likePattern(strings.ToLower(query))
	op := r.q.d.ILike
	rows, err := r.q.query(ctx, `SELECT `+userColumns+` FROM users
		WHERE email `+op+` ? ESCAPE '\' OR username `+op+` ? ESCAPE '\'
		ORDER BY username, id
		LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *usersRepo) DeleteUser(ctx context.Context, id string) error {
	return expectOne(r.q.exec(ctx, `DELETE FROM users WHERE id = ?`, id))
}
