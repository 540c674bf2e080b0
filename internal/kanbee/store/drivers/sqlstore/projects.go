package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
)

const projectColumns = `id, title, admin_id, member_ids, kanban, created_at, updated_at`

type projectsRepo struct {
	q *Queries
}

func scanProject(row rowScanner) (domain.Project, error) {
	var (
		p                    domain.Project
		members, kanban      string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&p.ID, &p.Title, &p.AdminID, &members, &kanban, &createdAt, &updatedAt); err != nil {
		return domain.Project{}, err
	}
	if err := decodeJSON(members, &p.MemberIDs); err != nil {
		return domain.Project{}, fmt.Errorf("decode projects.member_ids: %w", err)
	}
	if err := decodeJSON(kanban, &p.Kanban); err != nil {
		return domain.Project{}, fmt.Errorf("decode projects.kanban: %w", err)
	}
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	p.Normalize()
	return p, nil
}

func (r *projectsRepo) GetProjectByID(ctx context.Context, id string) (domain.Project, error) {
	p, err := scanProject(r.q.queryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`+r.q.forUpdate(), id))
	return p, mapNotFound(err)
}

func (r *projectsRepo) CreateProject(ctx context.Context, p domain.Project) error {
	p.Normalize()
	members, err := encodeJSON(p.MemberIDs)
	if err != nil {
		return err
	}
	kanban, err := encodeJSON(p.Kanban)
	if err != nil {
		return err
	}
	_, err = r.q.exec(ctx, `INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.AdminID, members, kanban, toMillis(p.CreatedAt), toMillis(p.UpdatedAt))
	return r.q.mapWriteErr(err)
}

func (r *projectsRepo) UpdateKanban(ctx context.Context, id string, kanban []domain.Column, now time.Time) error {
	if kanban == nil {
		kanban = []domain.Column{}
	}
	raw, err := encodeJSON(kanban)
	if err != nil {
		return err
	}
	return expectOne(r.q.exec(ctx, `UPDATE projects SET kanban = ?, updated_at = ? WHERE id = ?`,
		raw, toMillis(now), id))
}

func (r *projectsRepo) UpdateMembers(ctx context.Context, id string, memberIDs []string, now time.Time) error {
	if memberIDs == nil {
		memberIDs = []string{}
	}
	raw, err := encodeJSON(memberIDs)
	if err != nil {
		return err
	}
	return expectOne(r.q.exec(ctx, `UPDATE projects SET member_ids = ?, updated_at = ? WHERE id = ?`,
		raw, toMillis(now), id))
}

func (r *projectsRepo) DeleteProject(ctx context.Context, id string) error {
	return expectOne(r.q.exec(ctx, `DELETE FROM projects WHERE id = ?`, id))
}
