package memory

import (
	"context"
	"slices"
	"time"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store"
)

type projectsRepo struct {
	run runner
}

func (r *projectsRepo) GetProjectByID(_ context.Context, id string) (domain.Project, error) {
	var out domain.Project
	err := r.run(func(st *state) error {
		p, ok := st.projects[id]
		if !ok {
			return store.ErrNotFound
		}
		out = p.Clone()
		return nil
	})
	return out, err
}

func (r *projectsRepo) CreateProject(_ context.Context, p domain.Project) error {
	return r.run(func(st *state) error {
		if _, ok := st.projects[p.ID]; ok {
			return store.ErrAlreadyExists
		}
		p = p.Clone()
		p.Normalize()
		st.projects[p.ID] = p
		return nil
	})
}

func (r *projectsRepo) UpdateKanban(_ context.Context, id string, kanban []domain.Column, now time.Time) error {
	return r.run(func(st *state) error {
		p, ok := st.projects[id]
		if !ok {
			return store.ErrNotFound
		}
		p.Kanban = (&domain.Project{Kanban: kanban}).Clone().Kanban
		p.UpdatedAt = now
		p.Normalize()
		st.projects[id] = p
		return nil
	})
}

func (r *projectsRepo) UpdateMembers(_ context.Context, id string, memberIDs []string, now time.Time) error {
	return r.run(func(st *state) error {
		p, ok := st.projects[id]
		if !ok {
			return store.ErrNotFound
		}
		p.MemberIDs = slices.Clone(memberIDs)
		p.UpdatedAt = now
		p.Normalize()
		st.projects[id] = p
		return nil
	})
}

func (r *projectsRepo) DeleteProject(_ context.Context, id string) error {
	return r.run(func(st *state) error {
		if _, ok := st.projects[id]; !ok {
			return store.ErrNotFound
		}
		delete(st.projects, id)
		return nil
	})
}
