package coordinator

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/realtime"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/service"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store"
)

// CreateProject creates a project owned by the actor and subscribes the
// actor's connections to it.
func (c *Coordinator) CreateProject(ctx context.Context, actor service.Actor, title string) (domain.Project, error) {
	var (
		p     domain.Project
		owner domain.User
	)
	err := c.commit(ctx, "create_project", actor, "", func(tx store.Tx) (err error) {
		p, owner, err = c.Membership.CreateProject(ctx, tx, title, actor.UserID)
		return err
	}, nil)
	if err != nil {
		return domain.Project{}, err
	}

	c.Users.Remember(ctx, owner)
	c.rememberProject(ctx, p)
	c.Bus.SubscribeUser(actor.UserID, realtime.ProjectScope(p.ID))
	return p, nil
}

// FindProject returns a project visible to the actor.
func (c *Coordinator) FindProject(ctx context.Context, actor service.Actor, projectID string) (domain.Project, error) {
	p, err := c.loadProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := requireMemberOrAdmin(actor, p); err != nil {
		return domain.Project{}, err
	}
	p.Normalize()
	return p, nil
}

// FindProjects resolves ids in order, silently skipping projects that are
// gone or not visible to the actor. Without ids the actor's own project
// list is used.
func (c *Coordinator) FindProjects(ctx context.Context, actor service.Actor, ids []string) ([]domain.Project, error) {
	if len(ids) == 0 {
		u, err := c.Users.FindByID(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		ids = u.ProjectIDs
	}

	out := make([]domain.Project, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		p, err := c.FindProject(ctx, actor, id)
		switch {
		case err == nil:
			out = append(out, p)
		case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrInvalidInput):
		default:
			return nil, err
		}
	}
	return out, nil
}

// GetMembers lists the public profile of every member that still exists.
func (c *Coordinator) GetMembers(ctx context.Context, actor service.Actor, projectID string) ([]Member, error) {
	p, err := c.FindProject(ctx, actor, projectID)
	if err != nil {
		return nil, err
	}
	users, err := c.Users.Members(ctx, p.MemberIDs)
	if err != nil {
		return nil, err
	}

	out := make([]Member, len(users))
	for i, u := range users {
		out[i] = Member{ID: u.ID, Username: u.Username, Avatar: u.Avatar}
	}
	return out, nil
}

// SubscribeProject joins one connection to a project's broadcasts.
func (c *Coordinator) SubscribeProject(ctx context.Context, actor service.Actor, projectID string) (domain.Project, error) {
	p, err := c.FindProject(ctx, actor, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if actor.ConnID != "" {
		c.Bus.Subscribe(actor.ConnID, realtime.ProjectScope(p.ID))
	}
	return p, nil
}

// UpdateKanban replaces the board and pushes it to the other subscribers.
func (c *Coordinator) UpdateKanban(ctx context.Context, actor service.Actor, projectID string, kanban []domain.Column) (domain.Project, error) {
	unlock := c.locks.Lock(projectID)
	defer unlock()

	var p domain.Project
	err := c.commit(ctx, "update_kanban", actor, projectID, func(tx store.Tx) error {
		cur, err := txProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if err := requireMember(actor, cur); err != nil {
			return err
		}
		p, err = c.Membership.UpdateKanban(ctx, tx, projectID, kanban)
		return err
	}, nil)
	if err != nil {
		return domain.Project{}, err
	}

	c.rememberProject(ctx, p)
	c.Bus.EmitToProject(p.ID, realtime.EventUpdateProject, p, actor.ConnID)
	return p, nil
}

// RemoveProject deletes a project and tells every client.
func (c *Coordinator) RemoveProject(ctx context.Context, actor service.Actor, projectID string) (ProjectRef, error) {
	unlock := c.locks.Lock(projectID)
	defer unlock()

	var (
		p       domain.Project
		touched []domain.User
	)
	err := c.commit(ctx, "remove_project", actor, projectID, func(tx store.Tx) error {
		cur, err := txProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if err := requireProjectAdmin(actor, cur); err != nil {
			return err
		}
		p, touched, err = c.Membership.RemoveProject(ctx, tx, projectID)
		return err
	}, func() []string { return p.MemberIDs })
	if err != nil {
		return ProjectRef{}, err
	}

	c.Users.Remember(ctx, touched...)
	c.forgetProject(ctx, p.ID)

	ref := ProjectRef{ID: p.ID, Title: p.Title}
	c.Bus.EmitToAll(realtime.EventDeleteProject, ref)
	c.Bus.DropScope(realtime.ProjectScope(p.ID))
	return ref, nil
}
