package coordinator

import (
	"context"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/realtime"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/service"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store"
)

// SendInvite invites the user registered under email and notifies them.
func (c *Coordinator) SendInvite(ctx context.Context, actor service.Actor, projectID, email string) (domain.Invite, error) {
	unlock := c.locks.Lock(projectID)
	defer unlock()

	var (
		p      domain.Project
		target domain.User
	)
	err := c.commit(ctx, "send_invite", actor, projectID, func(tx store.Tx) error {
		cur, err := txProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if err := requireMember(actor, cur); err != nil {
			return err
		}
		p, target, err = c.Membership.SendInvite(ctx, tx, projectID, email)
		return err
	}, func() []string { return []string{target.ID} })
	if err != nil {
		return domain.Invite{}, err
	}

	c.Users.Remember(ctx, target)

	inv := domain.Invite{ProjectID: p.ID, Title: p.Title}
	c.Bus.EmitToUser(target.ID, realtime.EventGetInvite, inv)
	return inv, nil
}

// AccessInvite makes userID a member and subscribes their connections.
func (c *Coordinator) AccessInvite(ctx context.Context, actor service.Actor, projectID, userID string) (domain.Project, error) {
	if err := requireSelf(actor, userID); err != nil {
		return domain.Project{}, err
	}

	unlock := c.locks.Lock(projectID)
	defer unlock()

	var (
		p         domain.Project
		u         domain.User
		wasMember bool
	)
	err := c.commit(ctx, "access_invite", actor, projectID, func(tx store.Tx) (err error) {
		if cur, err := tx.Projects().GetProjectByID(ctx, projectID); err == nil {
			wasMember = cur.IsMember(userID)
		}
		p, u, err = c.Membership.AccessInvite(ctx, tx, projectID, userID)
		return err
	}, touchedUsers(userID))
	if err != nil {
		return domain.Project{}, err
	}

	c.Users.Remember(ctx, u)
	c.rememberProject(ctx, p)
	c.Bus.SubscribeUser(u.ID, realtime.ProjectScope(p.ID))
	if !wasMember {
		c.Bus.EmitToProject(p.ID, realtime.EventUpdateProject, p, actor.ConnID)
	}
	return p, nil
}

// IgnoreInvite discards userID's pending invite.
func (c *Coordinator) IgnoreInvite(ctx context.Context, actor service.Actor, projectID, userID string) (domain.User, error) {
	if err := requireSelf(actor, userID); err != nil {
		return domain.User{}, err
	}

	var u domain.User
	err := c.commit(ctx, "ignore_invite", actor, projectID, func(tx store.Tx) (err error) {
		u, err = c.Membership.IgnoreInvite(ctx, tx, projectID, userID)
		return err
	}, nil)
	if err != nil {
		return domain.User{}, err
	}

	c.Users.Remember(ctx, u)
	return u, nil
}

// ExileUser removes userID from the project on the project admin's behalf.
func (c *Coordinator) ExileUser(ctx context.Context, actor service.Actor, projectID, userID string) (domain.Project, error) {
	return c.removeMember(ctx, actor, projectID, userID, true)
}

// LeaveProject removes userID from the project at their own request.
func (c *Coordinator) LeaveProject(ctx context.Context, actor service.Actor, projectID, userID string) (domain.Project, error) {
	if err := requireSelf(actor, userID); err != nil {
		return domain.Project{}, err
	}
	return c.removeMember(ctx, actor, projectID, userID, false)
}

// removeMember broadcasts only when membership actually changed, so
// repeating an exile or leave is silent.
func (c *Coordinator) removeMember(ctx context.Context, actor service.Actor, projectID, userID string, exile bool) (domain.Project, error) {
	unlock := c.locks.Lock(projectID)
	defer unlock()

	op := "leave_project"
	if exile {
		op = "exile_user"
	}

	var (
		p         domain.Project
		u         *domain.User
		wasMember bool
	)
	err := c.commit(ctx, op, actor, projectID, func(tx store.Tx) error {
		cur, err := txProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if exile {
			if err := requireProjectAdmin(actor, cur); err != nil {
				return err
			}
			p, u, err = c.Membership.Exile(ctx, tx, projectID, userID)
		} else {
			p, u, err = c.Membership.Leave(ctx, tx, projectID, userID)
		}
		wasMember = cur.IsMember(userID)
		return err
	}, touchedUsers(userID))
	if err != nil {
		return domain.Project{}, err
	}

	if u != nil {
		c.Users.Remember(ctx, *u)
	}
	c.rememberProject(ctx, p)
	if !wasMember {
		return p, nil
	}

	scope := realtime.ProjectScope(p.ID)
	c.Bus.EmitToUser(userID, realtime.EventExileUser, ExileNotice{ProjectID: p.ID, Title: p.Title, Left: !exile})
	c.Bus.UnsubscribeUser(userID, scope)
	c.Bus.EmitToProject(p.ID, realtime.EventUpdateProject, p, actor.ConnID)
	return p, nil
}

// AcceptExclusion acknowledges an exclusion notice.
func (c *Coordinator) AcceptExclusion(ctx context.Context, actor service.Actor, title, userID string) (domain.User, error) {
	if err := requireSelf(actor, userID); err != nil {
		return domain.User{}, err
	}

	var u domain.User
	err := c.commit(ctx, "accept_exclusion", actor, "", func(tx store.Tx) (err error) {
		u, err = c.Membership.AcceptExclusion(ctx, tx, title, userID)
		return err
	}, nil)
	if err != nil {
		return domain.User{}, err
	}

	c.Users.Remember(ctx, u)
	return u, nil
}
