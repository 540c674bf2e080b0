package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store"
	"github.com/aussiebroadwan/kanbee/pkg/idx"
)

const MaxProjectTitleLen = 120

// MembershipService is the project and membership state machine. Every
// method runs against a caller supplied transaction and returns the
// entities it changed; committing, caching and broadcasting are the
// caller's job.
//
//	NonMember -> Invited -> Member -> Exiled | Left -> NonMember
//
// Member, invite, project and exclusion lists are sets: adding twice keeps
// one entry and removing an absent entry changes nothing.
type MembershipService struct {
	NewID func() string
	Now   func() time.Time
}

func (m *MembershipService) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *MembershipService) newID() string {
	if m.NewID != nil {
		return m.NewID()
	}
	return idx.New().String()
}

// CreateProject creates a project administered by ownerID with the default
// board and records it on the owner.
func (m *MembershipService) CreateProject(ctx context.Context, tx store.Tx, title, ownerID string) (domain.Project, domain.User, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Project{}, domain.User{}, invalidf("project title is required")
	}
	if utf8.RuneCountInString(title) > MaxProjectTitleLen {
		return domain.Project{}, domain.User{}, invalidf("project title must be at most %d characters", MaxProjectTitleLen)
	}

	owner, err := tx.Users().GetUserByID(ctx, ownerID)
	if err != nil {
		return domain.Project{}, domain.User{}, storeErr(err, "user")
	}

	now := m.now()
	p := domain.NewProject(m.newID(), title, owner.ID, now)
	if err := tx.Projects().CreateProject(ctx, p); err != nil {
		return domain.Project{}, domain.User{}, storeErr(err, "project")
	}

	owner.AddProject(p.ID)
	owner.CreatedProjects++
	if err := m.saveUser(ctx, tx, &owner, now); err != nil {
		return domain.Project{}, domain.User{}, err
	}
	return p, owner, nil
}

// UpdateKanban replaces the board verbatim. Last writer wins.
func (m *MembershipService) UpdateKanban(ctx context.Context, tx store.Tx, projectID string, kanban []domain.Column) (domain.Project, error) {
	p, err := getProject(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	for i := range kanban {
		if strings.TrimSpace(kanban[i].ID) == "" {
			return domain.Project{}, invalidf("column %d has no id", i)
		}
	}

	now := m.now()
	p.Kanban = kanban
	p.UpdatedAt = now
	p.Normalize()
	if err := tx.Projects().UpdateKanban(ctx, p.ID, p.Kanban, now); err != nil {
		return domain.Project{}, storeErr(err, "project")
	}
	return p, nil
}

// RemoveProject drops the project from every member's project list and
// deletes it. Members that no longer exist are skipped.
func (m *MembershipService) RemoveProject(ctx context.Context, tx store.Tx, projectID string) (domain.Project, []domain.User, error) {
	p, err := getProject(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, nil, err
	}

	now := m.now()
	var touched []domain.User
	for _, id := range p.MemberIDs {
		u, err := tx.Users().GetUserByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return domain.Project{}, nil, err
		}
		if !u.RemoveProject(p.ID) {
			continue
		}
		if err := m.saveUser(ctx, tx, &u, now); err != nil {
			return domain.Project{}, nil, err
		}
		touched = append(touched, u)
	}

	if err := tx.Projects().DeleteProject(ctx, p.ID); err != nil {
		return domain.Project{}, nil, storeErr(err, "project")
	}
	return p, touched, nil
}

// SendInvite adds a pending invite for the user registered under email.
// A second invite to the same project collapses into the first.
func (m *MembershipService) SendInvite(ctx context.Context, tx store.Tx, projectID, email string) (domain.Project, domain.User, error) {
	p, err := getProject(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, domain.User{}, err
	}

	target, err := tx.Users().GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return domain.Project{}, domain.User{}, storeErr(err, "user")
	}
	if p.IsMember(target.ID) {
		return domain.Project{}, domain.User{}, conflictf("%s is already a member", target.Email)
	}

	if target.AddInvite(domain.Invite{ProjectID: p.ID, Title: p.Title}) {
		if err := m.saveUser(ctx, tx, &target, m.now()); err != nil {
			return domain.Project{}, domain.User{}, err
		}
	}
	return p, target, nil
}

// AccessInvite turns userID's pending invite into membership. Accepting an
// invite for a project the user already belongs to only clears the invite.
func (m *MembershipService) AccessInvite(ctx context.Context, tx store.Tx, projectID, userID string) (domain.Project, domain.User, error) {
	u, err := tx.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.Project{}, domain.User{}, storeErr(err, "user")
	}
	p, err := getProject(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, domain.User{}, err
	}

	_, invited := u.PendingInvite(projectID)
	if !invited && !p.IsMember(u.ID) {
		return domain.Project{}, domain.User{}, notFoundf("invite to project %s", projectID)
	}

	now := m.now()
	if p.AddMember(u.ID) {
		p.UpdatedAt = now
		if err := tx.Projects().UpdateMembers(ctx, p.ID, p.MemberIDs, now); err != nil {
			return domain.Project{}, domain.User{}, storeErr(err, "project")
		}
	}

	removed := u.RemoveInvite(p.ID)
	added := u.AddProject(p.ID)
	if removed || added {
		if err := m.saveUser(ctx, tx, &u, now); err != nil {
			return domain.Project{}, domain.User{}, err
		}
	}
	return p, u, nil
}

// IgnoreInvite discards the pending invite only.
func (m *MembershipService) IgnoreInvite(ctx context.Context, tx store.Tx, projectID, userID string) (domain.User, error) {
	u, err := tx.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, storeErr(err, "user")
	}
	if u.RemoveInvite(projectID) {
		if err := m.saveUser(ctx, tx, &u, m.now()); err != nil {
			return domain.User{}, err
		}
	}
	return u, nil
}

// Exile removes userID from the project and records the project title in
// the user's exclusions until acknowledged.
func (m *MembershipService) Exile(ctx context.Context, tx store.Tx, projectID, userID string) (domain.Project, *domain.User, error) {
	return m.removeMember(ctx, tx, projectID, userID, true)
}

// Leave removes userID from the project without an exclusion notice.
func (m *MembershipService) Leave(ctx context.Context, tx store.Tx, projectID, userID string) (domain.Project, *domain.User, error) {
	return m.removeMember(ctx, tx, projectID, userID, false)
}

// removeMember is idempotent: once the user is out, repeating it changes
// nothing. A member id whose user record is gone is dropped from the
// project silently and the returned user is nil.
func (m *MembershipService) removeMember(ctx context.Context, tx store.Tx, projectID, userID string, exile bool) (domain.Project, *domain.User, error) {
	p, err := getProject(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, nil, err
	}
	if p.IsAdmin(userID) {
		return domain.Project{}, nil, conflictf("the project admin cannot be removed from %s", p.Title)
	}

	now := m.now()
	wasMember := p.RemoveMember(userID)
	if wasMember {
		p.UpdatedAt = now
		if err := tx.Projects().UpdateMembers(ctx, p.ID, p.MemberIDs, now); err != nil {
			return domain.Project{}, nil, storeErr(err, "project")
		}
	}

	u, err := tx.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return p, nil, nil
	}
	if err != nil {
		return domain.Project{}, nil, err
	}

	changed := u.RemoveProject(p.ID)
	if exile && wasMember {
		changed = u.AddExclusion(p.Title) || changed
	}
	if changed {
		if err := m.saveUser(ctx, tx, &u, now); err != nil {
			return domain.Project{}, nil, err
		}
	}
	return p, &u, nil
}

// AcceptExclusion acknowledges an exclusion notice.
func (m *MembershipService) AcceptExclusion(ctx context.Context, tx store.Tx, title, userID string) (domain.User, error) {
	u, err := tx.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, storeErr(err, "user")
	}
	if u.RemoveExclusion(title) {
		if err := m.saveUser(ctx, tx, &u, m.now()); err != nil {
			return domain.User{}, err
		}
	}
	return u, nil
}

func (m *MembershipService) saveUser(ctx context.Context, tx store.Tx, u *domain.User, now time.Time) error {
	u.UpdatedAt = now
	u.Normalize()
	return storeErr(tx.Users().UpdateUser(ctx, *u), "user")
}

func getProject(ctx context.Context, tx store.Tx, id string) (domain.Project, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Project{}, invalidf("project id is required")
	}
	p, err := tx.Projects().GetProjectByID(ctx, id)
	if err != nil {
		return domain.Project{}, storeErr(err, "project")
	}
	p.Normalize()
	return p, nil
}
