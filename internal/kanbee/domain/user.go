package domain

import (
	"slices"
	"time"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Provider records how an account authenticates.
type Provider string

const (
	ProviderLocal  Provider = "LOCAL"
	ProviderGoogle Provider = "GOOGLE"
	ProviderGitHub Provider = "GITHUB"
)

// Invite is a pending invitation held by the invited user, keyed by project.
type Invite struct {
	ProjectID string `json:"id"`
	Title     string `json:"title"`
}

// User is the account aggregate. ProjectIDs, Invites and Exclusions behave
// as sets: inserts dedupe and removing an absent entry is a no-op.
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Username        string    `json:"username"`
	PasswordHash    string    `json:"-"` // empty for federated accounts; never serialized
	Roles           []Role    `json:"roles"`
	Avatar          string    `json:"avatar"`
	Provider        Provider  `json:"provider"`
	ProjectIDs      []string  `json:"projectsId"`
	Invites         []Invite  `json:"invites"`
	Exclusions      []string  `json:"exclusions"`
	CreatedProjects int       `json:"createdProjects"`
	CycleTimer      int       `json:"cycleTimer"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (u *User) HasRole(r Role) bool { return slices.Contains(u.Roles, r) }

func (u *User) IsAdmin() bool { return u.HasRole(RoleAdmin) }

// RoleNames returns roles as plain strings for token claims.
func (u *User) RoleNames() []string {
	out := make([]string, len(u.Roles))
	for i, r := range u.Roles {
		out[i] = string(r)
	}
	return out
}

func (u *User) HasProject(projectID string) bool { return slices.Contains(u.ProjectIDs, projectID) }

// AddProject reports whether projectID was added.
func (u *User) AddProject(projectID string) bool {
	if u.HasProject(projectID) {
		return false
	}
	u.ProjectIDs = append(u.ProjectIDs, projectID)
	return true
}

// RemoveProject reports whether projectID was present.
func (u *User) RemoveProject(projectID string) bool {
	n := len(u.ProjectIDs)
	u.ProjectIDs = slices.DeleteFunc(u.ProjectIDs, func(id string) bool { return id == projectID })
	return len(u.ProjectIDs) != n
}

// PendingInvite returns the invite for projectID, if any.
func (u *User) PendingInvite(projectID string) (Invite, bool) {
	i := slices.IndexFunc(u.Invites, func(inv Invite) bool { return inv.ProjectID == projectID })
	if i < 0 {
		return Invite{}, false
	}
	return u.Invites[i], true
}

// AddInvite keeps at most one invite per project.
func (u *User) AddInvite(inv Invite) bool {
	if _, ok := u.PendingInvite(inv.ProjectID); ok {
		return false
	}
	u.Invites = append(u.Invites, inv)
	return true
}

func (u *User) RemoveInvite(projectID string) bool {
	n := len(u.Invites)
	u.Invites = slices.DeleteFunc(u.Invites, func(inv Invite) bool { return inv.ProjectID == projectID })
	return len(u.Invites) != n
}

func (u *User) AddExclusion(title string) bool {
	if slices.Contains(u.Exclusions, title) {
		return false
	}
	u.Exclusions = append(u.Exclusions, title)
	return true
}

func (u *User) RemoveExclusion(title string) bool {
	n := len(u.Exclusions)
	u.Exclusions = slices.DeleteFunc(u.Exclusions, func(t string) bool { return t == title })
	return len(u.Exclusions) != n
}

// Clone returns a deep copy. Stores and caches hand out clones so callers
// never share slices with durable state.
func (u User) Clone() User {
	u.Roles = slices.Clone(u.Roles)
	u.ProjectIDs = slices.Clone(u.ProjectIDs)
	u.Invites = slices.Clone(u.Invites)
	u.Exclusions = slices.Clone(u.Exclusions)
	return u
}

// Normalize replaces nil sets with empty ones so JSON encodes [] not null.
func (u *User) Normalize() {
	if u.Roles == nil {
		u.Roles = []Role{}
	}
	if u.ProjectIDs == nil {
		u.ProjectIDs = []string{}
	}
	if u.Invites == nil {
		u.Invites = []Invite{}
	}
	if u.Exclusions == nil {
		u.Exclusions = []string{}
	}
}
