package domain

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Default board columns for a new project.
const (
	ColumnBacklog    = "Backlog"
	ColumnInProgress = "In progress"
	ColumnDone       = "Done"
)

// Column is one kanban lane. Tasks are opaque to the server and stored verbatim.
type Column struct {
	ID    string            `json:"id"`
	Title string            `json:"title"`
	Tasks []json.RawMessage `json:"tasks"`
}

func NewColumn(title string) Column {
	return Column{ID: uuid.NewString(), Title: title, Tasks: []json.RawMessage{}}
}

// DefaultKanban is the board every project starts with.
func DefaultKanban() []Column {
	return []Column{NewColumn(ColumnBacklog), NewColumn(ColumnInProgress), NewColumn(ColumnDone)}
}

// Project is a shared board. AdminID is always a member and MemberIDs is
// never empty while the project exists.
type Project struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	AdminID   string    `json:"adminId"`
	MemberIDs []string  `json:"membersId"`
	Kanban    []Column  `json:"kanban"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewProject builds a project owned by ownerID with the default board.
func NewProject(id, title, ownerID string, now time.Time) Project {
	return Project{
		ID:        id,
		Title:     title,
		AdminID:   ownerID,
		MemberIDs: []string{ownerID},
		Kanban:    DefaultKanban(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (p *Project) IsMember(userID string) bool { return slices.Contains(p.MemberIDs, userID) }

func (p *Project) IsAdmin(userID string) bool { return p.AdminID == userID }

func (p *Project) AddMember(userID string) bool {
	if p.IsMember(userID) {
		return false
	}
	p.MemberIDs = append(p.MemberIDs, userID)
	return true
}

func (p *Project) RemoveMember(userID string) bool {
	n := len(p.MemberIDs)
	p.MemberIDs = slices.DeleteFunc(p.MemberIDs, func(id string) bool { return id == userID })
	return len(p.MemberIDs) != n
}

func (p Project) Clone() Project {
	p.MemberIDs = slices.Clone(p.MemberIDs)
	if p.Kanban != nil {
		cols := make([]Column, len(p.Kanban))
		for i, c := range p.Kanban {
			c.Tasks = slices.Clone(c.Tasks)
			cols[i] = c
		}
		p.Kanban = cols
	}
	return p
}

// Normalize replaces nil slices with empty ones.
func (p *Project) Normalize() {
	if p.MemberIDs == nil {
		p.MemberIDs = []string{}
	}
	if p.Kanban == nil {
		p.Kanban = []Column{}
	}
	for i := range p.Kanban {
		if p.Kanban[i].Tasks == nil {
			p.Kanban[i].Tasks = []json.RawMessage{}
		}
	}
}
