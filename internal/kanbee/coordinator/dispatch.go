package coordinator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/realtime"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/service"
)

// Inbound realtime events.
const (
	EventCreateProject    = "createProject"
	EventFindProject      = "findProject"
	EventFindAllProjects  = "findAllProjects"
	EventGetMembers       = "getMembers"
	EventSubscribeProject = "subscribeProject"
	EventUpdateProject    = realtime.EventUpdateProject
	EventDeleteProject    = realtime.EventDeleteProject
	EventSendInvite       = "sendInvite"
	EventAccessInvite     = "accessInvite"
	EventIgnoreInvite     = "ignoreInvite"
	EventExileUser        = realtime.EventExileUser
	EventLeaveProject     = "leaveProject"
	EventAcceptExclusion  = "acceptExclusion"
)

// request is the union of every event's data. Each event reads the fields
// it needs; UserID defaults to the caller.
type request struct {
	ID     string          `json:"id"`
	IDs    []string        `json:"ids"`
	Title  string          `json:"title"`
	Email  string          `json:"email"`
	UserID string          `json:"userId"`
	Kanban []domain.Column `json:"kanban"`
}

func (r request) userOr(actor service.Actor) string {
	if r.UserID != "" {
		return r.UserID
	}
	return actor.UserID
}

// Dispatch serves one realtime request for client cl.
func (c *Coordinator) Dispatch(ctx context.Context, cl *realtime.Client, req realtime.Request) (any, error) {
	var in request
	if len(req.Data) > 0 && string(req.Data) != "null" {
		if err := json.Unmarshal(req.Data, &in); err != nil {
			return nil, fmt.Errorf("%w: %s: malformed data", service.ErrInvalidInput, req.Event)
		}
	}
	actor := service.Actor{UserID: cl.UserID, Email: cl.Email, Roles: cl.Roles, ConnID: cl.ID}

	switch req.Event {
	case EventCreateProject:
		return c.CreateProject(ctx, actor, in.Title)
	case EventFindProject:
		return c.FindProject(ctx, actor, in.ID)
	case EventFindAllProjects:
		return c.FindProjects(ctx, actor, in.IDs)
	case EventGetMembers:
		return c.GetMembers(ctx, actor, in.ID)
	case EventSubscribeProject:
		return c.SubscribeProject(ctx, actor, in.ID)
	case EventUpdateProject:
		if in.Kanban == nil {
			return nil, fmt.Errorf("%w: kanban is required", service.ErrInvalidInput)
		}
		return c.UpdateKanban(ctx, actor, in.ID, in.Kanban)
	case EventDeleteProject:
		return c.RemoveProject(ctx, actor, in.ID)
	case EventSendInvite:
		return c.SendInvite(ctx, actor, in.ID, in.Email)
	case EventAccessInvite:
		return c.AccessInvite(ctx, actor, in.ID, in.userOr(actor))
	case EventIgnoreInvite:
		return c.IgnoreInvite(ctx, actor, in.ID, in.userOr(actor))
	case EventExileUser:
		if in.UserID == "" {
			return nil, fmt.Errorf("%w: userId is required", service.ErrInvalidInput)
		}
		return c.ExileUser(ctx, actor, in.ID, in.UserID)
	case EventLeaveProject:
		return c.LeaveProject(ctx, actor, in.ID, in.userOr(actor))
	case EventAcceptExclusion:
		return c.AcceptExclusion(ctx, actor, in.Title, in.userOr(actor))
	default:
		return nil, fmt.Errorf("%w: unknown event %q", service.ErrInvalidInput, req.Event)
	}
}
