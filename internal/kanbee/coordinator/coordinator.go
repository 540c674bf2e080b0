package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/cache"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/metrics"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/realtime"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/service"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store"
	"github.com/aussiebroadwan/kanbee/pkg/slogx"
)

// DefaultProjectTTL bounds how long a cached board may lag the store.
const DefaultProjectTTL = 60 * time.Second

// Broadcaster is the slice of the realtime router the coordinator drives.
type Broadcaster interface {
	EmitToProject(projectID, event string, payload any, exclude string)
	EmitToUser(userID, event string, payload any)
	EmitToAll(event string, payload any)

	Subscribe(connID string, scope realtime.Scope)
	SubscribeUser(userID string, scope realtime.Scope)
	UnsubscribeUser(userID string, scope realtime.Scope)
	DropScope(scope realtime.Scope)
}

// Coordinator sequences every project mutation as: authorize, run the
// membership state machine in one transaction, refresh the cache, then
// broadcast. Work on one project holds that project's lock from the
// transaction through the last emit, so subscribers see events in commit
// order. Nothing is emitted for a failed operation.
type Coordinator struct {
	Store      store.Store
	Cache      cache.Cache
	Users      *service.UserService
	Membership *service.MembershipService
	Bus        Broadcaster
	Metrics    *metrics.Metrics

	ProjectTTL time.Duration

	locks keyedMutex
}

func (c *Coordinator) projectTTL() time.Duration {
	if c.ProjectTTL > 0 {
		return c.ProjectTTL
	}
	return DefaultProjectTTL
}

// Payloads pushed to clients.
type (
	// ProjectRef identifies a deleted project.
	ProjectRef struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}

	// ExileNotice tells a user they are no longer a member.
	ExileNotice struct {
		ProjectID string `json:"projectId"`
		Title     string `json:"title"`
		Left      bool   `json:"left"`
	}

	// Member is the public view of a project member.
	Member struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Avatar   string `json:"avatar"`
	}
)

// commit runs fn as one unit of work for op. A *service.SyncFault is
// logged, counted and evicts the keys the operation may have touched so the
// next read goes to the store. touched, when set, names the other users fn
// writes; it is called after fn has run.
func (c *Coordinator) commit(ctx context.Context, op string, actor service.Actor, projectID string, fn func(tx store.Tx) error, touched func() []string) error {
	err := service.InTx(ctx, c.Store, op, fn, "project_id", projectID, "user_id", actor.UserID, "conn_id", actor.ConnID)

	var fault *service.SyncFault
	if errors.As(err, &fault) {
		slogx.FromContext(ctx).Error("synchronization fault", slog.Any("fault", fault))
		c.Metrics.SyncFault(op)

		keys := []string{cache.UserIDKey(actor.UserID)}
		if actor.Email != "" {
			keys = append(keys, cache.UserEmailKey(actor.Email))
		}
		if projectID != "" {
			keys = append(keys, cache.ProjectKey(projectID))
		}
		if touched != nil {
			for _, id := range touched() {
				if id != "" && id != actor.UserID {
					keys = append(keys, c.userKeys(ctx, id)...)
				}
			}
		}
		_ = c.Cache.Delete(ctx, keys...)
	}
	return err
}

// userKeys returns the id key of a user plus the email key when the cached
// entry names one.
func (c *Coordinator) userKeys(ctx context.Context, userID string) []string {
	keys := []string{cache.UserIDKey(userID)}
	if u, err := cache.GetJSON[domain.User](ctx, c.Cache, cache.UserIDKey(userID)); err == nil && u.Email != "" {
		keys = append(keys, cache.UserEmailKey(u.Email))
	}
	return keys
}

func touchedUsers(ids ...string) func() []string {
	return func() []string { return ids }
}

func (c *Coordinator) rememberProject(ctx context.Context, p domain.Project) {
	p.Normalize()
	if err := cache.SetJSON(ctx, c.Cache, cache.ProjectKey(p.ID), p, c.projectTTL()); err != nil {
		slogx.FromContext(ctx).Warn("cache project failed", slog.String("project_id", p.ID), slog.Any("error", err))
	}
}

func (c *Coordinator) forgetProject(ctx context.Context, projectID string) {
	_ = c.Cache.Delete(ctx, cache.ProjectKey(projectID))
}

// loadProject reads the project through the cache.
func (c *Coordinator) loadProject(ctx context.Context, projectID string) (domain.Project, error) {
	if projectID == "" {
		return domain.Project{}, fmt.Errorf("%w: project id is required", service.ErrInvalidInput)
	}
	if p, err := cache.GetJSON[domain.Project](ctx, c.Cache, cache.ProjectKey(projectID)); err == nil {
		return p, nil
	}

	p, err := c.Store.Projects().GetProjectByID(ctx, projectID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Project{}, fmt.Errorf("%w: project %s", service.ErrNotFound, projectID)
	}
	if err != nil {
		return domain.Project{}, err
	}
	c.rememberProject(ctx, p)
	return p, nil
}

// txProject reads the project inside tx for an authorization decision.
func txProject(ctx context.Context, tx store.Tx, projectID string) (domain.Project, error) {
	if projectID == "" {
		return domain.Project{}, fmt.Errorf("%w: project id is required", service.ErrInvalidInput)
	}
	p, err := tx.Projects().GetProjectByID(ctx, projectID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Project{}, fmt.Errorf("%w: project %s", service.ErrNotFound, projectID)
	}
	return p, err
}

func requireMember(actor service.Actor, p domain.Project) error {
	if p.IsMember(actor.UserID) {
		return nil
	}
	return fmt.Errorf("%w: not a member of %s", service.ErrForbidden, p.ID)
}

func requireMemberOrAdmin(actor service.Actor, p domain.Project) error {
	if actor.IsAdmin() {
		return nil
	}
	return requireMember(actor, p)
}

func requireProjectAdmin(actor service.Actor, p domain.Project) error {
	if p.IsAdmin(actor.UserID) || actor.IsAdmin() {
		return nil
	}
	return fmt.Errorf("%w: only the project admin may do this", service.ErrForbidden)
}

func requireSelf(actor service.Actor, userID string) error {
	if actor.IsSelfOrAdmin(userID) {
		return nil
	}
	return fmt.Errorf("%w: cannot act for another user", service.ErrForbidden)
}
