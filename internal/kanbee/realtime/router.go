package realtime

import (
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/metrics"
)

// Router fans events out to connections grouped by scope. Every client is
// in its own user scope from Register on; project scopes are joined
// explicitly. Emits encode the payload once and never block: a client whose
// queue is full is disconnected.
//
// Emits to one project made by a single goroutine reach each subscriber in
// call order. Callers that need commit order across goroutines must
// serialize their emits per project.
type Router struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	clients map[string]*Client
	scopes  map[Scope]map[string]*Client
	joined  map[string]map[Scope]struct{}
}

func NewRouter(log *slog.Logger, m *metrics.Metrics) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		log:     log,
		metrics: m,
		clients: make(map[string]*Client),
		scopes:  make(map[Scope]map[string]*Client),
		joined:  make(map[string]map[Scope]struct{}),
	}
}

// Register adds c and subscribes it to its user scope.
func (r *Router) Register(c *Client) {
	r.mu.Lock()
	r.clients[c.ID] = c
	r.joined[c.ID] = make(map[Scope]struct{})
	r.subscribeLocked(c, UserScope(c.UserID))
	r.mu.Unlock()

	r.metrics.ConnectionOpened()
	r.log.Debug("realtime client registered", "conn_id", c.ID, "user_id", c.UserID)
}

// Unregister removes c from every scope. It is safe to call twice.
func (r *Router) Unregister(c *Client) {
	r.mu.Lock()
	scopes, ok := r.joined[c.ID]
	if ok {
		for s := range scopes {
			r.removeLocked(c.ID, s)
		}
		delete(r.joined, c.ID)
		delete(r.clients, c.ID)
	}
	r.mu.Unlock()

	if ok {
		r.metrics.ConnectionClosed()
		r.log.Debug("realtime client unregistered", "conn_id", c.ID, "user_id", c.UserID)
	}
}

// Subscribe adds connection connID to scope. Unknown connections are ignored.
func (r *Router) Subscribe(connID string, scope Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[connID]; ok {
		r.subscribeLocked(c, scope)
	}
}

// Unsubscribe removes connection connID from scope.
func (r *Router) Unsubscribe(connID string, scope Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(connID, scope)
	if j, ok := r.joined[connID]; ok {
		delete(j, scope)
	}
}

// SubscribeUser adds every connection of userID to scope.
func (r *Router) SubscribeUser(userID string, scope Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.scopes[UserScope(userID)] {
		r.subscribeLocked(c, scope)
	}
}

// UnsubscribeUser removes every connection of userID from scope.
func (r *Router) UnsubscribeUser(userID string, scope Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.scopes[UserScope(userID)] {
		r.removeLocked(id, scope)
		if j, ok := r.joined[id]; ok {
			delete(j, scope)
		}
	}
}

// DropScope removes every subscription to scope, e.g. a deleted project.
func (r *Router) DropScope(scope Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.scopes[scope] {
		if j, ok := r.joined[id]; ok {
			delete(j, scope)
		}
	}
	delete(r.scopes, scope)
}

func (r *Router) subscribeLocked(c *Client, scope Scope) {
	members, ok := r.scopes[scope]
	if !ok {
		members = make(map[string]*Client)
		r.scopes[scope] = members
	}
	members[c.ID] = c
	if j, ok := r.joined[c.ID]; ok {
		j[scope] = struct{}{}
	}
}

func (r *Router) removeLocked(connID string, scope Scope) {
	members, ok := r.scopes[scope]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.scopes, scope)
	}
}

// EmitToProject delivers to every subscriber of the project except the
// connection named by exclude.
func (r *Router) EmitToProject(projectID, event string, payload any, exclude string) {
	r.emit(ProjectScope(projectID), event, payload, exclude)
}

// EmitToUser delivers to every connection authenticated as userID.
func (r *Router) EmitToUser(userID, event string, payload any) {
	r.emit(UserScope(userID), event, payload, "")
}

// EmitToAll delivers to every connection, the initiator included.
func (r *Router) EmitToAll(event string, payload any) {
	r.emit(Scope{Kind: ScopeAll}, event, payload, "")
}

func (r *Router) emit(scope Scope, event string, payload any, exclude string) {
	data, err := encodePush(scope, event, payload)
	if err != nil {
		r.log.Error("realtime encode failed", "event", event, "scope", scope.String(), "error", err)
		return
	}
	frame := Frame{Event: event, Data: data}

	r.mu.RLock()
	targets := r.scopes[scope]
	if scope.Kind == ScopeAll {
		targets = r.clients
	}
	for id, c := range targets {
		if id == exclude {
			continue
		}
		if c.Enqueue(frame) {
			r.metrics.EventDelivered(event)
		} else {
			r.metrics.EventDropped(event)
			r.log.Warn("realtime client dropped", "conn_id", id, "user_id", c.UserID, "event", event)
		}
	}
	r.mu.RUnlock()
}

// Subscribers counts the connections in scope.
func (r *Router) Subscribers(scope Scope) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if scope.Kind == ScopeAll {
		return len(r.clients)
	}
	return len(r.scopes[scope])
}

// IsSubscribed reports whether connID is in scope.
func (r *Router) IsSubscribed(connID string, scope Scope) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.scopes[scope][connID]
	return ok
}

// CloseAll disconnects every registered client with reason and returns how
// many there were. Used on shutdown.
func (r *Router) CloseAll(reason string) int {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	for _, c := range clients {
		c.CloseWithReason(reason)
	}
	return len(clients)
}
