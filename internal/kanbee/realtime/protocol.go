package realtime

import (
	"encoding/json"
	"fmt"
)

// Subprotocol is negotiated on every connection.
const Subprotocol = "kanbee.v1"

// Push event names.
const (
	EventUpdateProject = "updateProject"
	EventDeleteProject = "deleteProject"
	EventExileUser     = "exileUser"
	EventGetInvite     = "getInvite"
	EventError         = "error"
)

// Request is one inbound frame. ID is echoed on the reply.
type Request struct {
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Reply answers a Request with either Data or Error.
type Reply struct {
	ID    string      `json:"id,omitempty"`
	Event string      `json:"event"`
	Data  any         `json:"data,omitempty"`
	Error *ErrorReply `json:"error,omitempty"`
}

type ErrorReply struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Push is a server initiated event delivered to a scope.
type Push struct {
	Event string `json:"event"`
	Scope string `json:"scope"`
	Data  any    `json:"data"`
}

// ScopeKind separates the two scope namespaces.
type ScopeKind string

const (
	ScopeProject ScopeKind = "project"
	ScopeUser    ScopeKind = "user"
	ScopeAll     ScopeKind = "all"
)

// Scope is a broadcast audience.
type Scope struct {
	Kind ScopeKind
	ID   string
}

func ProjectScope(id string) Scope { return Scope{Kind: ScopeProject, ID: id} }

func UserScope(id string) Scope { return Scope{Kind: ScopeUser, ID: id} }

func (s Scope) String() string {
	if s.Kind == ScopeAll {
		return string(ScopeAll)
	}
	return fmt.Sprintf("%s:%s", s.Kind, s.ID)
}

func encodePush(scope Scope, event string, payload any) ([]byte, error) {
	return json.Marshal(Push{Event: event, Scope: scope.String(), Data: payload})
}
