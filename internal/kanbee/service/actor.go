package service

import (
	"slices"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"github.com/aussiebroadwan/kanbee/pkg/jwtx"
)

// Actor is the authenticated caller of an operation. ConnID names the
// realtime connection that issued it, if any, so broadcasts can skip it.
type Actor struct {
	UserID string
	Email  string
	Roles  []string
	ConnID string
}

// ActorFromClaims builds an Actor from verified access token claims.
func ActorFromClaims(c jwtx.Claims, connID string) Actor {
	return Actor{UserID: c.UserID(), Email: c.Email, Roles: slices.Clone(c.Roles), ConnID: connID}
}

func (a Actor) IsAdmin() bool { return slices.Contains(a.Roles, string(domain.RoleAdmin)) }

// IsSelfOrAdmin reports whether a may act on behalf of userID.
func (a Actor) IsSelfOrAdmin(userID string) bool { return a.UserID == userID || a.IsAdmin() }
