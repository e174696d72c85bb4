package shared

import (
	"context"
	"strconv"
)

// Role is the coarse access tier of an authenticated actor.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
	RoleClient   Role = "client"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleEmployee, RoleClient:
		return true
	}
	return false
}

// Principal is the caller identity resolved by the gateway. Client principals
// are scoped to a single client code.
type Principal struct {
	ActorID    int64
	Role       Role
	ClientCode string
}

// IsClient reports whether the principal is limited to its own client's data.
func (p Principal) IsClient() bool {
	return p.Role == RoleClient
}

// Actor renders the actor id for audit and log fields.
func (p Principal) Actor() string {
	return strconv.FormatInt(p.ActorID, 10)
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
