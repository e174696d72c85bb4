package rbac

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// ErrUnknownRole indicates that the principal carries a role with no grants.
var ErrUnknownRole = errors.New("rbac: unknown role")

// Service resolves permissions from a static role grant table.
type Service struct {
	grants map[shared.Role]map[string]struct{}
}

// NewService constructs a Service. A nil table falls back to shared.RoleGrants.
func NewService(grants Grants) *Service {
	if grants == nil {
		grants = shared.RoleGrants()
	}
	index := make(map[shared.Role]map[string]struct{}, len(grants))
	for role, perms := range grants {
		set := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			set[strings.ToLower(strings.TrimSpace(p))] = struct{}{}
		}
		index[role] = set
	}
	return &Service{grants: index}
}

// ListPermissions returns every known permission with the roles holding it.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	byName := map[string][]shared.Role{}
	for role, perms := range s.grants {
		for p := range perms {
			byName[p] = append(byName[p], role)
		}
	}
	out := make([]Permission, 0, len(byName))
	for name, roles := range byName {
		sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
		out = append(out, Permission{Name: name, Roles: roles})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// EffectivePermissions returns the permissions granted to the principal's role.
func (s *Service) EffectivePermissions(ctx context.Context, principal shared.Principal) ([]string, error) {
	set, ok := s.grants[principal.Role]
	if !ok {
		return nil, ErrUnknownRole
	}
	perms := make([]string, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms, nil
}

// Allowed reports whether the principal holds perm.
func (s *Service) Allowed(principal shared.Principal, perm string) bool {
	_, ok := s.grants[principal.Role][strings.ToLower(perm)]
	return ok
}
