package rbac

import "github.com/odyssey-erp/odyssey-wms/internal/shared"

// Permission represents an atomic capability.
type Permission struct {
	Name  string        `json:"name"`
	Roles []shared.Role `json:"roles"`
}

// Grants maps roles to their permission names.
type Grants map[shared.Role][]string
