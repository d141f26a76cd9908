package authz

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"
)

// ErrRoleNotFound indicates that a role name could not be resolved. Callers
// must treat it as no access, never as a wildcard.
var ErrRoleNotFound = errors.New("authz: role not found")

// roleAliases maps legacy flat role names to canonical names. Historical
// deployments used unqualified names; the catalog resolves them once here
// instead of at every call site.
var roleAliases = map[string]string{
	"admin":       "docuvault.admin",
	"doc_admin":   "docuvault.admin",
	"superadmin":  "docuvault.admin",
	"manager":     "docuvault.manager",
	"approver":    "docuvault.manager",
	"editor":      "docuvault.editor",
	"author":      "docuvault.contributor",
	"contributor": "docuvault.contributor",
	"viewer":      "docuvault.viewer",
	"reader":      "docuvault.viewer",
}

// Catalog resolves raw role identifiers to canonical roles. It is built from
// a role snapshot and performs no I/O; rebuild it when roles change.
type Catalog struct {
	byName map[string]Role
}

var foldCaser = cases.Fold()

func foldName(name string) string {
	return foldCaser.String(strings.TrimSpace(name))
}

// NewCatalog indexes the given roles by folded name. Inactive roles are kept
// out of the index so they resolve to ErrRoleNotFound.
func NewCatalog(roles []Role) *Catalog {
	byName := make(map[string]Role, len(roles))
	for _, role := range roles {
		if !role.IsActive {
			continue
		}
		byName[foldName(role.Name)] = role
	}
	return &Catalog{byName: byName}
}

// Normalize resolves a raw role name, case-insensitively and through the
// alias table, to its canonical role. Unknown names fail closed with
// ErrRoleNotFound.
func (c *Catalog) Normalize(raw string) (Role, error) {
	folded := foldName(raw)
	if folded == "" {
		return Role{}, ErrRoleNotFound
	}
	if canonical, ok := roleAliases[folded]; ok {
		folded = foldName(canonical)
	}
	role, ok := c.byName[folded]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return role, nil
}

// HasHierarchyAccess reports whether the user's role satisfies the required
// roles: true when the user's level is at least the minimum level among the
// required roles, or when the user's canonical name is itself one of them.
// Higher-level roles inherit access granted to named lower-level roles
// without explicit enumeration.
func (c *Catalog) HasHierarchyAccess(userRole Role, required []Role) bool {
	if len(required) == 0 {
		return false
	}
	minLevel := required[0].Level
	for _, role := range required {
		if role.Level < minLevel {
			minLevel = role.Level
		}
		if foldName(role.Name) == foldName(userRole.Name) {
			return true
		}
	}
	return userRole.Level >= minLevel
}

// Roles returns the indexed roles, mainly for diagnostics.
func (c *Catalog) Roles() []Role {
	roles := make([]Role, 0, len(c.byName))
	for _, role := range c.byName {
		roles = append(roles, role)
	}
	return roles
}
