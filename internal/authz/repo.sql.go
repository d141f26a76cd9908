package authz

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed access to the authorization
// configuration. It implements GrantStore and RuleFetcher.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns all active roles for catalog construction.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, display_name, level, is_system, is_active FROM roles WHERE is_active ORDER BY level DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Level, &role.IsSystem, &role.IsActive); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// RolesByIDs returns the roles with the given ids.
func (r *Repository) RolesByIDs(ctx context.Context, roleIDs []int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, display_name, level, is_system, is_active FROM roles WHERE id = ANY($1)`, roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Level, &role.IsSystem, &role.IsActive); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// ActiveRoleIDsForUser returns the role ids of a user's active assignments.
func (r *Repository) ActiveRoleIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT role_id FROM user_role_assignments WHERE user_id = $1 AND is_active ORDER BY role_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// RoleGrants returns the grant rows for the given roles with their
// three-valued state. Missing rows are simply not returned; the aggregator
// treats them as absent.
func (r *Repository) RoleGrants(ctx context.Context, roleIDs []int64) ([]RoleGrant, error) {
	rows, err := r.pool.Query(ctx, `SELECT rg.role_id, p.name, rg.is_granted
FROM role_grants rg
JOIN permissions p ON p.id = rg.permission_id
WHERE rg.role_id = ANY($1)`, roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []RoleGrant
	for rows.Next() {
		var grant RoleGrant
		var isGranted bool
		if err := rows.Scan(&grant.RoleID, &grant.PermissionName, &isGranted); err != nil {
			return nil, err
		}
		if isGranted {
			grant.State = GrantAllowed
		} else {
			grant.State = GrantDenied
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

// CapabilityNames returns the capability names assigned to the given roles.
func (r *Repository) CapabilityNames(ctx context.Context, roleIDs []int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT c.name
FROM capability_assignments ca
JOIN capabilities c ON c.id = ca.capability_id
WHERE ca.role_id = ANY($1)`, roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

// ActiveTransitionRules returns the active rule set ordered by sort order.
func (r *Repository) ActiveTransitionRules(ctx context.Context) ([]TransitionRule, error) {
	rows, err := r.pool.Query(ctx, `SELECT from_status, to_status, min_level, COALESCE(required_permission, ''), is_active, sort_order
FROM transition_rules WHERE is_active ORDER BY sort_order`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rules []TransitionRule
	for rows.Next() {
		var rule TransitionRule
		if err := rows.Scan(&rule.FromStatus, &rule.ToStatus, &rule.MinLevel, &rule.RequiredPermission, &rule.IsActive, &rule.SortOrder); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

var (
	_ GrantStore  = (*Repository)(nil)
	_ RuleFetcher = (*Repository)(nil)
)
