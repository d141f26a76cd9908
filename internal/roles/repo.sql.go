package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docuvault/docuvault/internal/authz"
	"github.com/docuvault/docuvault/internal/platform/db"
	"github.com/docuvault/docuvault/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, name, display_name, level, is_system, is_active, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Level, &role.IsSystem, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

// ListRoles returns all roles ordered by level then name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY level DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, input RoleInput) (Role, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO roles (name, display_name, level, is_system, is_active, created_at, updated_at)
VALUES ($1, $2, $3, false, $4, NOW(), NOW())
RETURNING `+roleColumns, input.Name, input.DisplayName, input.Level, input.IsActive)
	return scanRole(row)
}

// UpdateRole updates an existing role.
func (r *Repository) UpdateRole(ctx context.Context, id int64, input RoleInput) (Role, error) {
	row := r.pool.QueryRow(ctx, `UPDATE roles
SET name = $2, display_name = $3, level = $4, is_active = $5, updated_at = NOW()
WHERE id = $1
RETURNING `+roleColumns, id, input.Name, input.DisplayName, input.Level, input.IsActive)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role by ID.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListPermissions returns all permissions ordered by name.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, module, action FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.ID, &perm.Name, &perm.Module, &perm.Action); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// ListCapabilities returns all capabilities ordered by category then name.
func (r *Repository) ListCapabilities(ctx context.Context) ([]Capability, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, category FROM capabilities ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var caps []Capability
	for rows.Next() {
		var capability Capability
		if err := rows.Scan(&capability.ID, &capability.Name, &capability.Description, &capability.Category); err != nil {
			return nil, err
		}
		caps = append(caps, capability)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return caps, nil
}

// SetGrant writes or clears the grant row for (role, permission). At most one
// row exists per pair, so there is never an allow/deny conflict.
func (r *Repository) SetGrant(ctx context.Context, roleID int64, update GrantUpdate) error {
	if update.State == authz.GrantAbsent {
		_, err := r.pool.Exec(ctx, `DELETE FROM role_grants WHERE role_id = $1 AND permission_id = $2`, roleID, update.PermissionID)
		return err
	}
	granted := update.State == authz.GrantAllowed
	_, err := r.pool.Exec(ctx, `INSERT INTO role_grants (role_id, permission_id, is_granted)
VALUES ($1, $2, $3)
ON CONFLICT (role_id, permission_id) DO UPDATE SET is_granted = EXCLUDED.is_granted`, roleID, update.PermissionID, granted)
	return err
}

// SetCapabilities replaces the capability assignments of a role.
func (r *Repository) SetCapabilities(ctx context.Context, roleID int64, capabilityIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM capability_assignments WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, id := range capabilityIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO capability_assignments (role_id, capability_id) VALUES ($1, $2)`, roleID, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// AssignRole creates or reactivates a user role assignment.
func (r *Repository) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO user_role_assignments (user_id, role_id, is_active, assigned_at)
VALUES ($1, $2, true, NOW())
ON CONFLICT (user_id, role_id) DO UPDATE SET is_active = true, assigned_at = NOW()`, userID, roleID)
	return err
}

// RevokeRole deactivates a user role assignment.
func (r *Repository) RevokeRole(ctx context.Context, userID, roleID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE user_role_assignments SET is_active = false WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
