package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/docuvault/docuvault/internal/shared"
)

// RepositoryPort defines data access methods for role administration.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, input RoleInput) (Role, error)
	UpdateRole(ctx context.Context, id int64, input RoleInput) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	ListCapabilities(ctx context.Context) ([]Capability, error)
	SetGrant(ctx context.Context, roleID int64, update GrantUpdate) error
	SetCapabilities(ctx context.Context, roleID int64, capabilityIDs []int64) error
	AssignRole(ctx context.Context, userID, roleID int64) error
	RevokeRole(ctx context.Context, userID, roleID int64) error
}

// Auditor records administrative mutations.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles role administration business rules.
type Service struct {
	repo   RepositoryPort
	audit  Auditor
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit Auditor, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role. Roles created through the API are never
// system roles.
func (s *Service) CreateRole(ctx context.Context, actorID int64, input RoleInput) (Role, error) {
	input.Name = strings.TrimSpace(strings.ToLower(input.Name))
	input.DisplayName = strings.TrimSpace(input.DisplayName)
	if input.Name == "" {
		return Role{}, fmt.Errorf("%w: role name required", shared.ErrInvalidInput)
	}
	role, err := s.repo.CreateRole(ctx, input)
	if err != nil {
		return Role{}, err
	}
	s.recordAudit(ctx, actorID, "role.create", role.ID)
	return role, nil
}

// UpdateRole updates a role. System roles cannot be renamed or deactivated.
func (s *Service) UpdateRole(ctx context.Context, actorID, id int64, input RoleInput) (Role, error) {
	existing, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	input.Name = strings.TrimSpace(strings.ToLower(input.Name))
	input.DisplayName = strings.TrimSpace(input.DisplayName)
	if existing.IsSystem && (input.Name != existing.Name || !input.IsActive) {
		return Role{}, shared.ErrSystemRole
	}
	role, err := s.repo.UpdateRole(ctx, id, input)
	if err != nil {
		return Role{}, err
	}
	s.recordAudit(ctx, actorID, "role.update", role.ID)
	return role, nil
}

// DeleteRole removes a role. System roles cannot be deleted.
func (s *Service) DeleteRole(ctx context.Context, actorID, id int64) error {
	existing, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if existing.IsSystem {
		return shared.ErrSystemRole
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "role.delete", id)
	return nil
}

// ListPermissions returns all permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// ListCapabilities returns all capabilities.
func (s *Service) ListCapabilities(ctx context.Context) ([]Capability, error) {
	return s.repo.ListCapabilities(ctx)
}

// SetGrants applies grant updates to a role. System role grants are frozen.
func (s *Service) SetGrants(ctx context.Context, actorID, roleID int64, updates []GrantUpdate) error {
	existing, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if existing.IsSystem {
		return shared.ErrSystemRole
	}
	for _, update := range updates {
		if update.PermissionID <= 0 {
			return fmt.Errorf("%w: permission id required", shared.ErrInvalidInput)
		}
		if err := s.repo.SetGrant(ctx, roleID, update); err != nil {
			return err
		}
	}
	s.recordAudit(ctx, actorID, "role.grants", roleID)
	return nil
}

// SetCapabilities replaces the capability assignments of a role. System role
// capabilities are frozen.
func (s *Service) SetCapabilities(ctx context.Context, actorID, roleID int64, capabilityIDs []int64) error {
	existing, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if existing.IsSystem {
		return shared.ErrSystemRole
	}
	if err := s.repo.SetCapabilities(ctx, roleID, capabilityIDs); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "role.capabilities", roleID)
	return nil
}

// AssignRole grants a role to a user.
func (s *Service) AssignRole(ctx context.Context, actorID, userID, roleID int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "role.assign", roleID)
	return nil
}

// RevokeRole deactivates a user's role assignment.
func (s *Service) RevokeRole(ctx context.Context, actorID, userID, roleID int64) error {
	if err := s.repo.RevokeRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "role.revoke", roleID)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, roleID int64) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(roleID, 10),
	}
	// Audit writes never fail the mutation.
	if err := s.audit.Record(ctx, log); err != nil && s.logger != nil {
		s.logger.Warn("record role audit", slog.Any("error", err))
	}
}
