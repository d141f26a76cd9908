package authz

import (
	"context"
	"fmt"
)

// Store combines the repository reads the service needs.
type Store interface {
	GrantStore
	ListRoles(ctx context.Context) ([]Role, error)
}

// Service is the application-facing surface of the decision engine: role
// normalization, grant aggregation, and the pure decision functions over them.
type Service struct {
	store      Store
	aggregator *Aggregator
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store, aggregator: NewAggregator(store)}
}

// Catalog builds a role catalog from the current role set.
func (s *Service) Catalog(ctx context.Context) (*Catalog, error) {
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("authz: list roles: %w", err)
	}
	return NewCatalog(roles), nil
}

// Normalize resolves a raw role name against the current catalog.
func (s *Service) Normalize(ctx context.Context, raw string) (Role, error) {
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return Role{}, err
	}
	return catalog.Normalize(raw)
}

// HasHierarchyAccess normalizes the user role and the required role names and
// applies the level hierarchy check. Unresolvable names fail closed.
func (s *Service) HasHierarchyAccess(ctx context.Context, userRole string, requiredRoles []string) (bool, error) {
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return false, err
	}
	role, err := catalog.Normalize(userRole)
	if err != nil {
		return false, nil
	}
	required := make([]Role, 0, len(requiredRoles))
	for _, name := range requiredRoles {
		resolved, err := catalog.Normalize(name)
		if err != nil {
			continue
		}
		required = append(required, resolved)
	}
	return catalog.HasHierarchyAccess(role, required), nil
}

// GrantsFor aggregates the user's effective authorization state.
func (s *Service) GrantsFor(ctx context.Context, userID int64) (GrantSet, error) {
	return s.aggregator.GrantsFor(ctx, userID)
}

// ExplainPermission traces the per-role grant state for one permission.
func (s *Service) ExplainPermission(ctx context.Context, userID int64, permission string) (PermissionExplanation, error) {
	roleIDs, err := s.store.ActiveRoleIDsForUser(ctx, userID)
	if err != nil {
		return PermissionExplanation{}, fmt.Errorf("authz: load role assignments: %w", err)
	}
	return s.aggregator.ExplainPermission(ctx, roleIDs, permission)
}

// SubjectFor builds the document access subject for a user from their grants
// and group membership.
func (s *Service) SubjectFor(userID int64, groupID, groupName string, grants GrantSet) Subject {
	return Subject{
		UserID:       userID,
		GroupID:      groupID,
		GroupName:    groupName,
		RoleNames:    grants.RoleNames,
		Capabilities: grants.Capabilities,
	}
}

// DecisionFor builds the workflow decision inputs from aggregated grants.
func DecisionFor(grants GrantSet) Decision {
	return Decision{
		RoleLevel:        grants.MaxLevel,
		Permissions:      grants.Permissions,
		FullModuleBypass: grants.FullDocumentAccess,
	}
}
