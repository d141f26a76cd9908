package authz

import (
	"context"
	"fmt"
)

// GrantStore provides the persisted grant rows the aggregator reads.
type GrantStore interface {
	ActiveRoleIDsForUser(ctx context.Context, userID int64) ([]int64, error)
	RolesByIDs(ctx context.Context, roleIDs []int64) ([]Role, error)
	RoleGrants(ctx context.Context, roleIDs []int64) ([]RoleGrant, error)
	CapabilityNames(ctx context.Context, roleIDs []int64) ([]string, error)
}

// Aggregator computes a user's effective permission and capability sets from
// their active role assignments.
type Aggregator struct {
	store GrantStore
}

// NewAggregator constructs an Aggregator.
func NewAggregator(store GrantStore) *Aggregator {
	return &Aggregator{store: store}
}

// EffectivePermissions returns the union of granted permissions across the
// given roles. A permission counts only when its grant row says is_granted;
// explicit denies and missing rows contribute nothing, and a deny on one role
// does not block a grant coming from another concurrently held role.
func (a *Aggregator) EffectivePermissions(ctx context.Context, roleIDs []int64) (PermissionSet, error) {
	perms := make(PermissionSet)
	if len(roleIDs) == 0 {
		return perms, nil
	}
	grants, err := a.store.RoleGrants(ctx, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("authz: load role grants: %w", err)
	}
	for _, grant := range grants {
		if grant.State == GrantAllowed {
			perms[grant.PermissionName] = struct{}{}
		}
	}
	return perms, nil
}

// EffectiveCapabilities returns the union of capability names across the
// given roles. Capabilities have no deny state.
func (a *Aggregator) EffectiveCapabilities(ctx context.Context, roleIDs []int64) (CapabilitySet, error) {
	caps := make(CapabilitySet)
	if len(roleIDs) == 0 {
		return caps, nil
	}
	names, err := a.store.CapabilityNames(ctx, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("authz: load capabilities: %w", err)
	}
	for _, name := range names {
		caps[name] = struct{}{}
	}
	return caps, nil
}

// HasFullModuleAccess reports whether the permission set holds every required
// action of a module as "module.action". This is the super-user-for-one-module
// bypass; compute it once per request and carry the result in the GrantSet.
func HasFullModuleAccess(perms PermissionSet, module string, actions []string) bool {
	if len(actions) == 0 {
		return false
	}
	for _, action := range actions {
		if !perms.Has(module + "." + action) {
			return false
		}
	}
	return true
}

// GrantsFor aggregates the complete authorization state for one user: active
// role ids, canonical role names, maximum level, permission and capability
// unions, and the documents full-module bypass.
func (a *Aggregator) GrantsFor(ctx context.Context, userID int64) (GrantSet, error) {
	roleIDs, err := a.store.ActiveRoleIDsForUser(ctx, userID)
	if err != nil {
		return GrantSet{}, fmt.Errorf("authz: load role assignments: %w", err)
	}
	grants := GrantSet{
		RoleIDs:      roleIDs,
		Permissions:  make(PermissionSet),
		Capabilities: make(CapabilitySet),
	}
	if len(roleIDs) == 0 {
		return grants, nil
	}
	roles, err := a.store.RolesByIDs(ctx, roleIDs)
	if err != nil {
		return GrantSet{}, fmt.Errorf("authz: load roles: %w", err)
	}
	for _, role := range roles {
		grants.RoleNames = append(grants.RoleNames, role.Name)
		if role.Level > grants.MaxLevel {
			grants.MaxLevel = role.Level
		}
	}
	if grants.Permissions, err = a.EffectivePermissions(ctx, roleIDs); err != nil {
		return GrantSet{}, err
	}
	if grants.Capabilities, err = a.EffectiveCapabilities(ctx, roleIDs); err != nil {
		return GrantSet{}, err
	}
	grants.FullDocumentAccess = HasFullModuleAccess(grants.Permissions, ModuleDocuments, DocumentCoreActions())
	return grants, nil
}

// PermissionExplanation records the per-role grant state for one permission,
// so a denial can be traced to an explicit deny versus a missing grant.
type PermissionExplanation struct {
	Permission string
	States     map[int64]GrantState
	Granted    bool
}

// ExplainPermission reports, per role, whether the permission was granted,
// explicitly denied, or absent, alongside the collapsed decision.
func (a *Aggregator) ExplainPermission(ctx context.Context, roleIDs []int64, permission string) (PermissionExplanation, error) {
	explanation := PermissionExplanation{
		Permission: permission,
		States:     make(map[int64]GrantState, len(roleIDs)),
	}
	for _, id := range roleIDs {
		explanation.States[id] = GrantAbsent
	}
	grants, err := a.store.RoleGrants(ctx, roleIDs)
	if err != nil {
		return PermissionExplanation{}, fmt.Errorf("authz: load role grants: %w", err)
	}
	for _, grant := range grants {
		if grant.PermissionName != permission {
			continue
		}
		explanation.States[grant.RoleID] = grant.State
		if grant.State == GrantAllowed {
			explanation.Granted = true
		}
	}
	return explanation, nil
}
