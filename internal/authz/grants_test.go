package authz

import (
	"context"
	"testing"
)

type fakeGrantStore struct {
	assignments  map[int64][]int64
	roles        map[int64]Role
	grants       []RoleGrant
	capabilities map[int64][]string
}

func (f *fakeGrantStore) ActiveRoleIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	return f.assignments[userID], nil
}

func (f *fakeGrantStore) RolesByIDs(ctx context.Context, roleIDs []int64) ([]Role, error) {
	var roles []Role
	for _, id := range roleIDs {
		if role, ok := f.roles[id]; ok {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

func (f *fakeGrantStore) RoleGrants(ctx context.Context, roleIDs []int64) ([]RoleGrant, error) {
	wanted := make(map[int64]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		wanted[id] = struct{}{}
	}
	var grants []RoleGrant
	for _, grant := range f.grants {
		if _, ok := wanted[grant.RoleID]; ok {
			grants = append(grants, grant)
		}
	}
	return grants, nil
}

func (f *fakeGrantStore) CapabilityNames(ctx context.Context, roleIDs []int64) ([]string, error) {
	seen := make(map[string]struct{})
	var names []string
	for _, id := range roleIDs {
		for _, name := range f.capabilities[id] {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names, nil
}

func TestEffectivePermissionsUnionAcrossRoles(t *testing.T) {
	store := &fakeGrantStore{
		grants: []RoleGrant{
			{RoleID: 1, PermissionName: PermDocumentsRead, State: GrantAllowed},
			{RoleID: 1, PermissionName: PermDocumentsDelete, State: GrantDenied},
			{RoleID: 2, PermissionName: PermDocumentsUpdate, State: GrantAllowed},
			{RoleID: 2, PermissionName: PermDocumentsDelete, State: GrantAllowed},
		},
	}
	agg := NewAggregator(store)

	both, err := agg.EffectivePermissions(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatalf("EffectivePermissions error = %v", err)
	}
	// Union semantics: role 1's explicit deny does not block role 2's grant.
	for _, perm := range []string{PermDocumentsRead, PermDocumentsUpdate, PermDocumentsDelete} {
		if !both.Has(perm) {
			t.Fatalf("expected %s in union", perm)
		}
	}

	only1, err := agg.EffectivePermissions(context.Background(), []int64{1})
	if err != nil {
		t.Fatalf("EffectivePermissions error = %v", err)
	}
	only2, err := agg.EffectivePermissions(context.Background(), []int64{2})
	if err != nil {
		t.Fatalf("EffectivePermissions error = %v", err)
	}
	merged := make(PermissionSet)
	for p := range only1 {
		merged[p] = struct{}{}
	}
	for p := range only2 {
		merged[p] = struct{}{}
	}
	if len(merged) != len(both) {
		t.Fatalf("union property violated: |A∪B|=%d but combined=%d", len(merged), len(both))
	}
	for p := range merged {
		if !both.Has(p) {
			t.Fatalf("union property violated: %s missing from combined", p)
		}
	}
}

func TestEffectivePermissionsDenyAndAbsenceAreNotGranted(t *testing.T) {
	store := &fakeGrantStore{
		grants: []RoleGrant{
			{RoleID: 1, PermissionName: PermDocumentsDelete, State: GrantDenied},
		},
	}
	agg := NewAggregator(store)

	perms, err := agg.EffectivePermissions(context.Background(), []int64{1})
	if err != nil {
		t.Fatalf("EffectivePermissions error = %v", err)
	}
	if perms.Has(PermDocumentsDelete) {
		t.Fatal("explicit deny must not grant")
	}
	if perms.Has(PermDocumentsRead) {
		t.Fatal("absent permission must not grant")
	}
}

func TestEffectiveCapabilitiesUnion(t *testing.T) {
	store := &fakeGrantStore{
		capabilities: map[int64][]string{
			1: {CapabilityReportAccess},
			2: {CapabilityAdminAccess, CapabilityReportAccess},
		},
	}
	agg := NewAggregator(store)

	caps, err := agg.EffectiveCapabilities(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatalf("EffectiveCapabilities error = %v", err)
	}
	if !caps.Has(CapabilityAdminAccess) || !caps.Has(CapabilityReportAccess) {
		t.Fatalf("expected union of capabilities, got %v", caps)
	}
	if len(caps) != 2 {
		t.Fatalf("expected 2 capabilities, got %d", len(caps))
	}
}

func TestHasFullModuleAccess(t *testing.T) {
	perms := PermissionSet{}
	for _, action := range DocumentCoreActions() {
		perms[ModuleDocuments+"."+action] = struct{}{}
	}
	if !HasFullModuleAccess(perms, ModuleDocuments, DocumentCoreActions()) {
		t.Fatal("all core actions held, bypass expected")
	}
	delete(perms, PermDocumentsDelete)
	if HasFullModuleAccess(perms, ModuleDocuments, DocumentCoreActions()) {
		t.Fatal("missing action must disable bypass")
	}
	if HasFullModuleAccess(perms, ModuleDocuments, nil) {
		t.Fatal("empty action list must not grant bypass")
	}
}

func TestGrantsForAggregates(t *testing.T) {
	store := &fakeGrantStore{
		assignments: map[int64][]int64{7: {1, 2}},
		roles: map[int64]Role{
			1: {ID: 1, Name: "docuvault.editor", Level: 50, IsActive: true},
			2: {ID: 2, Name: "docuvault.viewer", Level: 10, IsActive: true},
		},
		grants: []RoleGrant{
			{RoleID: 1, PermissionName: PermDocumentsRead, State: GrantAllowed},
			{RoleID: 1, PermissionName: PermDocumentsCreate, State: GrantAllowed},
			{RoleID: 1, PermissionName: PermDocumentsUpdate, State: GrantAllowed},
			{RoleID: 1, PermissionName: PermDocumentsApprove, State: GrantAllowed},
			{RoleID: 2, PermissionName: PermDocumentsDelete, State: GrantAllowed},
		},
		capabilities: map[int64][]string{2: {CapabilityReportAccess}},
	}
	agg := NewAggregator(store)

	grants, err := agg.GrantsFor(context.Background(), 7)
	if err != nil {
		t.Fatalf("GrantsFor error = %v", err)
	}
	if grants.MaxLevel != 50 {
		t.Fatalf("expected max level 50, got %d", grants.MaxLevel)
	}
	if len(grants.RoleNames) != 2 {
		t.Fatalf("expected 2 role names, got %v", grants.RoleNames)
	}
	if !grants.FullDocumentAccess {
		t.Fatal("all five core document actions held across roles, bypass expected")
	}
	if !grants.Capabilities.Has(CapabilityReportAccess) {
		t.Fatal("expected capability from second role")
	}
}

func TestGrantsForNoAssignments(t *testing.T) {
	agg := NewAggregator(&fakeGrantStore{})

	grants, err := agg.GrantsFor(context.Background(), 42)
	if err != nil {
		t.Fatalf("GrantsFor error = %v", err)
	}
	if len(grants.Permissions) != 0 || len(grants.Capabilities) != 0 || grants.MaxLevel != 0 {
		t.Fatalf("expected empty grants, got %+v", grants)
	}
	if grants.FullDocumentAccess {
		t.Fatal("no assignments must not yield bypass")
	}
}

func TestExplainPermission(t *testing.T) {
	store := &fakeGrantStore{
		grants: []RoleGrant{
			{RoleID: 1, PermissionName: PermDocumentsDelete, State: GrantDenied},
			{RoleID: 2, PermissionName: PermDocumentsDelete, State: GrantAllowed},
		},
	}
	agg := NewAggregator(store)

	explanation, err := agg.ExplainPermission(context.Background(), []int64{1, 2, 3}, PermDocumentsDelete)
	if err != nil {
		t.Fatalf("ExplainPermission error = %v", err)
	}
	if !explanation.Granted {
		t.Fatal("one allow row should collapse to granted")
	}
	if explanation.States[1] != GrantDenied {
		t.Fatalf("role 1 state = %v, want denied", explanation.States[1])
	}
	if explanation.States[2] != GrantAllowed {
		t.Fatalf("role 2 state = %v, want granted", explanation.States[2])
	}
	if explanation.States[3] != GrantAbsent {
		t.Fatalf("role 3 state = %v, want absent", explanation.States[3])
	}
}
