package roles

import (
	"context"
	"errors"
	"testing"

	"github.com/docuvault/docuvault/internal/authz"
	"github.com/docuvault/docuvault/internal/shared"
)

type fakeRepo struct {
	roles        map[int64]Role
	grantCalls   []GrantUpdate
	capCalls     [][]int64
	deleted      []int64
	assignments  map[int64][]int64
	revokeErr    error
	lastRoleEdit RoleInput
}

func newFakeRepo(roles ...Role) *fakeRepo {
	repo := &fakeRepo{roles: make(map[int64]Role), assignments: make(map[int64][]int64)}
	for _, role := range roles {
		repo.roles[role.ID] = role
	}
	return repo
}

func (f *fakeRepo) ListRoles(ctx context.Context) ([]Role, error) {
	var out []Role
	for _, role := range f.roles {
		out = append(out, role)
	}
	return out, nil
}

func (f *fakeRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := f.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (f *fakeRepo) CreateRole(ctx context.Context, input RoleInput) (Role, error) {
	role := Role{ID: int64(len(f.roles) + 1), Name: input.Name, DisplayName: input.DisplayName, Level: input.Level, IsActive: input.IsActive}
	f.roles[role.ID] = role
	return role, nil
}

func (f *fakeRepo) UpdateRole(ctx context.Context, id int64, input RoleInput) (Role, error) {
	role, ok := f.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	f.lastRoleEdit = input
	role.Name = input.Name
	role.DisplayName = input.DisplayName
	role.Level = input.Level
	role.IsActive = input.IsActive
	f.roles[id] = role
	return role, nil
}

func (f *fakeRepo) DeleteRole(ctx context.Context, id int64) error {
	if _, ok := f.roles[id]; !ok {
		return shared.ErrNotFound
	}
	delete(f.roles, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeRepo) ListPermissions(ctx context.Context) ([]Permission, error) { return nil, nil }
func (f *fakeRepo) ListCapabilities(ctx context.Context) ([]Capability, error) {
	return nil, nil
}

func (f *fakeRepo) SetGrant(ctx context.Context, roleID int64, update GrantUpdate) error {
	f.grantCalls = append(f.grantCalls, update)
	return nil
}

func (f *fakeRepo) SetCapabilities(ctx context.Context, roleID int64, capabilityIDs []int64) error {
	f.capCalls = append(f.capCalls, capabilityIDs)
	return nil
}

func (f *fakeRepo) AssignRole(ctx context.Context, userID, roleID int64) error {
	f.assignments[userID] = append(f.assignments[userID], roleID)
	return nil
}

func (f *fakeRepo) RevokeRole(ctx context.Context, userID, roleID int64) error {
	return f.revokeErr
}

func TestDeleteSystemRoleRejected(t *testing.T) {
	repo := newFakeRepo(Role{ID: 1, Name: "docuvault.admin", IsSystem: true, IsActive: true})
	svc := NewService(repo, nil, nil)

	err := svc.DeleteRole(context.Background(), 9, 1)
	if !errors.Is(err, shared.ErrSystemRole) {
		t.Fatalf("DeleteRole error = %v, want ErrSystemRole", err)
	}
	if len(repo.deleted) != 0 {
		t.Fatal("system role must not be deleted")
	}
}

func TestUpdateSystemRoleRenameRejected(t *testing.T) {
	repo := newFakeRepo(Role{ID: 1, Name: "docuvault.admin", IsSystem: true, IsActive: true})
	svc := NewService(repo, nil, nil)

	_, err := svc.UpdateRole(context.Background(), 9, 1, RoleInput{Name: "renamed", DisplayName: "x", Level: 100, IsActive: true})
	if !errors.Is(err, shared.ErrSystemRole) {
		t.Fatalf("UpdateRole error = %v, want ErrSystemRole", err)
	}
}

func TestUpdateSystemRoleDisplayNameAllowed(t *testing.T) {
	repo := newFakeRepo(Role{ID: 1, Name: "docuvault.admin", DisplayName: "Admin", Level: 100, IsSystem: true, IsActive: true})
	svc := NewService(repo, nil, nil)

	role, err := svc.UpdateRole(context.Background(), 9, 1, RoleInput{Name: "docuvault.admin", DisplayName: "Administrator", Level: 100, IsActive: true})
	if err != nil {
		t.Fatalf("UpdateRole error = %v", err)
	}
	if role.DisplayName != "Administrator" {
		t.Fatalf("display name not updated: %+v", role)
	}
}

func TestSetGrantsSystemRoleRejected(t *testing.T) {
	repo := newFakeRepo(Role{ID: 1, Name: "docuvault.admin", IsSystem: true, IsActive: true})
	svc := NewService(repo, nil, nil)

	err := svc.SetGrants(context.Background(), 9, 1, []GrantUpdate{{PermissionID: 3, State: authz.GrantAllowed}})
	if !errors.Is(err, shared.ErrSystemRole) {
		t.Fatalf("SetGrants error = %v, want ErrSystemRole", err)
	}
	if len(repo.grantCalls) != 0 {
		t.Fatal("system role grants must stay frozen")
	}
}

func TestSetGrantsAppliesThreeValuedUpdates(t *testing.T) {
	repo := newFakeRepo(Role{ID: 2, Name: "docuvault.editor", IsActive: true})
	svc := NewService(repo, nil, nil)

	updates := []GrantUpdate{
		{PermissionID: 1, State: authz.GrantAllowed},
		{PermissionID: 2, State: authz.GrantDenied},
		{PermissionID: 3, State: authz.GrantAbsent},
	}
	if err := svc.SetGrants(context.Background(), 9, 2, updates); err != nil {
		t.Fatalf("SetGrants error = %v", err)
	}
	if len(repo.grantCalls) != 3 {
		t.Fatalf("expected 3 grant writes, got %d", len(repo.grantCalls))
	}
	if repo.grantCalls[1].State != authz.GrantDenied {
		t.Fatalf("explicit deny not preserved: %+v", repo.grantCalls[1])
	}
}

func TestSetGrantsRejectsInvalidPermissionID(t *testing.T) {
	repo := newFakeRepo(Role{ID: 2, Name: "docuvault.editor", IsActive: true})
	svc := NewService(repo, nil, nil)

	err := svc.SetGrants(context.Background(), 9, 2, []GrantUpdate{{PermissionID: 0, State: authz.GrantAllowed}})
	if !errors.Is(err, shared.ErrInvalidInput) {
		t.Fatalf("SetGrants error = %v, want ErrInvalidInput", err)
	}
}

func TestCreateRoleNormalizesName(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, nil)

	role, err := svc.CreateRole(context.Background(), 9, RoleInput{Name: "  Docuvault.Auditor ", DisplayName: " Auditor ", Level: 20, IsActive: true})
	if err != nil {
		t.Fatalf("CreateRole error = %v", err)
	}
	if role.Name != "docuvault.auditor" {
		t.Fatalf("name not normalized: %q", role.Name)
	}
	if role.DisplayName != "Auditor" {
		t.Fatalf("display name not trimmed: %q", role.DisplayName)
	}
}

func TestAssignRoleUnknownRole(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, nil)

	if err := svc.AssignRole(context.Background(), 9, 5, 404); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("AssignRole error = %v, want ErrNotFound", err)
	}
}
