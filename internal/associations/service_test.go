package associations_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-iam/internal/associations"
	"github.com/odyssey-erp/odyssey-iam/internal/catalog"
	"github.com/odyssey-erp/odyssey-iam/internal/roles"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
	"github.com/odyssey-erp/odyssey-iam/internal/tenants"
	"github.com/odyssey-erp/odyssey-iam/internal/testing/memstore"
)

type fixture struct {
	svc       *associations.Service
	store     *memstore.Store
	root      tenants.Tenant
	client    tenants.Tenant
	admin     roles.Role
	operator  roles.Role
	readPerm  catalog.Permission
	writePerm catalog.Permission
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	f := &fixture{svc: associations.NewService(store.Associations(), nil, nil), store: store}

	f.root = tenants.Tenant{Name: "Root", TenantKey: "root", TenantType: tenants.TypeRoot}
	require.NoError(t, store.Tenants().Create(ctx, &f.root))
	f.client = tenants.Tenant{Name: "Acme", TenantKey: "acme", TenantType: tenants.TypeClient, ParentID: &f.root.ID}
	require.NoError(t, store.Tenants().Create(ctx, &f.client))

	f.admin = roles.Role{Name: shared.SystemAdministratorRole}
	require.NoError(t, store.Roles().Create(ctx, &f.admin))
	f.operator = roles.Role{Name: "OPERATOR"}
	require.NoError(t, store.Roles().Create(ctx, &f.operator))

	f.readPerm = catalog.Permission{Name: "Tenant Management - Read"}
	require.NoError(t, store.Catalog().CreatePermission(ctx, &f.readPerm))
	f.writePerm = catalog.Permission{Name: "Tenant Management - Update"}
	require.NoError(t, store.Catalog().CreatePermission(ctx, &f.writePerm))
	return f
}

func (f *fixture) bind(t *testing.T, tenantID, roleID int64) associations.TenantRole {
	t.Helper()
	tr, err := f.svc.CreateTenantRole(context.Background(), associations.TenantRoleInput{TenantID: tenantID, RoleID: roleID})
	require.NoError(t, err)
	return tr
}

func TestCreateTenantRoleRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tr := f.bind(t, f.client.ID, f.operator.ID)
	assert.NotZero(t, tr.ID)

	cases := []struct {
		name string
		in   associations.TenantRoleInput
		code shared.ErrorCode
	}{
		{"missing tenant", associations.TenantRoleInput{RoleID: f.operator.ID}, shared.CodeTenantRoleFieldMandatory},
		{"missing role", associations.TenantRoleInput{TenantID: f.client.ID}, shared.CodeTenantRoleFieldMandatory},
		{"unknown tenant", associations.TenantRoleInput{TenantID: 404, RoleID: f.operator.ID}, shared.CodeTenantNotFound},
		{"unknown role", associations.TenantRoleInput{TenantID: f.client.ID, RoleID: 404}, shared.CodeRoleNotFound},
		{"duplicate", associations.TenantRoleInput{TenantID: f.client.ID, RoleID: f.operator.ID}, shared.CodeDuplicatedField},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateTenantRole(ctx, tc.in)
			assert.True(t, shared.HasCode(err, tc.code), "got %v", err)
		})
	}

	exists, err := f.svc.ExistsTenantRole(ctx, f.client.ID, f.operator.ID)
	require.NoError(t, err)
	assert.True(t, exists)
	n, err := f.svc.CountTenantRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.svc.GetTenantRole(ctx, 999)
	assert.True(t, shared.HasCode(err, shared.CodeTenantRoleNotFound))
}

func TestUpdateTenantRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tr := f.bind(t, f.client.ID, f.operator.ID)
	f.bind(t, f.root.ID, f.operator.ID)

	updated, err := f.svc.UpdateTenantRole(ctx, tr.ID, associations.TenantRoleInput{TenantID: f.client.ID, RoleID: f.admin.ID})
	require.NoError(t, err)
	assert.Equal(t, f.admin.ID, updated.RoleID)

	_, err = f.svc.UpdateTenantRole(ctx, tr.ID, associations.TenantRoleInput{TenantID: f.root.ID, RoleID: f.operator.ID})
	assert.True(t, shared.HasCode(err, shared.CodeDuplicatedField))

	_, err = f.svc.UpdateTenantRole(ctx, 999, associations.TenantRoleInput{TenantID: f.root.ID, RoleID: f.admin.ID})
	assert.True(t, shared.HasCode(err, shared.CodeTenantRoleNotFound))
}

func TestAssignAndUnassignPermission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.bind(t, f.client.ID, f.operator.ID)

	trp, err := f.svc.AssignPermission(ctx, f.client.ID, f.operator.ID, f.readPerm.ID)
	require.NoError(t, err)
	assert.Equal(t, f.readPerm.ID, trp.PermissionID)

	_, err = f.svc.AssignPermission(ctx, f.client.ID, f.operator.ID, f.readPerm.ID)
	assert.True(t, shared.HasCode(err, shared.CodeTenantRolePermissionExists))
	_, err = f.svc.AssignPermission(ctx, f.client.ID, f.operator.ID, 404)
	assert.True(t, shared.HasCode(err, shared.CodePermissionNotFound))
	_, err = f.svc.AssignPermission(ctx, f.root.ID, f.operator.ID, f.readPerm.ID)
	assert.True(t, shared.HasCode(err, shared.CodeTenantRoleAssociationNotFound))

	ids, err := f.svc.ListPermissionIDs(ctx, f.client.ID, f.operator.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{f.readPerm.ID}, ids)

	err = f.svc.UnassignPermission(ctx, f.client.ID, f.operator.ID, f.writePerm.ID)
	assert.True(t, shared.HasCode(err, shared.CodeTenantRolePermissionUnlinked))
	require.NoError(t, f.svc.UnassignPermission(ctx, f.client.ID, f.operator.ID, f.readPerm.ID))

	ids, err = f.svc.ListPermissionIDs(ctx, f.client.ID, f.operator.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NotNil(t, ids)
}

func TestCreateTenantRolePermissionByID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tr := f.bind(t, f.client.ID, f.operator.ID)

	trp, err := f.svc.CreateTenantRolePermission(ctx, associations.TenantRolePermissionInput{TenantRoleID: tr.ID, PermissionID: f.writePerm.ID})
	require.NoError(t, err)

	_, err = f.svc.CreateTenantRolePermission(ctx, associations.TenantRolePermissionInput{TenantRoleID: 999, PermissionID: f.writePerm.ID})
	assert.True(t, shared.HasCode(err, shared.CodeTenantRoleNotFound))
	_, err = f.svc.CreateTenantRolePermission(ctx, associations.TenantRolePermissionInput{PermissionID: f.writePerm.ID})
	assert.True(t, shared.HasCode(err, shared.CodeTenantRoleFieldMandatory))

	page, err := f.svc.ListTenantRolePermissions(ctx, associations.TenantRolePermissionFilter{TenantRoleID: &tr.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalResults)

	require.NoError(t, f.svc.DeleteTenantRolePermission(ctx, trp.ID))
	assert.True(t, shared.HasCode(f.svc.DeleteTenantRolePermission(ctx, trp.ID), shared.CodeTenantRolePermissionNotFound))
	_, err = f.svc.GetTenantRolePermission(ctx, trp.ID)
	assert.True(t, shared.HasCode(err, shared.CodeTenantRolePermissionNotFound))
}

func TestAssignUserCreatesInactiveMembership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.bind(t, f.client.ID, f.operator.ID)

	tru, err := f.svc.AssignUser(ctx, f.client.ID, f.operator.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), tru.UserID)

	_, err = f.svc.AssignUser(ctx, f.client.ID, f.operator.ID, 42)
	assert.True(t, shared.HasCode(err, shared.CodeTenantRoleUserExists))
	_, err = f.svc.AssignUser(ctx, f.client.ID, f.operator.ID, 0)
	assert.True(t, shared.HasCode(err, shared.CodeTenantRoleFieldMandatory))

	page, err := f.svc.ListActiveTenants(ctx, associations.ActiveTenantFilter{UserID: ptr(int64(42))})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.False(t, page.Results[0].IsTenantActive)
	assert.Equal(t, "Acme", page.Results[0].TenantName)

	member, err := f.svc.IsMember(ctx, f.client.ID, 42)
	require.NoError(t, err)
	assert.True(t, member)
	roleIDs, err := f.svc.GetRoleIDsForUserTenant(ctx, 42, f.client.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{f.operator.ID}, roleIDs)
}

func TestUnassignUserDropsLastMembership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.bind(t, f.client.ID, f.operator.ID)
	f.bind(t, f.client.ID, f.admin.ID)
	_, err := f.svc.AssignUser(ctx, f.client.ID, f.operator.ID, 42)
	require.NoError(t, err)
	_, err = f.svc.AssignUser(ctx, f.client.ID, f.admin.ID, 42)
	require.NoError(t, err)

	require.NoError(t, f.svc.UnassignUser(ctx, f.client.ID, []int64{f.operator.ID}, 42))
	exists, err := f.svc.ExistsActiveTenant(ctx, 42, f.client.ID)
	require.NoError(t, err)
	assert.True(t, exists, "admin membership keeps the row")

	require.NoError(t, f.svc.UnassignUser(ctx, f.client.ID, nil, 42))
	exists, err = f.svc.ExistsActiveTenant(ctx, 42, f.client.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	err = f.svc.UnassignUser(ctx, f.client.ID, nil, 42)
	assert.True(t, shared.HasCode(err, shared.CodeTenantRoleUserAssociationsEmpty))
}

func TestDeleteTenantRoleGuards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tr := f.bind(t, f.client.ID, f.operator.ID)
	tru, err := f.svc.CreateTenantRoleUser(ctx, associations.TenantRoleUserInput{TenantRoleID: tr.ID, UserID: 8})
	require.NoError(t, err)
	_, err = f.svc.AssignPermission(ctx, f.client.ID, f.operator.ID, f.readPerm.ID)
	require.NoError(t, err)

	assert.True(t, shared.HasCode(f.svc.DeleteTenantRole(ctx, tr.ID), shared.CodeTenantRoleHasUsers))
	require.NoError(t, f.svc.DeleteTenantRoleUser(ctx, tru.ID))
	assert.True(t, shared.HasCode(f.svc.DeleteTenantRoleUser(ctx, tru.ID), shared.CodeTenantRoleUserNotFound))

	assert.True(t, shared.HasCode(f.svc.DeleteTenantRole(ctx, tr.ID), shared.CodeTenantRoleHasPermissions))
	require.NoError(t, f.svc.UnassignPermission(ctx, f.client.ID, f.operator.ID, f.readPerm.ID))
	require.NoError(t, f.svc.DeleteTenantRole(ctx, tr.ID))
	assert.True(t, shared.HasCode(f.svc.DeleteTenantRole(ctx, tr.ID), shared.CodeTenantRoleNotFound))
}

func TestActivateKeepsSingleActiveTenant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.bind(t, f.client.ID, f.operator.ID)
	f.bind(t, f.root.ID, f.operator.ID)
	_, err := f.svc.AssignUser(ctx, f.client.ID, f.operator.ID, 42)
	require.NoError(t, err)
	_, err = f.svc.AssignUser(ctx, f.root.ID, f.operator.ID, 42)
	require.NoError(t, err)

	at, err := f.svc.Activate(ctx, 42, f.client.ID)
	require.NoError(t, err)
	assert.True(t, at.IsTenantActive)
	_, err = f.svc.Activate(ctx, 42, f.root.ID)
	require.NoError(t, err)

	current, ok, err := f.svc.CurrentActiveTenant(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, f.root.ID, current.TenantID)

	page, err := f.svc.ListActiveTenants(ctx, associations.ActiveTenantFilter{UserID: ptr(int64(42))})
	require.NoError(t, err)
	active := 0
	for _, row := range page.Results {
		if row.IsTenantActive {
			active++
		}
	}
	assert.Equal(t, 1, active)

	_, err = f.svc.Activate(ctx, 99, f.client.ID)
	assert.True(t, shared.HasCode(err, shared.CodeActiveTenantNotMember))
	_, err = f.svc.Activate(ctx, 0, f.client.ID)
	assert.True(t, shared.HasCode(err, shared.CodeActiveTenantParams))

	require.NoError(t, f.svc.Deactivate(ctx, 42))
	_, ok, err = f.svc.CurrentActiveTenant(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestActiveTenantCRUD(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.svc.CreateActiveTenant(ctx, associations.ActiveTenantInput{TenantID: f.client.ID, UserID: 5, IsTenantActive: true})
	require.NoError(t, err)
	second, err := f.svc.CreateActiveTenant(ctx, associations.ActiveTenantInput{TenantID: f.root.ID, UserID: 5, IsTenantActive: true})
	require.NoError(t, err)

	got, err := f.svc.GetActiveTenant(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, got.IsTenantActive, "creating an active row clears the others")

	_, err = f.svc.CreateActiveTenant(ctx, associations.ActiveTenantInput{TenantID: f.client.ID, UserID: 5})
	assert.True(t, shared.HasCode(err, shared.CodeDuplicatedField))
	_, err = f.svc.CreateActiveTenant(ctx, associations.ActiveTenantInput{TenantID: 404, UserID: 5})
	assert.True(t, shared.HasCode(err, shared.CodeTenantNotFound))
	_, err = f.svc.CreateActiveTenant(ctx, associations.ActiveTenantInput{UserID: 5})
	assert.True(t, shared.HasCode(err, shared.CodeActiveTenantParams))

	updated, err := f.svc.UpdateActiveTenant(ctx, first.ID, associations.ActiveTenantInput{TenantID: f.client.ID, UserID: 5, IsTenantActive: true})
	require.NoError(t, err)
	assert.True(t, updated.IsTenantActive)
	got, err = f.svc.GetActiveTenant(ctx, second.ID)
	require.NoError(t, err)
	assert.False(t, got.IsTenantActive)

	page, err := f.svc.ListActiveTenants(ctx, associations.ActiveTenantFilter{TenantName: "acm"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalResults)

	_, err = f.svc.DeleteActiveTenants(ctx, nil, nil)
	assert.True(t, shared.HasCode(err, shared.CodeActiveTenantDeleteParams))
	n, err := f.svc.DeleteActiveTenants(ctx, nil, ptr(int64(5)))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.True(t, shared.HasCode(f.svc.DeleteActiveTenant(ctx, first.ID), shared.CodeResourceNotFound))
}

func TestGrantQueries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.bind(t, f.client.ID, f.operator.ID)
	_, err := f.svc.AssignUser(ctx, f.client.ID, f.operator.ID, 42)
	require.NoError(t, err)
	_, err = f.svc.AssignPermission(ctx, f.client.ID, f.operator.ID, f.readPerm.ID)
	require.NoError(t, err)

	ok, err := f.svc.HasAnyPermission(ctx, 42, []int64{f.writePerm.ID, f.readPerm.ID}, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.svc.HasAnyPermission(ctx, 42, []int64{f.readPerm.ID}, &f.root.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = f.svc.HasAnyPermission(ctx, 42, nil, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.HasRole(ctx, 42, []string{"OPERATOR"}, &f.client.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.svc.HasRole(ctx, 42, []string{shared.SystemAdministratorRole}, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.HasRolePermission(ctx, 42, f.readPerm.ID, f.operator.ID, f.client.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.svc.HasRolePermission(ctx, 42, f.readPerm.ID, f.admin.ID, f.client.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func ptr[T any](v T) *T { return &v }
