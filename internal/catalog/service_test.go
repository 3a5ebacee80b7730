package catalog_test

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

func seeded(t *testing.T) (*catalog.Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	svc := catalog.NewService(store.Catalog(), nil, nil)
	_, err := svc.Seed(context.Background())
	require.NoError(t, err)
	return svc, store
}

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := catalog.NewService(store.Catalog(), nil, nil)

	report, err := svc.Seed(ctx)
	require.NoError(t, err)
	resources, actions := len(shared.CanonicalResources()), len(shared.CanonicalActions())
	assert.Equal(t, catalog.SeedReport{Actions: actions, Resources: resources, Permissions: resources * actions}, report)

	report, err = svc.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, catalog.SeedReport{}, report)

	p, ok, err := svc.GetPermissionByName(ctx, "Tenant Role Management - Create")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, p.ActionID)
	require.NotNil(t, p.ResourceID)
}

func TestGetIDByResourceAndAction(t *testing.T) {
	ctx := context.Background()
	svc, _ := seeded(t)

	id, ok, err := svc.GetIDByResourceAndAction(ctx, "tenant", "READ")
	require.NoError(t, err)
	require.True(t, ok)
	p, found, err := svc.GetPermissionByID(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Tenant Management - Read", p.Name)

	_, ok, err = svc.GetIDByResourceAndAction(ctx, "Tenant", "Approve")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = svc.GetIDByResourceAndAction(ctx, " ", "Read")
	assert.True(t, shared.HasCode(err, shared.CodeAmbiguousLookup))
	_, _, err = svc.GetIDByResourceAndAction(ctx, "Tenant", "")
	assert.True(t, shared.HasCode(err, shared.CodeAmbiguousLookup))
}

func TestGetIDByResourceAndActionAmbiguous(t *testing.T) {
	ctx := context.Background()
	svc, _ := seeded(t)
	existing, ok, err := svc.GetPermissionByName(ctx, "Tenant Management - Read")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.CreatePermission(ctx, catalog.PermissionInput{Name: "Tenant read (legacy)", ActionID: existing.ActionID, ResourceID: existing.ResourceID})
	require.NoError(t, err)

	_, _, err = svc.GetIDByResourceAndAction(ctx, "Tenant", "Read")
	assert.True(t, shared.HasCode(err, shared.CodePermissionAmbiguous), "got %v", err)
}

func TestPermissionCRUD(t *testing.T) {
	ctx := context.Background()
	svc, _ := seeded(t)
	action, err := svc.CreateNamed(ctx, catalog.KindAction, catalog.NamedInput{Name: "Approve"})
	require.NoError(t, err)
	resource, err := svc.CreateNamed(ctx, catalog.KindResource, catalog.NamedInput{Name: "Invoice"})
	require.NoError(t, err)

	p, err := svc.CreatePermission(ctx, catalog.PermissionInput{Name: "Invoice Management - Approve", ActionID: &action.ID, ResourceID: &resource.ID})
	require.NoError(t, err)
	assert.NotZero(t, p.ID)

	_, err = svc.CreatePermission(ctx, catalog.PermissionInput{Name: "Invoice Management - Approve"})
	assert.True(t, shared.HasCode(err, shared.CodeDuplicatedField))

	_, err = svc.CreatePermission(ctx, catalog.PermissionInput{Name: ""})
	assert.True(t, shared.HasCode(err, shared.CodeMandatoryParams))

	missing := int64(9999)
	_, err = svc.CreatePermission(ctx, catalog.PermissionInput{Name: "Ghost", ActionID: &missing})
	assert.True(t, shared.HasCode(err, shared.CodeResourceNotFound))

	updated, err := svc.UpdatePermission(ctx, p.ID, catalog.PermissionInput{Name: "Invoice approval", ActionID: &action.ID, ResourceID: &resource.ID})
	require.NoError(t, err)
	assert.Equal(t, "Invoice approval", updated.Name)

	_, err = svc.UpdatePermission(ctx, missing, catalog.PermissionInput{Name: "Nope"})
	assert.True(t, shared.HasCode(err, shared.CodeResourceNotFound))

	err = svc.DeleteNamed(ctx, catalog.KindAction, action.ID)
	assert.True(t, shared.HasCode(err, shared.CodeRecordReferenced), "got %v", err)

	require.NoError(t, svc.DeletePermission(ctx, p.ID))
	require.NoError(t, svc.DeleteNamed(ctx, catalog.KindAction, action.ID))
	assert.True(t, shared.HasCode(svc.DeletePermission(ctx, p.ID), shared.CodeResourceNotFound))
}

func TestDeletePermissionStillGranted(t *testing.T) {
	ctx := context.Background()
	svc, store := seeded(t)
	p, ok, err := svc.GetPermissionByName(ctx, "User Management - Read")
	require.NoError(t, err)
	require.True(t, ok)

	tenant := &tenants.Tenant{Name: "Root", TenantType: tenants.TypeRoot}
	require.NoError(t, store.Tenants().Create(ctx, tenant))
	role := &roles.Role{Name: "AUDITOR"}
	require.NoError(t, store.Roles().Create(ctx, role))
	tr := &associations.TenantRole{TenantID: tenant.ID, RoleID: role.ID}
	require.NoError(t, store.Associations().CreateTenantRole(ctx, tr))
	require.NoError(t, store.Associations().CreateTenantRolePermission(ctx, &associations.TenantRolePermission{TenantRoleID: tr.ID, PermissionID: p.ID}))

	err = svc.DeletePermission(ctx, p.ID)
	assert.True(t, shared.HasCode(err, shared.CodeRecordReferenced), "got %v", err)
}

func TestNamedListingAndRename(t *testing.T) {
	ctx := context.Background()
	svc, _ := seeded(t)

	page, err := svc.ListNamed(ctx, catalog.KindAction, catalog.ListFilters{PageRequest: shared.PageRequest{Ascending: true}})
	require.NoError(t, err)
	assert.Equal(t, len(shared.CanonicalActions()), page.TotalResults)
	assert.Equal(t, "All", page.Results[0].Name)

	page, err = svc.ListNamed(ctx, catalog.KindResource, catalog.ListFilters{Search: "tenant role"})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalResults)

	read, err := svc.ListNamed(ctx, catalog.KindAction, catalog.ListFilters{Search: "Read", Exact: true})
	require.NoError(t, err)
	require.Len(t, read.Results, 1)

	_, err = svc.UpdateNamed(ctx, catalog.KindAction, read.Results[0].ID, catalog.NamedInput{Name: "Create"})
	assert.True(t, shared.HasCode(err, shared.CodeDuplicatedField))

	_, err = svc.GetNamed(ctx, catalog.KindResource, 424242)
	assert.True(t, shared.HasCode(err, shared.CodeResourceNotFound))

	perms, err := svc.ListPermissions(ctx, catalog.ListFilters{Search: "Third Party", PageRequest: shared.PageRequest{PageSize: 4}})
	require.NoError(t, err)
	assert.Equal(t, 10, perms.TotalResults)
	assert.Equal(t, 3, perms.TotalPages)
	assert.Len(t, perms.Results, 4)
}
