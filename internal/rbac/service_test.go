package rbac_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-iam/internal/associations"
	"github.com/odyssey-erp/odyssey-iam/internal/catalog"
	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/roles"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
	"github.com/odyssey-erp/odyssey-iam/internal/tenants"
	"github.com/odyssey-erp/odyssey-iam/internal/testing/memstore"

	_ "github.com/odyssey-erp/odyssey-iam/testing"
)

type recorder struct {
	decisions map[string]int
}

func (r *recorder) ObserveGrantDecision(check, outcome string) {
	if r.decisions == nil {
		r.decisions = map[string]int{}
	}
	r.decisions[check+"/"+outcome]++
}

// world seeds a root tenant, a client tenant and the canonical catalog.
type world struct {
	engine   *rbac.Service
	assoc    *associations.Service
	catalog  *catalog.Service
	metrics  *recorder
	root     tenants.Tenant
	client   tenants.Tenant
	admin    roles.Role
	operator roles.Role
}

func newWorld(t *testing.T) *world {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	w := &world{
		assoc:   associations.NewService(store.Associations(), nil, nil),
		catalog: catalog.NewService(store.Catalog(), nil, nil),
		metrics: &recorder{},
	}
	w.engine = rbac.NewService(w.assoc, w.catalog, w.metrics, nil)
	_, err := w.catalog.Seed(ctx)
	require.NoError(t, err)

	w.root = tenants.Tenant{Name: "Root", TenantType: tenants.TypeRoot}
	require.NoError(t, store.Tenants().Create(ctx, &w.root))
	w.client = tenants.Tenant{Name: "Acme", TenantType: tenants.TypeClient, ParentID: &w.root.ID}
	require.NoError(t, store.Tenants().Create(ctx, &w.client))

	w.admin = roles.Role{Name: shared.SystemAdministratorRole}
	require.NoError(t, store.Roles().Create(ctx, &w.admin))
	w.operator = roles.Role{Name: "OPERATOR"}
	require.NoError(t, store.Roles().Create(ctx, &w.operator))
	return w
}

func (w *world) grant(t *testing.T, tenantID, roleID, userID int64, resource, action string) {
	t.Helper()
	ctx := context.Background()
	exists, err := w.assoc.ExistsTenantRole(ctx, tenantID, roleID)
	require.NoError(t, err)
	if !exists {
		_, err = w.assoc.CreateTenantRole(ctx, associations.TenantRoleInput{TenantID: tenantID, RoleID: roleID})
		require.NoError(t, err)
	}
	member, err := w.assoc.HasRole(ctx, userID, []string{w.roleName(roleID)}, &tenantID)
	require.NoError(t, err)
	if !member {
		_, err = w.assoc.AssignUser(ctx, tenantID, roleID, userID)
		require.NoError(t, err)
	}
	if resource != "" {
		id, found, err := w.catalog.GetIDByResourceAndAction(ctx, resource, action)
		require.NoError(t, err)
		require.True(t, found)
		_, err = w.assoc.AssignPermission(ctx, tenantID, roleID, id)
		require.NoError(t, err)
	}
}

func (w *world) roleName(id int64) string {
	if id == w.admin.ID {
		return w.admin.Name
	}
	return w.operator.Name
}

func user(id int64) shared.Principal { return shared.Principal{UserID: id} }

func TestHasPermissionDirectAndAllFallback(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.grant(t, w.client.ID, w.operator.ID, 7, shared.ResourceTenant, shared.ActionRead)
	w.grant(t, w.client.ID, w.operator.ID, 7, shared.ResourceRoles, shared.ActionAll)

	ok, err := w.engine.HasPermission(ctx, user(7), shared.ResourceTenant, shared.ActionRead, &w.client.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = w.engine.HasPermission(ctx, user(7), shared.ResourceTenant, shared.ActionDelete, &w.client.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = w.engine.HasPermission(ctx, user(7), "roles", "delete", &w.client.ID)
	require.NoError(t, err)
	assert.True(t, ok, "All on the resource satisfies any action")

	ok, err = w.engine.HasPermission(ctx, user(7), shared.ResourceTenant, shared.ActionRead, &w.root.ID)
	require.NoError(t, err)
	assert.False(t, ok, "grant is scoped to the client tenant")

	ok, err = w.engine.HasPermission(ctx, user(7), shared.ResourceTenant, shared.ActionRead, nil)
	require.NoError(t, err)
	assert.True(t, ok, "nil tenant matches a grant in any tenant")

	ok, err = w.engine.HasPermission(ctx, user(7), "Invoice", "Approve", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = w.engine.HasPermission(ctx, user(7), "", shared.ActionRead, nil)
	assert.True(t, shared.HasCode(err, shared.CodeMandatoryParams))
}

func TestAuthorizeLetsAdministratorsThrough(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.grant(t, w.root.ID, w.admin.ID, 1, "", "")

	ok, err := w.engine.IsAdministrator(ctx, user(1))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = w.engine.Authorize(ctx, user(1), shared.ResourceTenant, shared.ActionDelete, &w.client.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = w.engine.HasGrant(ctx, user(1), &w.client.ID, shared.SystemAdministratorRole)
	require.NoError(t, err)
	assert.True(t, ok, "administrator bound at the root holds the role in every tenant")
	ok, err = w.engine.HasAnyGrant(ctx, user(1), &w.client.ID, "OPERATOR", shared.SystemAdministratorRole)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = w.engine.HasGrant(ctx, user(1), &w.client.ID, "OPERATOR")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = w.engine.HasPermission(ctx, user(1), shared.ResourceTenant, shared.ActionDelete, &w.client.ID)
	require.NoError(t, err)
	assert.False(t, ok, "HasPermission itself has no administrator override")

	ok, err = w.engine.Authorize(ctx, user(2), shared.ResourceTenant, shared.ActionDelete, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, w.metrics.decisions["authorize/denied"])
	assert.Equal(t, 1, w.metrics.decisions["authorize/granted"])
}

func TestHasAnyGrantAndLinkedGrant(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.grant(t, w.client.ID, w.operator.ID, 7, shared.ResourceUser, shared.ActionCreate)

	ok, err := w.engine.HasAnyGrant(ctx, user(7), &w.client.ID, "AUDITOR", "OPERATOR")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = w.engine.HasGrant(ctx, user(7), &w.root.ID, "OPERATOR")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = w.engine.HasAnyGrant(ctx, user(7), &w.client.ID, shared.SystemAdministratorRole, "OPERATOR")
	require.NoError(t, err)
	assert.True(t, ok, "scoped names still match after the administrator check")
	ok, err = w.engine.HasGrant(ctx, user(7), &w.client.ID, shared.SystemAdministratorRole)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = w.engine.HasAnyGrant(ctx, user(7), nil, " ")
	require.NoError(t, err)
	assert.False(t, ok)

	permID, _, err := w.catalog.GetIDByResourceAndAction(ctx, shared.ResourceUser, shared.ActionCreate)
	require.NoError(t, err)
	ok, err = w.engine.HasLinkedGrant(ctx, user(7), permID, w.operator.ID, w.client.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = w.engine.HasLinkedGrant(ctx, user(7), permID, w.admin.ID, w.client.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ids, err := w.engine.RoleIDs(ctx, user(7), w.client.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{w.operator.ID}, ids)
}

func TestChecksRequirePrincipal(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	_, err := w.engine.HasGrant(ctx, shared.Principal{}, nil, "OPERATOR")
	assert.True(t, shared.HasCode(err, shared.CodeNoCurrentUser))
	_, err = w.engine.Authorize(ctx, shared.Principal{}, shared.ResourceTenant, shared.ActionRead, nil)
	assert.True(t, shared.HasCode(err, shared.CodeNoCurrentUser))
	_, err = w.engine.RoleIDs(ctx, shared.Principal{}, w.client.ID)
	assert.True(t, shared.HasCode(err, shared.CodeNoCurrentUser))
	assert.Equal(t, 1, w.metrics.decisions["has_grant/unauthenticated"])
}

type failingStore struct{}

var errStore = errors.New("connection reset")

func (failingStore) HasRole(context.Context, int64, []string, *int64) (bool, error) {
	return false, errStore
}

func (failingStore) HasAnyPermission(context.Context, int64, []int64, *int64) (bool, error) {
	return false, errStore
}

func (failingStore) HasRolePermission(context.Context, int64, int64, int64, int64) (bool, error) {
	return false, errStore
}

func (failingStore) GetRoleIDsForUserTenant(context.Context, int64, int64) ([]int64, error) {
	return nil, errStore
}

func TestStoreFailuresBecomeAuthorizationErrors(t *testing.T) {
	ctx := context.Background()
	metrics := &recorder{}
	engine := rbac.NewService(failingStore{}, catalog.NewService(memstore.New().Catalog(), nil, nil), metrics, nil)

	_, err := engine.IsAdministrator(ctx, user(3))
	assert.True(t, shared.HasCode(err, shared.CodeAuthorizationError))
	assert.ErrorIs(t, err, errStore)
	_, err = engine.HasLinkedGrant(ctx, user(3), 1, 1, 1)
	assert.True(t, shared.HasCode(err, shared.CodeAuthorizationError))
	assert.Equal(t, 1, metrics.decisions["is_administrator/error"])
}
