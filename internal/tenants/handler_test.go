package tenants_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-iam/internal/associations"
	"github.com/odyssey-erp/odyssey-iam/internal/catalog"
	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/roles"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
	"github.com/odyssey-erp/odyssey-iam/internal/tenants"
	"github.com/odyssey-erp/odyssey-iam/internal/testing/memstore"
)

func TestHandlerScopesWritesToTargetTenant(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := tenants.NewService(store.Tenants(), nil, nil)
	root := mustCreate(t, svc, tenants.Input{Name: "Root", TenantKey: "root", TenantType: "ROOT"})
	acme := mustCreate(t, svc, tenants.Input{Name: "Acme", TenantKey: "acme", TenantType: "CLIENT", ParentID: ptr(root.ID)})
	globex := mustCreate(t, svc, tenants.Input{Name: "Globex", TenantKey: "globex", TenantType: "CLIENT", ParentID: ptr(root.ID)})

	assoc := associations.NewService(store.Associations(), nil, nil)
	cat := catalog.NewService(store.Catalog(), nil, nil)
	_, err := cat.Seed(ctx)
	require.NoError(t, err)
	manager := roles.Role{Name: "Manager"}
	require.NoError(t, store.Roles().Create(ctx, &manager))
	_, err = assoc.CreateTenantRole(ctx, associations.TenantRoleInput{TenantID: acme.ID, RoleID: manager.ID})
	require.NoError(t, err)
	_, err = assoc.AssignUser(ctx, acme.ID, manager.ID, 7)
	require.NoError(t, err)
	for _, action := range []string{shared.ActionCreate, shared.ActionUpdate, shared.ActionDelete} {
		permID, found, err := cat.GetIDByResourceAndAction(ctx, shared.ResourceTenant, action)
		require.NoError(t, err)
		require.True(t, found)
		_, err = assoc.AssignPermission(ctx, acme.ID, manager.ID, permID)
		require.NoError(t, err)
	}

	r := chi.NewRouter()
	r.Route("/tenants", tenants.NewHandler(nil, svc, rbac.Middleware{Service: rbac.NewService(assoc, cat, nil, nil)}).MountRoutes)
	do := func(method, target, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: 7}))
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}
	id := func(v int64) string { return strconv.FormatInt(v, 10) }
	acmeQuery := "?tenantId=" + id(acme.ID)

	rr := do(http.MethodPut, "/tenants/"+id(globex.ID)+acmeQuery,
		`{"name":"Globex Corp","tenantKey":"globex","tenantType":"CLIENT","parentId":`+id(root.ID)+`}`)
	assert.Equal(t, http.StatusForbidden, rr.Code, rr.Body.String())
	assert.Equal(t, http.StatusForbidden, do(http.MethodDelete, "/tenants/"+id(globex.ID)+acmeQuery, "").Code)
	rr = do(http.MethodPost, "/tenants/"+acmeQuery,
		`{"name":"Globex Labs","tenantKey":"gl","tenantType":"SUB","parentId":`+id(globex.ID)+`,"clientId":`+id(globex.ID)+`}`)
	assert.Equal(t, http.StatusForbidden, rr.Code, rr.Body.String())

	got, err := svc.Get(ctx, globex.ID)
	require.NoError(t, err)
	assert.Equal(t, "Globex", got.Name)

	rr = do(http.MethodPut, "/tenants/"+id(acme.ID),
		`{"name":"Acme Corp","tenantKey":"acme","tenantType":"CLIENT","parentId":`+id(root.ID)+`}`)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = do(http.MethodPost, "/tenants/",
		`{"name":"Acme Labs","tenantKey":"al","tenantType":"SUB","parentId":`+id(acme.ID)+`,"clientId":`+id(acme.ID)+`}`)
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}
