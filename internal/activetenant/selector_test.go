package activetenant_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-iam/internal/activetenant"
	"github.com/odyssey-erp/odyssey-iam/internal/associations"
	"github.com/odyssey-erp/odyssey-iam/internal/roles"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
	"github.com/odyssey-erp/odyssey-iam/internal/tenants"
	"github.com/odyssey-erp/odyssey-iam/internal/testing/memstore"
)

type fixture struct {
	selector *activetenant.Selector
	sessions *shared.SessionManager
	acme     tenants.Tenant
	globex   tenants.Tenant
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	assoc := associations.NewService(store.Associations(), nil, nil)

	root := tenants.Tenant{Name: "Root", TenantType: tenants.TypeRoot}
	require.NoError(t, store.Tenants().Create(ctx, &root))
	f := fixture{
		acme:   tenants.Tenant{Name: "Acme", TenantType: tenants.TypeClient, ParentID: &root.ID},
		globex: tenants.Tenant{Name: "Globex", TenantType: tenants.TypeClient, ParentID: &root.ID},
	}
	require.NoError(t, store.Tenants().Create(ctx, &f.acme))
	require.NoError(t, store.Tenants().Create(ctx, &f.globex))

	role := roles.Role{Name: "OPERATOR"}
	require.NoError(t, store.Roles().Create(ctx, &role))
	for _, tenantID := range []int64{f.acme.ID, f.globex.ID} {
		_, err := assoc.CreateTenantRole(ctx, associations.TenantRoleInput{TenantID: tenantID, RoleID: role.ID})
		require.NoError(t, err)
		_, err = assoc.AssignUser(ctx, tenantID, role.ID, 5)
		require.NoError(t, err)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f.sessions = shared.NewSessionManager(client, "iam_session", "secret", time.Hour, false)
	f.selector = activetenant.NewSelector(assoc, nil)
	return f
}

// reload commits sess and reads it back through its cookie.
func (f fixture) reload(t *testing.T, sess *shared.Session) *shared.Session {
	t.Helper()
	ctx := context.Background()
	rr := httptest.NewRecorder()
	require.NoError(t, f.sessions.Commit(ctx, rr, httptest.NewRequest(http.MethodGet, "/", nil), sess))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rr.Result().Cookies() {
		req.AddCookie(c)
	}
	loaded, err := f.sessions.Load(ctx, req)
	require.NoError(t, err)
	return loaded
}

func TestSetActiveMirrorsIntoSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess, err := f.sessions.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	at, err := f.selector.SetActive(ctx, sess, 5, f.acme.ID)
	require.NoError(t, err)
	assert.True(t, at.IsTenantActive)

	loaded := f.reload(t, sess)
	id, ok := loaded.ActiveTenant()
	require.True(t, ok)
	assert.Equal(t, f.acme.ID, id)

	_, err = f.selector.SetActive(ctx, loaded, 5, f.globex.ID)
	require.NoError(t, err)
	current, found, err := f.selector.Current(ctx, 5)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, f.globex.ID, current.TenantID)

	page, err := f.selector.List(ctx, associations.ActiveTenantFilter{UserID: ptr(int64(5))})
	require.NoError(t, err)
	active := 0
	for _, row := range page.Results {
		if row.IsTenantActive {
			active++
		}
	}
	assert.Equal(t, 1, active)

	require.NoError(t, f.selector.Clear(ctx, loaded, 5))
	_, ok = f.reload(t, loaded).ActiveTenant()
	assert.False(t, ok)
	_, found, err = f.selector.Current(ctx, 5)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSetActiveRequiresMembership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess, err := f.sessions.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	_, err = f.selector.SetActive(ctx, sess, 6, f.acme.ID)
	assert.True(t, shared.HasCode(err, shared.CodeActiveTenantNotMember), "got %v", err)
	_, ok := sess.ActiveTenant()
	assert.False(t, ok)

	_, _, err = f.selector.Current(ctx, 0)
	assert.True(t, shared.HasCode(err, shared.CodeActiveTenantParams))
}

func TestHandlerRoutes(t *testing.T) {
	f := newFixture(t)
	r := chi.NewRouter()
	r.Route("/me/active-tenant", activetenant.NewHandler(nil, f.selector).MountRoutes)

	do := func(method, target, body string, userID int64) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if userID > 0 {
			req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: userID}))
		}
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/me/active-tenant/", "", 0).Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/me/active-tenant/", "", 5).Code)
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPut, "/me/active-tenant/", `{}`, 5).Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodPut, "/me/active-tenant/", `{"tenantId": 1}`, 6).Code)

	rr := do(http.MethodPut, "/me/active-tenant/", `{"tenantId": `+jsonID(f.acme.ID)+`}`, 5)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(http.MethodGet, "/me/active-tenant/", "", 5)
	require.Equal(t, http.StatusOK, rr.Code)
	var at associations.ActiveTenant
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &at))
	assert.Equal(t, f.acme.ID, at.TenantID)
	assert.Equal(t, "Acme", at.TenantName)

	rr = do(http.MethodGet, "/me/active-tenant/all", "", 5)
	require.Equal(t, http.StatusOK, rr.Code)
	var page shared.Page[associations.ActiveTenant]
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Equal(t, 2, page.TotalResults)

	assert.Equal(t, http.StatusNoContent, do(http.MethodDelete, "/me/active-tenant/", "", 5).Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/me/active-tenant/", "", 5).Code)
}

func ptr[T any](v T) *T { return &v }

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
