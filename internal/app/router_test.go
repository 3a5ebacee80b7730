package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-iam/internal/associations"
	"github.com/odyssey-erp/odyssey-iam/internal/catalog"
	"github.com/odyssey-erp/odyssey-iam/internal/observability"
	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/roles"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
	"github.com/odyssey-erp/odyssey-iam/internal/tenants"
	"github.com/odyssey-erp/odyssey-iam/internal/testing/memstore"
)

// newTestRouter wires the real middleware stack with user 1 as an
// administrator of the root tenant.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	assoc := associations.NewService(store.Associations(), nil, nil)
	root := tenants.Tenant{Name: "Root", TenantType: tenants.TypeRoot}
	require.NoError(t, store.Tenants().Create(ctx, &root))
	roleService := roles.NewService(store.Roles(), nil)
	system, err := roleService.EnsureSystemRoles(ctx)
	require.NoError(t, err)
	admin := system[shared.SystemAdministratorRole]
	_, err = assoc.CreateTenantRole(ctx, associations.TenantRoleInput{TenantID: root.ID, RoleID: admin.ID})
	require.NoError(t, err)
	_, err = assoc.AssignUser(ctx, root.ID, admin.ID, 1)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	metrics := observability.NewMetrics()
	engine := rbac.NewService(assoc, catalog.NewService(store.Catalog(), nil, nil), metrics, nil)
	guard := rbac.Middleware{Service: engine}
	return NewRouter(RouterParams{
		Config:         &Config{AppEnv: "test", RateLimitPerMinute: 1000},
		SessionManager: shared.NewSessionManager(client, "iam_session", "secret", time.Hour, false),
		CSRFManager:    shared.NewCSRFManager("csrf"),
		PrincipalMiddleware: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := shared.ContextWithPrincipal(r.Context(), shared.Principal{UserID: 1})
				next.ServeHTTP(w, r.WithContext(ctx))
			})
		},
		RolesHandler: roles.NewHandler(nil, roleService, guard),
		AuthzHandler: rbac.NewHandler(nil, engine),
		Metrics:      metrics,
	})
}

func TestHealthzAndSecurityHeaders(t *testing.T) {
	router := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Result().Cookies(), "session cookie is issued")
}

func TestUnsafeRequestsNeedCSRFUnlessBearer(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/roles", strings.NewReader(`{"name":"Auditor"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "csrf")

	req = httptest.NewRequest(http.MethodPost, "/roles", strings.NewReader(`{"name":"Auditor"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer token")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func TestMetricsEndpointCountsGrantDecisions(t *testing.T) {
	router := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/authz/admin", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"granted":true}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `odyssey_iam_grant_decisions_total{check="is_administrator",outcome="granted"} 1`)
}
