package perf

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/odyssey-erp/odyssey-iam/internal/associations"
	"github.com/odyssey-erp/odyssey-iam/internal/catalog"
	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/roles"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
	"github.com/odyssey-erp/odyssey-iam/internal/tenants"
	"github.com/odyssey-erp/odyssey-iam/internal/testing/memstore"
)

// grantFixture binds users 1..users to one role per client tenant, each
// holding Read on every canonical resource.
func grantFixture(tb testing.TB, clients, users int) (*rbac.Service, []int64) {
	tb.Helper()
	ctx := context.Background()
	store := memstore.New()
	cat := catalog.NewService(store.Catalog(), nil, nil)
	if _, err := cat.Seed(ctx); err != nil {
		tb.Fatal(err)
	}
	assoc := associations.NewService(store.Associations(), nil, nil)
	root := tenants.Tenant{Name: "Root", TenantType: tenants.TypeRoot}
	if err := store.Tenants().Create(ctx, &root); err != nil {
		tb.Fatal(err)
	}
	role := roles.Role{Name: "READER"}
	if err := store.Roles().Create(ctx, &role); err != nil {
		tb.Fatal(err)
	}

	var readIDs []int64
	for _, resource := range shared.CanonicalResources() {
		id, ok, err := cat.GetIDByResourceAndAction(ctx, resource, shared.ActionRead)
		if err != nil || !ok {
			tb.Fatalf("resolve %s: %v", resource, err)
		}
		readIDs = append(readIDs, id)
	}

	tenantIDs := make([]int64, 0, clients)
	for i := range clients {
		client := tenants.Tenant{Name: fmt.Sprintf("Client %03d", i), TenantType: tenants.TypeClient, ParentID: &root.ID}
		if err := store.Tenants().Create(ctx, &client); err != nil {
			tb.Fatal(err)
		}
		tenantIDs = append(tenantIDs, client.ID)
		if _, err := assoc.CreateTenantRole(ctx, associations.TenantRoleInput{TenantID: client.ID, RoleID: role.ID}); err != nil {
			tb.Fatal(err)
		}
		for _, permID := range readIDs {
			if _, err := assoc.AssignPermission(ctx, client.ID, role.ID, permID); err != nil {
				tb.Fatal(err)
			}
		}
		for u := 1; u <= users; u++ {
			if _, err := assoc.AssignUser(ctx, client.ID, role.ID, int64(u)); err != nil {
				tb.Fatal(err)
			}
		}
	}
	return rbac.NewService(assoc, cat, nil, nil), tenantIDs
}

func BenchmarkAuthorize(b *testing.B) {
	engine, tenantIDs := grantFixture(b, 20, 10)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tenantID := tenantIDs[i%len(tenantIDs)]
		p := shared.Principal{UserID: int64(i%10) + 1}
		if _, err := engine.Authorize(ctx, p, shared.ResourceTenant, shared.ActionRead, &tenantID); err != nil {
			b.Fatal(err)
		}
	}
}

func TestAuthorizeLatencyTarget(t *testing.T) {
	if testing.Short() {
		t.Skip("latency sampling skipped in short mode")
	}
	engine, tenantIDs := grantFixture(t, 20, 10)
	ctx := context.Background()

	samples := make([]time.Duration, 0, 200)
	for i := range 200 {
		tenantID := tenantIDs[i%len(tenantIDs)]
		start := time.Now()
		ok, err := engine.Authorize(ctx, shared.Principal{UserID: int64(i%10) + 1}, shared.ResourceRoles, shared.ActionRead, &tenantID)
		samples = append(samples, time.Since(start))
		if err != nil || !ok {
			t.Fatalf("authorize #%d: ok=%v err=%v", i, ok, err)
		}
	}
	if p95 := percentile95(samples); p95 > 50*time.Millisecond {
		t.Fatalf("grant check latency regression: p95=%s", p95)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[int(float64(len(sorted)-1)*0.95)]
}
