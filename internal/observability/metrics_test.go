package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/tenants/{id}")

	req := httptest.NewRequest(http.MethodGet, "/tenants/7", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `odyssey_iam_http_requests_total{code="418",route="/tenants/{id}"} 1`)
	require.Contains(t, body, `odyssey_iam_http_request_duration_seconds_bucket{route="/tenants/{id}"`)
}

func TestObserveGrantDecision(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveGrantDecision("authorize", "granted")
	metrics.ObserveGrantDecision("authorize", "granted")
	metrics.ObserveGrantDecision("has_grant", "denied")

	body := scrape(t, metrics)
	require.Contains(t, body, `odyssey_iam_grant_decisions_total{check="authorize",outcome="granted"} 2`)
	require.Contains(t, body, `odyssey_iam_grant_decisions_total{check="has_grant",outcome="denied"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveGrantDecision("authorize", "granted")

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
