package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, "docuvault_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, "docuvault_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestAuthzDecisionCounter(t *testing.T) {
	metrics := NewMetrics()

	metrics.AuthzDecision("allow")
	metrics.AuthzDecision("allow")
	metrics.AuthzDecision("deny")

	body := scrape(t, metrics)
	if !strings.Contains(body, "docuvault_authz_decisions_total{decision=\"allow\"} 2") {
		t.Fatalf("expected allow counter, got: %s", body)
	}
	if !strings.Contains(body, "docuvault_authz_decisions_total{decision=\"deny\"} 1") {
		t.Fatalf("expected deny counter, got: %s", body)
	}
}

func TestRuleCacheEventCounter(t *testing.T) {
	metrics := NewMetrics()

	metrics.RuleCacheEvent("hit")
	metrics.RuleCacheEvent("default_fallback")

	body := scrape(t, metrics)
	if !strings.Contains(body, "docuvault_rule_cache_events_total{event=\"hit\"} 1") {
		t.Fatalf("expected hit counter, got: %s", body)
	}
	if !strings.Contains(body, "docuvault_rule_cache_events_total{event=\"default_fallback\"} 1") {
		t.Fatalf("expected fallback counter, got: %s", body)
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var metrics *Metrics
	metrics.AuthzDecision("allow")
	metrics.RuleCacheEvent("hit")
	if metrics.Middleware(nil) != nil {
		t.Fatal("nil metrics middleware should pass handler through")
	}
}
