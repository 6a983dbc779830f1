package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/tessera-io/tessera/pkg/api"
	"github.com/tessera-io/tessera/pkg/storage"
)

// TestMetricsRegistered verifies that all metrics are registered in the
// default registry without panicking.
func TestMetricsRegistered(t *testing.T) {
	expected := map[string]bool{
		"tessera_requests_total":           false,
		"tessera_request_duration_seconds": false,
		"tessera_bound_scopes_active":      false,
		"tessera_auth_failures_total":      false,
		"tessera_tenant_resolutions_total": false,
		"tessera_tokens_issued_total":      false,
	}

	// Counters and histograms only appear after first observation, so
	// seed them all.
	RequestsTotal.WithLabelValues("GET", "2xx", "test").Inc()
	RequestDuration.WithLabelValues("GET").Observe(0.1)
	AuthFailuresTotal.WithLabelValues("invalid_credential").Inc()
	TenantResolutionsTotal.WithLabelValues("ok").Inc()
	TokensIssuedTotal.WithLabelValues("test").Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}
	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not found in default registry", name)
		}
	}
}

// TestMiddlewareRecordsRequestCount verifies that the middleware
// increments the request counter with the bound tenant as a label.
func TestMiddlewareRecordsRequestCount(t *testing.T) {
	before := counterValue(t, RequestsTotal, "GET", "2xx", "acme")

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	ctx, scope, err := storage.Bind(context.Background(), &api.Tenant{ID: "acme"})
	if err != nil {
		t.Fatalf("binding scope: %v", err)
	}
	defer scope.Release()

	req := httptest.NewRequest("GET", "/v1/widgets", nil).WithContext(ctx)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	after := counterValue(t, RequestsTotal, "GET", "2xx", "acme")
	if after-before != 1 {
		t.Errorf("expected request count to increase by 1, got delta=%f", after-before)
	}
}

// TestMiddlewareUnboundTenantLabel verifies that requests without a
// bound scope are counted under the "none" tenant.
func TestMiddlewareUnboundTenantLabel(t *testing.T) {
	before := counterValue(t, RequestsTotal, "GET", "2xx", "none")

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz", nil))

	after := counterValue(t, RequestsTotal, "GET", "2xx", "none")
	if after-before != 1 {
		t.Errorf("expected unbound count to increase by 1, got delta=%f", after-before)
	}
}

// TestMiddlewareRecordsStatusClass verifies that error statuses are
// bucketed into their class label.
func TestMiddlewareRecordsStatusClass(t *testing.T) {
	before := counterValue(t, RequestsTotal, "POST", "4xx", "none")

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/v1/widgets", nil))

	after := counterValue(t, RequestsTotal, "POST", "4xx", "none")
	if after-before != 1 {
		t.Errorf("expected 4xx count to increase by 1, got delta=%f", after-before)
	}
}

// TestMiddlewareRecordsDuration verifies that the middleware records a
// duration observation per request.
func TestMiddlewareRecordsDuration(t *testing.T) {
	before := histogramCount(t, RequestDuration, "PUT")

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("PUT", "/v1/widgets", nil))

	after := histogramCount(t, RequestDuration, "PUT")
	if after-before != 1 {
		t.Errorf("expected histogram sample count to increase by 1, got delta=%d", after-before)
	}
}

// TestBoundScopesGauge verifies the gauge moves with Inc/Dec pairs.
func TestBoundScopesGauge(t *testing.T) {
	baseline := gaugeValue(t, BoundScopes)

	BoundScopes.Inc()
	if v := gaugeValue(t, BoundScopes); v != baseline+1 {
		t.Errorf("gauge = %f, want %f", v, baseline+1)
	}
	BoundScopes.Dec()
	if v := gaugeValue(t, BoundScopes); v != baseline {
		t.Errorf("gauge = %f, want %f after release", v, baseline)
	}
}

// counterValue reads the current value of a CounterVec for the given labels.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting counter metric: %v", err)
	}
	if err := c.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing counter metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

// histogramCount reads the observation count from a HistogramVec.
func histogramCount(t *testing.T, hv *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	obs, err := hv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting histogram metric: %v", err)
	}
	if err := obs.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing histogram metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

// gaugeValue reads the current value of a Gauge.
func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("writing gauge metric: %v", err)
	}
	return m.GetGauge().GetValue()
}
