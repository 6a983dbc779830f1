// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the tessera backend.
package observability

import "github.com/prometheus/client_golang/prometheus"

// APIBuckets defines histogram buckets suited for CRUD API latencies,
// ranging from 1ms to 10s.
var APIBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and tenant.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tessera_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "tenant"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tessera_request_duration_seconds",
			Help:    "Request duration",
			Buckets: APIBuckets,
		},
		[]string{"method"},
	)

	// BoundScopes tracks the number of currently bound tenant scopes.
	// It returns to zero when no requests are in flight; a persistent
	// nonzero value indicates a scope leak.
	BoundScopes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tessera_bound_scopes_active",
			Help: "Active tenant scope bindings",
		},
	)

	// AuthFailuresTotal counts rejected requests by failure reason
	// (tenant_not_found, bind_failure, missing_credential,
	// invalid_credential, expired_credential, forbidden).
	AuthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tessera_auth_failures_total",
			Help: "Authentication and authorization failures",
		},
		[]string{"reason"},
	)

	// TenantResolutionsTotal counts tenant directory resolutions by outcome.
	TenantResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tessera_tenant_resolutions_total",
			Help: "Tenant directory resolutions",
		},
		[]string{"outcome"},
	)

	// TokensIssuedTotal counts opaque tokens issued by tenant.
	TokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tessera_tokens_issued_total",
			Help: "Opaque tokens issued",
		},
		[]string{"tenant"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		BoundScopes,
		AuthFailuresTotal,
		TenantResolutionsTotal,
		TokensIssuedTotal,
	)
}
