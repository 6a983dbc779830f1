// Package gateway implements the tenant-scoped authentication gateway:
// the interceptor every request passes through before any business
// handler runs.
//
// Per request the gateway resolves the tenant from request metadata,
// binds the storage layer to that tenant's partition, authenticates the
// presented bearer credential within that tenant, attaches the
// resulting principal to the request context, and dispatches the
// handler. The bound scope is released on every exit path, including
// handler panics and authentication rejections.
//
// Failure mapping at the HTTP boundary:
//   - unknown tenant          -> 404 (tenant identifiers are not secret)
//   - bind failure            -> 500 (internal fault, logged with context)
//   - any credential failure  -> opaque 401 (no enumeration hints)
//   - missing required role   -> 403
package gateway

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tessera-io/tessera/pkg/auth"
	"github.com/tessera-io/tessera/pkg/observability"
	"github.com/tessera-io/tessera/pkg/storage"
	"github.com/tessera-io/tessera/pkg/tenant"
)

// TenantHeader is the request header carrying an explicit tenant hint.
// When absent, the first label of the Host name is used instead.
const TenantHeader = "X-Tenant"

// Gateway intercepts requests and runs the authentication pipeline.
type Gateway struct {
	directory tenant.Directory
	authn     *auth.Chain
	bypass    map[string]bool
}

// New creates a gateway over the given directory and authenticator
// chain. Requests to bypass endpoints skip the pipeline entirely.
func New(directory tenant.Directory, authn *auth.Chain, bypassEndpoints []string) *Gateway {
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}
	return &Gateway{
		directory: directory,
		authn:     authn,
		bypass:    bypass,
	}
}

// DefaultBypassEndpoints lists endpoints that skip the gateway.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}

// Middleware returns the gateway as HTTP middleware wrapping next.
func (g *Gateway) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.bypass[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		// Resolve the tenant from request metadata. The hint is
		// independent of the credential: the token is validated within
		// the resolved tenant, never the other way around.
		hint := TenantHint(r)
		resolved, err := g.directory.Resolve(r.Context(), hint)
		if errors.Is(err, tenant.ErrNotFound) {
			observability.TenantResolutionsTotal.WithLabelValues("not_found").Inc()
			observability.AuthFailuresTotal.WithLabelValues("tenant_not_found").Inc()
			slog.Warn("unknown tenant", "hint", hint, "path", r.URL.Path)
			writeError(w, http.StatusNotFound, "not_found", "unknown tenant")
			return
		}
		if err != nil {
			observability.TenantResolutionsTotal.WithLabelValues("error").Inc()
			slog.Error("tenant resolution failed", "hint", hint, "error", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		observability.TenantResolutionsTotal.WithLabelValues("ok").Inc()

		// Bind the storage layer to the tenant's partition for the
		// rest of this request.
		ctx, scope, err := storage.Bind(r.Context(), resolved)
		if err != nil {
			observability.AuthFailuresTotal.WithLabelValues("bind_failure").Inc()
			slog.Error("scope bind failed",
				"tenant", resolved.ID,
				"partition", resolved.Partition,
				"path", r.URL.Path,
				"error", err,
			)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}

		// Release runs on every exit path from here on: normal return,
		// authentication rejection, or handler panic.
		observability.BoundScopes.Inc()
		defer func() {
			scope.Release()
			observability.BoundScopes.Dec()
		}()

		principal, err := g.authn.Authenticate(ctx, resolved, BearerToken(r))
		if err != nil {
			observability.AuthFailuresTotal.WithLabelValues(failureReason(err)).Inc()
			slog.Warn("authentication failed",
				"tenant", resolved.ID,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"reason", failureReason(err),
			)
			// All credential failures collapse to the same response so
			// callers cannot probe which tokens exist.
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}

		ctx = auth.SetPrincipal(ctx, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ScopeOnly returns middleware that resolves the tenant and binds the
// scope without requiring a credential. The login endpoint uses it:
// password verification needs the tenant's user store, but the caller
// has no token yet.
func (g *Gateway) ScopeOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hint := TenantHint(r)
		resolved, err := g.directory.Resolve(r.Context(), hint)
		if errors.Is(err, tenant.ErrNotFound) {
			observability.AuthFailuresTotal.WithLabelValues("tenant_not_found").Inc()
			writeError(w, http.StatusNotFound, "not_found", "unknown tenant")
			return
		}
		if err != nil {
			slog.Error("tenant resolution failed", "hint", hint, "error", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}

		ctx, scope, err := storage.Bind(r.Context(), resolved)
		if err != nil {
			observability.AuthFailuresTotal.WithLabelValues("bind_failure").Inc()
			slog.Error("scope bind failed", "tenant", resolved.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}

		observability.BoundScopes.Inc()
		defer func() {
			scope.Release()
			observability.BoundScopes.Dec()
		}()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRoles returns middleware that rejects with 403 unless the
// authenticated principal holds at least one of the required roles.
// It must run inside the gateway middleware.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.PrincipalFromContext(r.Context())
			if err := auth.Authorize(p, roles...); err != nil {
				observability.AuthFailuresTotal.WithLabelValues("forbidden").Inc()
				slog.Warn("authorization failed",
					"path", r.URL.Path,
					"required", strings.Join(roles, ","),
				)
				writeError(w, http.StatusForbidden, "forbidden", "access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TenantHint extracts the tenant hint from request metadata: the
// X-Tenant header when present, otherwise the first label of the Host
// name ("acme.api.example.com" -> "acme"). A bare host yields no hint.
func TenantHint(r *http.Request) string {
	if h := r.Header.Get(TenantHeader); h != "" {
		return h
	}

	host := r.Host
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	if i := strings.IndexByte(host, '.'); i > 0 {
		return host[:i]
	}
	return ""
}

// BearerToken extracts the bearer credential from the Authorization
// header. Returns an empty string when the header is absent or uses a
// different scheme.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// failureReason maps an authentication error to its metrics label.
func failureReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, auth.ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, auth.ErrExpiredCredential):
		return "expired_credential"
	case errors.Is(err, auth.ErrInvalidCredential):
		return "invalid_credential"
	default:
		return "error"
	}
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":{"type":"` + errType + `","message":"` + message + `"}}`))
}
