package transport

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tessera-io/tessera/pkg/api"
	"github.com/tessera-io/tessera/pkg/auth"
	"github.com/tessera-io/tessera/pkg/gateway"
	"github.com/tessera-io/tessera/pkg/observability"
	"github.com/tessera-io/tessera/pkg/storage"
)

//go:embed static
var staticFiles embed.FS

// WidgetStore is the widget persistence surface the router needs.
type WidgetStore interface {
	InsertWidget(ctx context.Context, w *api.Widget) error
	WidgetByID(ctx context.Context, id string) (*api.Widget, error)
	ListWidgets(ctx context.Context) ([]*api.Widget, error)
	DeleteWidget(ctx context.Context, id string) error
}

// UserStore is the user persistence surface the router needs.
type UserStore interface {
	UserByID(ctx context.Context, id string) (*api.User, error)
	ListUsers(ctx context.Context) ([]*api.User, error)
}

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RouterConfig wires the router's dependencies.
type RouterConfig struct {
	Gateway  *gateway.Gateway
	Widgets  WidgetStore
	Users    UserStore
	Sessions *auth.SessionService
	Health   HealthChecker

	// MetricsPath exposes the Prometheus endpoint when non-empty.
	MetricsPath string
	Logger      *slog.Logger
}

// Router registers the resource handlers and composes the gateway
// middleware per route group.
type Router struct {
	cfg    RouterConfig
	logger *slog.Logger
}

// NewRouter creates a router over the given dependencies.
func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{cfg: cfg, logger: logger}
}

// Handler builds the full HTTP handler. Resource routes run behind the
// gateway pipeline; the login route binds a tenant scope without a
// credential; health, metrics, and static assets bypass the gateway.
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", rt.handleHealthz)
	mux.HandleFunc("GET /readyz", rt.handleHealthz)
	if rt.cfg.MetricsPath != "" {
		mux.Handle("GET "+rt.cfg.MetricsPath, promhttp.Handler())
	}

	if sub, err := fs.Sub(staticFiles, "static"); err == nil {
		mux.Handle("GET /{$}", http.FileServer(http.FS(sub)))
	}

	gw := rt.cfg.Gateway

	// Login has no credential yet; the tenant scope alone is bound so
	// password verification can reach the tenant's user records.
	mux.Handle("POST /v1/sessions", gw.ScopeOnly(rt.metered(rt.handleLogin)))

	protected := func(h http.HandlerFunc) http.Handler {
		return gw.Middleware(rt.metered(h))
	}
	mux.Handle("DELETE /v1/sessions", protected(rt.handleLogout))
	mux.Handle("GET /v1/me", protected(rt.handleMe))

	mux.Handle("GET /v1/widgets", protected(rt.handleListWidgets))
	mux.Handle("POST /v1/widgets", protected(rt.handleCreateWidget))
	mux.Handle("GET /v1/widgets/{id}", protected(rt.handleGetWidget))
	mux.Handle("DELETE /v1/widgets/{id}", protected(rt.handleDeleteWidget))

	// User listing is restricted to administrators.
	mux.Handle("GET /v1/users", gw.Middleware(
		gateway.RequireRoles("admin")(rt.metered(rt.handleListUsers))))
	mux.Handle("GET /v1/users/{id}", gw.Middleware(
		gateway.RequireRoles("admin")(rt.metered(rt.handleGetUser))))

	return ChainMiddleware(mux,
		RequestID(),
		Recovery(rt.logger),
		Logging(rt.logger),
	)
}

// metered wraps a handler with request metrics. It sits inside the
// gateway middleware so the bound tenant is visible as a label.
func (rt *Router) metered(h http.HandlerFunc) http.Handler {
	return observability.MetricsMiddleware(h)
}

func (rt *Router) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.Health != nil {
		if err := rt.cfg.Health.HealthCheck(r.Context()); err != nil {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, api.NewInvalidRequestError("body", "invalid JSON"))
		return
	}
	if req.Name == "" || req.Password == "" {
		WriteAPIError(w, api.NewInvalidRequestError("name", "name and password are required"))
		return
	}

	tok, err := rt.cfg.Sessions.Login(r.Context(), req.Name, req.Password)
	if errors.Is(err, auth.ErrBadLogin) {
		// Wrong password and unknown user produce the same answer.
		WriteAPIError(w, api.NewUnauthorizedError())
		return
	}
	if err != nil {
		rt.logger.Error("login failed", slog.String("error", err.Error()))
		WriteAPIError(w, api.NewServerError("internal error"))
		return
	}

	observability.TokensIssuedTotal.WithLabelValues(storage.BoundTenantID(r.Context())).Inc()
	WriteJSON(w, http.StatusCreated, loginResponse{
		Token:     tok.Value,
		IssuedAt:  tok.IssuedAt,
		ExpiresAt: tok.ExpiresAt,
	})
}

func (rt *Router) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := rt.cfg.Sessions.Logout(r.Context(), gateway.BearerToken(r)); err != nil {
		rt.logger.Error("logout failed", slog.String("error", err.Error()))
		WriteAPIError(w, api.NewServerError("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleMe(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	if p == nil {
		WriteAPIError(w, api.NewUnauthorizedError())
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

type createWidgetRequest struct {
	Name  string `json:"name"`
	Notes string `json:"notes"`
}

func (rt *Router) handleCreateWidget(w http.ResponseWriter, r *http.Request) {
	var req createWidgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, api.NewInvalidRequestError("body", "invalid JSON"))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		WriteAPIError(w, api.NewInvalidRequestError("name", "name is required"))
		return
	}

	widget := &api.Widget{
		ID:        api.NewWidgetID(),
		TenantID:  storage.BoundTenantID(r.Context()),
		Name:      req.Name,
		Notes:     req.Notes,
		CreatedAt: time.Now().UTC(),
	}
	if err := rt.cfg.Widgets.InsertWidget(r.Context(), widget); err != nil {
		rt.logger.Error("widget insert failed", slog.String("error", err.Error()))
		WriteAPIError(w, api.NewServerError("internal error"))
		return
	}
	WriteJSON(w, http.StatusCreated, widget)
}

func (rt *Router) handleGetWidget(w http.ResponseWriter, r *http.Request) {
	widget, err := rt.cfg.Widgets.WidgetByID(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		WriteAPIError(w, api.NewNotFoundError("widget not found"))
		return
	}
	if err != nil {
		rt.logger.Error("widget lookup failed", slog.String("error", err.Error()))
		WriteAPIError(w, api.NewServerError("internal error"))
		return
	}
	WriteJSON(w, http.StatusOK, widget)
}

type listResponse[T any] struct {
	Data []T `json:"data"`
}

func (rt *Router) handleListWidgets(w http.ResponseWriter, r *http.Request) {
	widgets, err := rt.cfg.Widgets.ListWidgets(r.Context())
	if err != nil {
		rt.logger.Error("widget list failed", slog.String("error", err.Error()))
		WriteAPIError(w, api.NewServerError("internal error"))
		return
	}
	if widgets == nil {
		widgets = []*api.Widget{}
	}
	WriteJSON(w, http.StatusOK, listResponse[*api.Widget]{Data: widgets})
}

func (rt *Router) handleDeleteWidget(w http.ResponseWriter, r *http.Request) {
	err := rt.cfg.Widgets.DeleteWidget(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		WriteAPIError(w, api.NewNotFoundError("widget not found"))
		return
	}
	if err != nil {
		rt.logger.Error("widget delete failed", slog.String("error", err.Error()))
		WriteAPIError(w, api.NewServerError("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := rt.cfg.Users.ListUsers(r.Context())
	if err != nil {
		rt.logger.Error("user list failed", slog.String("error", err.Error()))
		WriteAPIError(w, api.NewServerError("internal error"))
		return
	}
	if users == nil {
		users = []*api.User{}
	}
	WriteJSON(w, http.StatusOK, listResponse[*api.User]{Data: users})
}

func (rt *Router) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := rt.cfg.Users.UserByID(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		WriteAPIError(w, api.NewNotFoundError("user not found"))
		return
	}
	if err != nil {
		rt.logger.Error("user lookup failed", slog.String("error", err.Error()))
		WriteAPIError(w, api.NewServerError("internal error"))
		return
	}
	WriteJSON(w, http.StatusOK, user)
}
