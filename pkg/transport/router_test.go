package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tessera-io/tessera/pkg/api"
	"github.com/tessera-io/tessera/pkg/auth"
	"github.com/tessera-io/tessera/pkg/gateway"
	"github.com/tessera-io/tessera/pkg/storage"
	"github.com/tessera-io/tessera/pkg/storage/memory"
	"github.com/tessera-io/tessera/pkg/tenant"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedUser inserts a user under the given tenant with a bcrypt-hashed
// password.
func seedUser(t *testing.T, store *memory.Store, tn *api.Tenant, id, name, password string, roles ...string) {
	t.Helper()

	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	ctx, scope, err := storage.Bind(context.Background(), tn)
	if err != nil {
		t.Fatalf("binding scope: %v", err)
	}
	defer scope.Release()

	err = store.InsertUser(ctx, &api.User{
		ID:           id,
		TenantID:     tn.ID,
		Name:         name,
		PasswordHash: hash,
		Roles:        roles,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("inserting user %s: %v", name, err)
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store := memory.NewStore()

	acme := &api.Tenant{ID: "acme", Name: "Acme Inc", Partition: "shard-1"}
	if err := store.InsertTenant(context.Background(), acme); err != nil {
		t.Fatalf("inserting tenant: %v", err)
	}
	seedUser(t, store, acme, "usr_alice", "alice", "s3cret", "admin")
	seedUser(t, store, acme, "usr_bob", "bob", "hunter2", "billing")

	dir := tenant.NewDirectory(store)
	chain := &auth.Chain{Authenticators: []auth.Authenticator{
		auth.NewTokenAuthenticator(store, time.Hour),
	}}
	gw := gateway.New(dir, chain, gateway.DefaultBypassEndpoints)

	rt := NewRouter(RouterConfig{
		Gateway:     gw,
		Widgets:     store,
		Users:       store,
		Sessions:    auth.NewSessionService(store, store),
		Health:      store,
		MetricsPath: "/metrics",
		Logger:      discardLogger(),
	})

	srv := httptest.NewServer(rt.Handler())
	t.Cleanup(srv.Close)
	return srv
}

// doJSON issues a request with the tenant header and optional bearer
// token, returning the response.
func doJSON(t *testing.T, srv *httptest.Server, method, path, tenantID, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if tenantID != "" {
		req.Header.Set(gateway.TenantHeader, tenantID)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func login(t *testing.T, srv *httptest.Server, tenantID, name, password string) string {
	t.Helper()

	resp := doJSON(t, srv, http.MethodPost, "/v1/sessions", tenantID, "",
		loginRequest{Name: name, Password: password})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("login status = %d, want 201", resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}
	if len(lr.Token) < 64 {
		t.Fatalf("token %q too short", lr.Token)
	}
	return lr.Token
}

func TestRouter_SessionAndWidgetFlow(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv, "acme", "alice", "s3cret")

	// The authenticated principal is visible.
	resp := doJSON(t, srv, http.MethodGet, "/v1/me", "acme", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /v1/me status = %d, want 200", resp.StatusCode)
	}
	var p api.Principal
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		t.Fatalf("decoding principal: %v", err)
	}
	if p.UserID != "usr_alice" || p.TenantID != "acme" {
		t.Errorf("principal = %+v, want usr_alice under acme", p)
	}

	// Create a widget.
	resp = doJSON(t, srv, http.MethodPost, "/v1/widgets", "acme", token,
		createWidgetRequest{Name: "frobnicator", Notes: "mk II"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /v1/widgets status = %d, want 201", resp.StatusCode)
	}
	var created api.Widget
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decoding widget: %v", err)
	}
	if !strings.HasPrefix(created.ID, "wid_") || created.TenantID != "acme" {
		t.Errorf("widget = %+v, want wid_ prefix under acme", created)
	}

	// It shows up in the list.
	resp = doJSON(t, srv, http.MethodGet, "/v1/widgets", "acme", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /v1/widgets status = %d, want 200", resp.StatusCode)
	}
	var list listResponse[*api.Widget]
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].Name != "frobnicator" {
		t.Errorf("list = %+v, want one frobnicator", list.Data)
	}

	// Fetch and delete by ID.
	resp = doJSON(t, srv, http.MethodGet, "/v1/widgets/"+created.ID, "acme", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET widget status = %d, want 200", resp.StatusCode)
	}
	resp = doJSON(t, srv, http.MethodDelete, "/v1/widgets/"+created.ID, "acme", token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE widget status = %d, want 204", resp.StatusCode)
	}
	resp = doJSON(t, srv, http.MethodGet, "/v1/widgets/"+created.ID, "acme", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET deleted widget status = %d, want 404", resp.StatusCode)
	}

	// Logout revokes the token; the next call is rejected.
	resp = doJSON(t, srv, http.MethodDelete, "/v1/sessions", "acme", token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE /v1/sessions status = %d, want 204", resp.StatusCode)
	}
	resp = doJSON(t, srv, http.MethodGet, "/v1/me", "acme", token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("GET /v1/me after logout status = %d, want 401", resp.StatusCode)
	}
}

func TestRouter_LoginFailures(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name       string
		tenantID   string
		body       any
		wantStatus int
	}{
		{"wrong password", "acme", loginRequest{Name: "alice", Password: "nope"}, http.StatusUnauthorized},
		{"unknown user", "acme", loginRequest{Name: "mallory", Password: "nope"}, http.StatusUnauthorized},
		{"unknown tenant", "ghost", loginRequest{Name: "alice", Password: "s3cret"}, http.StatusNotFound},
		{"missing fields", "acme", loginRequest{Name: "alice"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, srv, http.MethodPost, "/v1/sessions", tt.tenantID, "", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestRouter_InvalidJSONBody(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv, "acme", "alice", "s3cret")

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/widgets", strings.NewReader("{not json"))
	req.Header.Set(gateway.TenantHeader, "acme")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	var er api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if er.Error == nil || er.Error.Type != api.ErrorTypeInvalidRequest {
		t.Errorf("error = %+v, want invalid_request", er.Error)
	}
}

func TestRouter_UserListingRequiresAdmin(t *testing.T) {
	srv := newTestServer(t)

	adminToken := login(t, srv, "acme", "alice", "s3cret")
	resp := doJSON(t, srv, http.MethodGet, "/v1/users", "acme", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin GET /v1/users status = %d, want 200", resp.StatusCode)
	}
	var list listResponse[*api.User]
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decoding users: %v", err)
	}
	if len(list.Data) != 2 {
		t.Errorf("len(users) = %d, want 2", len(list.Data))
	}
	// Password hashes never leave the server.
	for _, u := range list.Data {
		if u.PasswordHash != "" {
			t.Errorf("user %s carries a password hash in the response", u.Name)
		}
	}

	billingToken := login(t, srv, "acme", "bob", "hunter2")
	resp = doJSON(t, srv, http.MethodGet, "/v1/users", "acme", billingToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("non-admin GET /v1/users status = %d, want 403", resp.StatusCode)
	}
}

func TestRouter_PublicEndpoints(t *testing.T) {
	srv := newTestServer(t)

	// No tenant header, no credential.
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET / status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "tessera") {
		t.Error("index page missing expected content")
	}
}

func TestRouter_ProtectedWithoutCredential(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, srv, http.MethodGet, "/v1/widgets", "acme", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	var er api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if er.Error == nil || er.Error.Message != "authentication required" {
		t.Errorf("error = %+v, want the opaque 401 message", er.Error)
	}
}
