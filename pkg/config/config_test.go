package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("Server.ReadTimeout = %s, want 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("Storage.Type = %q, want memory", cfg.Storage.Type)
	}
	if cfg.Tenant.CacheTTL != 30*time.Second {
		t.Errorf("Tenant.CacheTTL = %s, want 30s", cfg.Tenant.CacheTTL)
	}
	if cfg.Auth.TokenValidity != 24*time.Hour {
		t.Errorf("Auth.TokenValidity = %s, want 24h", cfg.Auth.TokenValidity)
	}
	if cfg.Auth.JWT.UserClaim != "sub" || cfg.Auth.JWT.TenantClaim != "tenant_id" {
		t.Errorf("JWT claims = %q/%q, want sub/tenant_id", cfg.Auth.JWT.UserClaim, cfg.Auth.JWT.TenantClaim)
	}
	if !cfg.Observability.Metrics.Enabled || cfg.Observability.Metrics.Path != "/metrics" {
		t.Errorf("Metrics = %+v, want enabled at /metrics", cfg.Observability.Metrics)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeTempConfig(t, `
server:
  port: 9090
  write_timeout: 90s
storage:
  type: postgres
  postgres:
    dsn: postgres://test@localhost/tessera
    max_conns: 10
    migrate_on_start: true
tenant:
  cache_ttl: 1m
  redis:
    url: redis://localhost:6379/0
auth:
  token_validity: 12h
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.WriteTimeout != 90*time.Second {
		t.Errorf("Server.WriteTimeout = %s, want 90s", cfg.Server.WriteTimeout)
	}
	// Read timeout was not set and keeps the default.
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("Server.ReadTimeout = %s, want default 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Storage.Type != "postgres" || cfg.Storage.Postgres.MaxConns != 10 {
		t.Errorf("Storage = %+v, want postgres with max_conns 10", cfg.Storage)
	}
	if !cfg.Storage.Postgres.MigrateOnStart {
		t.Error("MigrateOnStart = false, want true")
	}
	if cfg.Tenant.CacheTTL != time.Minute {
		t.Errorf("Tenant.CacheTTL = %s, want 1m", cfg.Tenant.CacheTTL)
	}
	if cfg.Tenant.Redis.URL != "redis://localhost:6379/0" {
		t.Errorf("Redis.URL = %q", cfg.Tenant.Redis.URL)
	}
	if cfg.Auth.TokenValidity != 12*time.Hour {
		t.Errorf("Auth.TokenValidity = %s, want 12h", cfg.Auth.TokenValidity)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TESSERA_PORT", "7070")
	t.Setenv("TESSERA_STORAGE", "postgres")
	t.Setenv("TESSERA_POSTGRES_DSN", "postgres://env@localhost/tessera")
	t.Setenv("TESSERA_TOKEN_VALIDITY", "1h")
	t.Setenv("TESSERA_REDIS_URL", "redis://cache:6379/1")

	cfg, err := Load(writeTempConfig(t, "server:\n  port: 9090\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Env wins over the file.
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Storage.Type != "postgres" || cfg.Storage.Postgres.DSN != "postgres://env@localhost/tessera" {
		t.Errorf("Storage = %+v, want env-provided postgres DSN", cfg.Storage)
	}
	if cfg.Auth.TokenValidity != time.Hour {
		t.Errorf("Auth.TokenValidity = %s, want 1h", cfg.Auth.TokenValidity)
	}
	if cfg.Tenant.Redis.URL != "redis://cache:6379/1" {
		t.Errorf("Redis.URL = %q", cfg.Tenant.Redis.URL)
	}
}

func TestLoad_ConfigDiscoveryEnv(t *testing.T) {
	path := writeTempConfig(t, "server:\n  port: 6060\n")
	t.Setenv("TESSERA_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 6060 {
		t.Errorf("Server.Port = %d, want 6060 from TESSERA_CONFIG file", cfg.Server.Port)
	}
}

func TestLoad_FileReferences(t *testing.T) {
	dir := t.TempDir()
	dsnFile := filepath.Join(dir, "dsn")
	if err := os.WriteFile(dsnFile, []byte("postgres://secret@localhost/tessera\n"), 0o600); err != nil {
		t.Fatalf("writing secret file: %v", err)
	}

	path := writeTempConfig(t, `
storage:
  type: postgres
  postgres:
    dsn_file: `+dsnFile+`
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.Postgres.DSN != "postgres://secret@localhost/tessera" {
		t.Errorf("DSN = %q, want trimmed file content", cfg.Storage.Postgres.DSN)
	}
}

func TestLoad_FileReferenceMissing(t *testing.T) {
	path := writeTempConfig(t, `
storage:
  type: postgres
  postgres:
    dsn_file: /nonexistent/dsn
`)

	if _, err := Load(path); err == nil {
		t.Error("expected error for missing secret file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "zero port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name:    "unknown storage type",
			mutate:  func(c *Config) { c.Storage.Type = "cassandra" },
			wantErr: "storage.type",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Storage.Type = "postgres" },
			wantErr: "storage.postgres.dsn",
		},
		{
			name:    "negative token validity",
			mutate:  func(c *Config) { c.Auth.TokenValidity = -time.Hour },
			wantErr: "auth.token_validity",
		},
		{
			name: "jwt enabled without issuer",
			mutate: func(c *Config) {
				c.Auth.JWT.Enabled = true
				c.Auth.JWT.JWKSURL = "https://idp.example.com/jwks"
			},
			wantErr: "auth.jwt.issuer",
		},
		{
			name: "jwt enabled without jwks url",
			mutate: func(c *Config) {
				c.Auth.JWT.Enabled = true
				c.Auth.JWT.Issuer = "https://idp.example.com"
			},
			wantErr: "auth.jwt.jwks_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate failed: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
