// Command server runs the tessera multi-tenant backend.
//
// Configuration is loaded from a YAML file (-config flag, TESSERA_CONFIG
// env, ./config.yaml, or /etc/tessera/config.yaml) with TESSERA_* env
// overrides. See pkg/config for the full surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tessera-io/tessera/pkg/api"
	"github.com/tessera-io/tessera/pkg/auth"
	"github.com/tessera-io/tessera/pkg/auth/jwt"
	"github.com/tessera-io/tessera/pkg/config"
	"github.com/tessera-io/tessera/pkg/gateway"
	"github.com/tessera-io/tessera/pkg/storage/memory"
	"github.com/tessera-io/tessera/pkg/storage/postgres"
	"github.com/tessera-io/tessera/pkg/tenant"
	"github.com/tessera-io/tessera/pkg/transport"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// store is the union of persistence surfaces the wiring below needs.
// Both the memory and postgres stores satisfy it.
type store interface {
	tenant.Store
	auth.CredentialStore
	auth.UserLookup
	transport.WidgetStore
	transport.UserStore
	transport.HealthChecker
	InsertTenant(ctx context.Context, t *api.Tenant) error
	InsertUser(ctx context.Context, u *api.User) error
	Close() error
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()

	// Storage backend.
	var st store
	switch cfg.Storage.Type {
	case "postgres":
		pg, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MinConns:       cfg.Storage.Postgres.MinConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		})
		if err != nil {
			return fmt.Errorf("creating postgres store: %w", err)
		}
		st = pg
		slog.Info("storage enabled", "type", "postgres")
	default:
		st = memory.NewStore()
		slog.Info("storage enabled", "type", "memory")
	}
	defer st.Close()

	if cfg.Storage.SeedFile != "" {
		if err := seedFromFile(ctx, st, cfg.Storage.SeedFile); err != nil {
			return fmt.Errorf("seeding store: %w", err)
		}
	}

	// Tenant directory: store lookup, wrapped in an in-process TTL
	// cache, optionally backed by a shared Redis cache.
	var dir tenant.Directory = tenant.NewDirectory(st)
	if cfg.Tenant.Redis.URL != "" {
		rd, err := tenant.NewRedisDirectory(dir, cfg.Tenant.Redis.URL, cfg.Tenant.Redis.TTL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rd.Close()
		dir = rd
		slog.Info("tenant directory cache enabled", "type", "redis", "ttl", cfg.Tenant.Redis.TTL)
	}
	if cfg.Tenant.CacheTTL > 0 {
		dir = tenant.NewCachedDirectory(dir, cfg.Tenant.CacheTTL)
	}

	// Authenticator chain: the JWT verifier (when enabled) abstains for
	// opaque credentials; the token authenticator decides those.
	var authenticators []auth.Authenticator
	if cfg.Auth.JWT.Enabled {
		authenticators = append(authenticators, jwt.New(jwt.Config{
			Issuer:      cfg.Auth.JWT.Issuer,
			Audience:    cfg.Auth.JWT.Audience,
			JWKSURL:     cfg.Auth.JWT.JWKSURL,
			UserClaim:   cfg.Auth.JWT.UserClaim,
			TenantClaim: cfg.Auth.JWT.TenantClaim,
			RolesClaim:  cfg.Auth.JWT.RolesClaim,
			CacheTTL:    cfg.Auth.JWT.CacheTTL,
		}))
		slog.Info("jwt authentication enabled", "issuer", cfg.Auth.JWT.Issuer)
	}
	authenticators = append(authenticators, auth.NewTokenAuthenticator(st, cfg.Auth.TokenValidity))
	chain := &auth.Chain{Authenticators: authenticators}

	gw := gateway.New(dir, chain, gateway.DefaultBypassEndpoints)

	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metricsPath = cfg.Observability.Metrics.Path
	}

	router := transport.NewRouter(transport.RouterConfig{
		Gateway:     gw,
		Widgets:     st,
		Users:       st,
		Sessions:    auth.NewSessionService(st, st),
		Health:      st,
		MetricsPath: metricsPath,
		Logger:      slog.Default(),
	})

	srv := transport.NewServer(router.Handler(),
		transport.WithPort(cfg.Server.Port),
		transport.WithReadTimeout(cfg.Server.ReadTimeout),
		transport.WithWriteTimeout(cfg.Server.WriteTimeout),
	)

	return srv.ListenAndServe()
}
