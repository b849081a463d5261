// Package app wires configuration into stores, services and the HTTP router.
// Both the API server and identityctl build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/webapi-identity/identity-api/internal/api"
	"github.com/webapi-identity/identity-api/internal/api/handler"
	"github.com/webapi-identity/identity-api/internal/core/domain"
	"github.com/webapi-identity/identity-api/internal/core/ports"
	"github.com/webapi-identity/identity-api/internal/core/service"
	"github.com/webapi-identity/identity-api/internal/infrastructure/config"
	"github.com/webapi-identity/identity-api/internal/infrastructure/db/memory"
	"github.com/webapi-identity/identity-api/internal/infrastructure/db/mongo"
	"github.com/webapi-identity/identity-api/internal/infrastructure/db/redis"
	"github.com/webapi-identity/identity-api/internal/infrastructure/password"
	"github.com/webapi-identity/identity-api/pkg/logger"
)

const serviceName = "identity-api"

// Backends are the storage adapters selected by configuration.
type Backends struct {
	Store  ports.CredentialStore
	Audit  ports.AuditRepository
	Cache  service.RoleCache
	Checks []handler.HealthCheck

	closers []func(context.Context) error
}

// Close releases every connection opened by OpenBackends, newest first.
func (b *Backends) Close(ctx context.Context) error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// OpenBackends connects the credential store, audit trail and role cache.
func OpenBackends(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Backends, error) {
	policy := password.DefaultPolicy()
	policy.MinLength = cfg.PasswordMinLength

	b := &Backends{}

	switch cfg.Store {
	case config.StoreMemory:
		b.Store = memory.NewCredentialStore(policy)
		b.Audit = memory.NewAuditLog()
		log.Warn().Msg("using in-memory credential store; data is lost on restart")

	case config.StoreMongo:
		db, err := mongo.Open(ctx, mongo.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			AppName:  serviceName,
		})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)

		store, err := db.CredentialStore(ctx, policy)
		if err != nil {
			_ = b.Close(ctx)
			return nil, err
		}
		b.Store = store
		b.Audit = db.AuditRepository()
		b.Checks = append(b.Checks, handler.HealthCheck{Name: "mongodb", Check: db.Ping})
		log.Info().Str("database", cfg.Mongo.Database).Msg("connected to mongodb")

	default:
		return nil, fmt.Errorf("app: unknown store driver %q", cfg.Store)
	}

	if cfg.Redis.Addr != "" {
		rdb, err := redis.Open(ctx, redis.Config{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			ClientName: serviceName,
		})
		if err != nil {
			_ = b.Close(ctx)
			return nil, err
		}
		b.closers = append(b.closers, func(context.Context) error { return rdb.Close() })
		b.Cache = redis.NewRoleCache(rdb, cfg.RoleCacheTTL)
		b.Checks = append(b.Checks, handler.HealthCheck{Name: "redis", Check: redis.Ping(rdb)})
		log.Info().Str("addr", cfg.Redis.Addr).Msg("role cache backed by redis")
	} else if cfg.Store == config.StoreMemory {
		// An in-process cache is only coherent with an in-process store. Other
		// writers of a shared database (identityctl, replicas) cannot reach it.
		b.Cache = memory.NewRoleCache(cfg.RoleCacheTTL)
	}

	return b, nil
}

// Services bundles the core services built over a set of backends.
type Services struct {
	Issuer *service.TokenIssuer
	Auth   *service.AuthService
	Roles  *service.RoleService
}

// NewServices builds the core services. It refuses to start with an unusable
// signing secret and creates the default registration role when missing.
func NewServices(ctx context.Context, cfg *config.Config, b *Backends, log zerolog.Logger) (*Services, error) {
	issuer := service.NewTokenIssuer(cfg.JWTSecret)
	if err := issuer.Validate(); err != nil {
		return nil, err
	}
	if cfg.DefaultRole != "" {
		if err := ensureRole(ctx, b.Store, strings.TrimSpace(cfg.DefaultRole)); err != nil {
			return nil, domain.ConfigurationError("default role %q: %w", cfg.DefaultRole, err)
		}
		log.Info().Str("role", cfg.DefaultRole).Msg("default registration role ready")
	}

	return &Services{
		Issuer: issuer,
		Auth: service.NewAuthService(b.Store, issuer, logger.Component(log, "auth"),
			service.WithRoleCache(b.Cache),
			service.WithDefaultRole(cfg.DefaultRole),
		),
		Roles: service.NewRoleService(b.Store, b.Cache, b.Audit, logger.Component(log, "roles")),
	}, nil
}

func ensureRole(ctx context.Context, store ports.CredentialStore, name string) error {
	if name == "" {
		return errors.New("blank role name")
	}
	if _, err := store.CreateRole(ctx, name); err != nil && !errors.Is(err, domain.ErrRoleExists) {
		return err
	}
	return nil
}

// App is a fully wired API server.
type App struct {
	Router   *echo.Echo
	Services *Services
	backends *Backends
}

// New opens backends, builds services and mounts the router.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	b, err := OpenBackends(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	svc, err := NewServices(ctx, cfg, b, log)
	if err != nil {
		_ = b.Close(ctx)
		return nil, err
	}

	router := api.NewRouter(api.Deps{
		AuthService:  svc.Auth,
		RoleService:  svc.Roles,
		TokenParser:  svc.Issuer,
		HealthChecks: b.Checks,
		RateLimit:    cfg.RateLimit,
		Logger:       logger.Component(log, "http"),
	})

	return &App{Router: router, Services: svc, backends: b}, nil
}

// Close shuts down backend connections.
func (a *App) Close(ctx context.Context) error {
	return a.backends.Close(ctx)
}
