package api

import (
	"net"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/webapi-identity/identity-api/docs"
	"github.com/webapi-identity/identity-api/internal/api/handler"
	"github.com/webapi-identity/identity-api/internal/api/middleware"
	"github.com/webapi-identity/identity-api/internal/core/domain"
	"github.com/webapi-identity/identity-api/internal/core/ports"
	"github.com/webapi-identity/identity-api/internal/infrastructure/config"
)

// Deps is everything the router needs to mount the API.
type Deps struct {
	AuthService  ports.AuthService
	RoleService  ports.RoleService
	TokenParser  middleware.TokenParser
	HealthChecks []handler.HealthCheck
	RateLimit    config.RateLimitConfig
	Logger       zerolog.Logger

	// Registerer and Gatherer default to the prometheus globals.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Deps) *echo.Echo {
	if deps.Registerer == nil {
		deps.Registerer = prometheus.DefaultRegisterer
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Logger)
	e.IPExtractor = clientIPExtractor(deps.RateLimit.TrustedNets())

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.Logging(deps.Logger))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "identity_http",
		Registerer: deps.Registerer,
	}))

	authHandler := handler.NewAuthHandler(deps.AuthService)
	roleHandler := handler.NewRoleHandler(deps.RoleService)
	healthHandler := handler.NewHealthHandler(deps.Logger, deps.HealthChecks...)
	requireAuth := middleware.Auth(deps.TokenParser)

	// --- User routes ---
	user := e.Group("/api/user")
	throttled := middleware.RateLimit(deps.RateLimit)
	user.POST("/login", authHandler.Login, throttled)
	user.POST("/register", authHandler.Register, throttled)
	user.GET("/me", authHandler.Me, requireAuth)

	// --- Role routes ---
	role := e.Group("/api/role", requireAuth)
	adminOnly := middleware.RBAC(domain.RoleAdmin)
	role.GET("", roleHandler.List, adminOnly)
	role.POST("", roleHandler.Create, adminOnly)
	role.POST("/user-roles", roleHandler.UpdateUserRoles, adminOnly)
	role.GET("/:id", roleHandler.Get, middleware.RBAC(domain.RoleAdmin, domain.RoleGerente))

	// --- Operational endpoints (no auth required) ---
	e.GET("/health", healthHandler.Liveness)        // liveness
	e.GET("/health/ready", healthHandler.Readiness) // readiness
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: deps.Gatherer,
	}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

// clientIPExtractor returns the peer address, or the right-most untrusted
// X-Forwarded-For hop when the peer is one of trusted. Headers from any other
// peer are ignored.
func clientIPExtractor(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range trusted {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}
