package config

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type Config struct {
	Port     string `env:"PORT,         default=8080"`
	Env      string `env:"ENV,          default=development"`
	LogLevel string `env:"LOG_LEVEL,    default=info"`
	Store    string `env:"STORE_DRIVER, default=mongo"`

	// JWTSecret is the HS512 signing key. Never logged.
	JWTSecret string `env:"JWT_SECRET"`

	// DefaultRole, when set, is assigned to every new registration.
	DefaultRole string `env:"DEFAULT_ROLE"`

	PasswordMinLength int           `env:"PASSWORD_MIN_LENGTH, default=6"`
	RoleCacheTTL      time.Duration `env:"ROLE_CACHE_TTL,      default=5m"`

	Mongo     MongoConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=identity"`
}

// RedisConfig leaves Addr empty by default. The memory driver then uses an
// in-process role cache and the mongo driver reads roles uncached.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB, default=0"`
}

// RateLimitConfig throttles the anonymous auth endpoints per client IP.
// Requests <= 0 disables throttling. The client IP is the peer address unless
// the peer falls in TrustedProxies (CIDRs), in which case X-Forwarded-For is
// honoured.
type RateLimitConfig struct {
	Requests       int           `env:"AUTH_RATE_LIMIT_REQUESTS, default=20"`
	Interval       time.Duration `env:"AUTH_RATE_LIMIT_INTERVAL, default=1m"`
	TrustedProxies []string      `env:"TRUSTED_PROXIES"`
}

// TrustedNets parses TrustedProxies. Entries that fail to parse are skipped;
// LoadFrom rejects them up front.
func (r RateLimitConfig) TrustedNets() []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(r.TrustedProxies))
	for _, cidr := range r.TrustedProxies {
		if _, n, err := net.ParseCIDR(strings.TrimSpace(cidr)); err == nil {
			nets = append(nets, n)
		}
	}
	return nets
}

// IsDevelopment reports whether the service runs in a development environment.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "dev" || c.Env == "local"
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom reads configuration through lookuper and validates it.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store {
	case StoreMongo, StoreMemory:
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q (want %q or %q)", c.Store, StoreMongo, StoreMemory)
	}
	if c.PasswordMinLength < 1 {
		return fmt.Errorf("config: PASSWORD_MIN_LENGTH must be positive, got %d", c.PasswordMinLength)
	}
	for _, cidr := range c.RateLimit.TrustedProxies {
		if _, _, err := net.ParseCIDR(strings.TrimSpace(cidr)); err != nil {
			return fmt.Errorf("config: TRUSTED_PROXIES: %w", err)
		}
	}
	return nil
}
