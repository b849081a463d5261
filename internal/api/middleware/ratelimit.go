package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/webapi-identity/identity-api/internal/infrastructure/config"
)

// RateLimit applies a token bucket per client IP. Idle buckets expire after a
// few intervals. A non-positive config disables it.
func RateLimit(cfg config.RateLimitConfig) echo.MiddlewareFunc {
	if cfg.Requests <= 0 || cfg.Interval <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}

	perRequest := cfg.Interval / time.Duration(cfg.Requests)
	if perRequest <= 0 {
		perRequest = time.Second
	}

	buckets := cache.New(3*cfg.Interval, cfg.Interval)
	var mu sync.Mutex

	limiterFor := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if v, ok := buckets.Get(ip); ok {
			buckets.SetDefault(ip, v)
			return v.(*rate.Limiter)
		}
		l := rate.NewLimiter(rate.Every(perRequest), cfg.Requests)
		buckets.SetDefault(ip, l)
		return l
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !limiterFor(c.RealIP()).Allow() {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
