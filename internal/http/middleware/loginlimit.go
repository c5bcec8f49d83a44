package middleware

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// LoginRateLimitConfig configures the Redis-based limiter on login attempts.
type LoginRateLimitConfig struct {
	Redis       *redis.Client
	MaxAttempts int           // attempts per window per client IP
	KeyPrefix   string        // e.g. "rl:login:"
	Window      time.Duration // usually 1m
}

// LoginRateLimit applies a fixed-window limit on login attempts per client
// IP, slowing down credential stuffing. Without Redis (dev) it is a no-op.
func LoginRateLimit(cfg LoginRateLimitConfig) echo.MiddlewareFunc {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "rl:login:"
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Redis == nil || cfg.MaxAttempts <= 0 {
				return next(c)
			}

			now := time.Now()
			window := now.Unix() / int64(cfg.Window/time.Second)
			key := cfg.KeyPrefix + c.RealIP() + ":" + strconv.FormatInt(window, 10)

			pipe := cfg.Redis.Pipeline()
			cnt := pipe.Incr(c.Request().Context(), key)
			pipe.Expire(c.Request().Context(), key, cfg.Window*2)
			if _, err := pipe.Exec(c.Request().Context()); err != nil {
				// redis down: let the attempt through rather than lock everyone out
				return next(c)
			}

			if cnt.Val() > int64(cfg.MaxAttempts) {
				remain := cfg.Window - time.Duration(now.UnixNano()%int64(cfg.Window))
				if remain > 0 {
					c.Response().Header().Set("Retry-After", strconv.Itoa(int(remain.Round(time.Second)/time.Second)))
				}
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "too many login attempts"})
			}
			return next(c)
		}
	}
}
