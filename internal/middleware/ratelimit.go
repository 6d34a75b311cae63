package middleware

import (
    "fmt"
    "math"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/iliyamo/authledger/internal/config"
)

// loginWindowScript counts one attempt in the current window and returns
// the new count with the window's remaining lifetime in milliseconds.
var loginWindowScript = redis.NewScript(`
    local key = KEYS[1]
    local window_ms = tonumber(ARGV[1])

    local count = redis.call('INCR', key)
    if count == 1 then
        redis.call('PEXPIRE', key, window_ms)
    end
    local ttl = redis.call('PTTL', key)
    if ttl < 0 then
        redis.call('PEXPIRE', key, window_ms)
        ttl = window_ms
    end
    return { count, ttl }
`)

// LoginLimit caps credential attempts per client address within a fixed
// window. Without Redis, or when Redis fails, requests pass through.
func LoginLimit(cfg config.LoginLimitConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    if log == nil {
        log = zap.NewNop()
    }

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := loginKey(cfg, c)
            vals, err := loginWindowScript.Run(c.Request().Context(), rdb, []string{key}, cfg.Window.Milliseconds()).Result()
            if err != nil {
                log.Warn("login limit: redis error", zap.String("key", key), zap.Error(err))
                return next(c)
            }
            arr, ok := vals.([]interface{})
            if !ok || len(arr) != 2 {
                log.Warn("login limit: unexpected script result", zap.String("key", key), zap.String("result", fmt.Sprintf("%#v", vals)))
                return next(c)
            }
            count := asInt64(arr[0])
            ttlMs := asInt64(arr[1])

            remaining := int64(cfg.Max) - count
            if remaining < 0 {
                remaining = 0
            }
            c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
            c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

            if count > int64(cfg.Max) {
                secs := int(math.Ceil(float64(ttlMs) / 1000.0))
                if secs < 1 {
                    secs = 1
                }
                c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
                log.Info("login limit: blocked", zap.String("key", key), zap.Int64("count", count))
                return c.JSON(http.StatusTooManyRequests, echo.Map{
                    "error":       "too_many_requests",
                    "message":     "too many login attempts",
                    "retry_after": secs,
                })
            }
            return next(c)
        }
    }
}

func asInt64(v interface{}) int64 {
    switch t := v.(type) {
    case int64:
        return t
    case int:
        return int64(t)
    case float64:
        return int64(t)
    case string:
        if n, err := strconv.ParseInt(t, 10, 64); err == nil {
            return n
        }
    }
    return 0
}

func loginKey(cfg config.LoginLimitConfig, c echo.Context) string {
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    return cfg.Prefix + ":ip:" + ip
}
