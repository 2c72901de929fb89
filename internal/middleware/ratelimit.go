package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-ticket-booking/internal/config"
)

// gcra stores the theoretical arrival time (ms) of the next request per key.
// A request is admitted while that time is at most burst*every ahead of now.
// Returns {allowed, remaining, retry_after_ms}.
var gcra = redis.NewScript(`
local now = tonumber(ARGV[1])
local every = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])

local tat = tonumber(redis.call('GET', KEYS[1]) or now)
if tat < now then tat = now end
local next_tat = tat + every
local allow_at = next_tat - every * burst

if now < allow_at then
    return { 0, 0, allow_at - now }
end
redis.call('SET', KEYS[1], next_tat, 'PX', next_tat - now)
return { 1, math.floor((now - allow_at) / every), 0 }
`)

// RateLimit enforces policy p on the wrapped routes.  Redis errors fail
// open so a cache outage never locks customers out.
func RateLimit(cfg config.RateLimitConfig, p config.RateLimitPolicy, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg.Prefix, p, c)
			res, err := gcra.Run(c.Request().Context(), rdb, []string{key},
				time.Now().UnixMilli(), p.Every.Milliseconds(), p.Burst).Int64Slice()
			if err != nil || len(res) != 3 {
				log.Warn("rate limit check failed", zap.String("policy", p.Name), zap.Error(err))
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(p.Burst))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res[1], 10))
			if res[0] == 1 {
				return next(c)
			}
			secs := (res[2] + 999) / 1000
			h.Set("Retry-After", strconv.FormatInt(secs, 10))
			log.Info("rate limited", zap.String("policy", p.Name), zap.String("key", key))
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "too many requests",
				"retry_after": secs,
			})
		}
	}
}

// rateKey is prefix:policy:owner.  Unauthenticated callers share the "anon"
// user bucket, so user-keyed policies belong behind JWTAuth.
func rateKey(prefix string, p config.RateLimitPolicy, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	key := prefix + ":" + p.Name + ":"
	switch p.KeyBy {
	case "user":
		return key + "user:" + identity(c)
	case "ip_user":
		return key + "ip:" + ip + ":user:" + identity(c)
	default:
		return key + "ip:" + ip
	}
}
