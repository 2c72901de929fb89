package config

import (
	"strings"
	"time"
)

// RateLimitPolicy is one token bucket: Burst requests may arrive at once and
// one more is admitted every Every.  KeyBy selects the bucket owner: "ip",
// "user" or "ip_user".
type RateLimitPolicy struct {
	Name  string
	Burst int
	Every time.Duration
	KeyBy string
}

// RateLimitConfig holds the policies for the abuse-prone endpoints.  Auth
// guards credential guessing and OTP requests per client address; Orders
// stops a single account from locking up seats with a burst of pending
// orders.
type RateLimitConfig struct {
	Enabled bool
	Prefix  string
	Auth    RateLimitPolicy
	Orders  RateLimitPolicy
}

func LoadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled: envBool("RATE_LIMIT_ENABLED", true),
		Prefix:  getenv("RATE_LIMIT_PREFIX", "rl"),
		Auth:    loadPolicy("auth", "ip", 20, 3*time.Second),
		Orders:  loadPolicy("orders", "user", 5, 10*time.Second),
	}
}

// loadPolicy reads RATE_LIMIT_<NAME>_BURST, _EVERY and _KEY.
func loadPolicy(name, keyBy string, burst int, every time.Duration) RateLimitPolicy {
	env := "RATE_LIMIT_" + strings.ToUpper(name) + "_"
	p := RateLimitPolicy{
		Name:  name,
		Burst: envInt(env+"BURST", burst),
		Every: envDur(env+"EVERY", every),
		KeyBy: getenv(env+"KEY", keyBy),
	}
	if p.Burst < 1 {
		p.Burst = 1
	}
	if p.Every <= 0 {
		p.Every = time.Second
	}
	switch p.KeyBy {
	case "ip", "user", "ip_user":
	default:
		p.KeyBy = keyBy
	}
	return p
}
