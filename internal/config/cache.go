package config

import "time"

// CacheConfig controls the Redis response cache in front of the public
// catalogue.  Entries are grouped by namespace so an admin write only drops
// the namespaces it can affect.  Catalogue pages (movies, cinemas, rooms,
// seats) change rarely and live for CatalogTTL; schedule pages list upcoming
// showtimes, which move with the clock, and live for ScheduleTTL.
type CacheConfig struct {
	Enabled      bool
	Prefix       string
	CatalogTTL   time.Duration
	ScheduleTTL  time.Duration
	MaxBodyBytes int
}

func LoadCacheConfig() CacheConfig {
	cfg := CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		Prefix:       getenv("CACHE_PREFIX", "cache"),
		CatalogTTL:   envDur("CACHE_CATALOG_TTL", 5*time.Minute),
		ScheduleTTL:  envDur("CACHE_SCHEDULE_TTL", 30*time.Second),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
	}
	if cfg.CatalogTTL <= 0 {
		cfg.CatalogTTL = 5 * time.Minute
	}
	if cfg.ScheduleTTL <= 0 || cfg.ScheduleTTL > cfg.CatalogTTL {
		cfg.ScheduleTTL = min(30*time.Second, cfg.CatalogTTL)
	}
	return cfg
}
