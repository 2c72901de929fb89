package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-ticket-booking/internal/config"
)

// captureWriter tees the response body into a bounded buffer while still
// streaming it to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	switch {
	case cw.limit <= 0:
		cw.buf.Write(b)
	case cw.size < cw.limit:
		remain := cw.limit - cw.size
		if int64(len(b)) <= remain {
			cw.buf.Write(b)
		} else {
			cw.buf.Write(b[:remain])
		}
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

// Cache namespaces.  Catalogue covers movies, cinemas, rooms and seats;
// schedule covers showtime listings, which embed movie and cinema names.
const (
	CacheCatalog  = "catalog"
	CacheSchedule = "schedule"
)

func cacheTTL(cfg config.CacheConfig, ns string) time.Duration {
	if ns == CacheSchedule {
		return cfg.ScheduleTTL
	}
	return cfg.CatalogTTL
}

// cacheKey is prefix:namespace:sha1(path?query).
func cacheKey(cfg config.CacheConfig, ns string, r *http.Request) string {
	sum := sha1.Sum([]byte(r.URL.Path + "?" + r.URL.RawQuery))
	return fmt.Sprintf("%s:%s:%x", cfg.Prefix, ns, sum[:])
}

// cachedHeaders describe the body itself.  Everything else on a response
// (CORS, Vary, request id, rate-limit counters) belongs to the request and
// is set again by the middleware chain on every hit.
var cachedHeaders = []string{
	echo.HeaderContentType,
	echo.HeaderContentEncoding,
	"Content-Language",
	echo.HeaderCacheControl,
	"ETag",
	echo.HeaderLastModified,
}

func bodyHeaders(h http.Header) http.Header {
	out := make(http.Header, len(cachedHeaders))
	for _, k := range cachedHeaders {
		for _, v := range h.Values(k) {
			out.Add(k, v)
		}
	}
	return out
}

// cachedResponse is what a hit replays.
type cachedResponse struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

func (cr cachedResponse) write(w *echo.Response) {
	for k, vals := range bodyHeaders(cr.Header) {
		w.Header().Del(k)
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("X-Cache", "HIT")
	w.WriteHeader(cr.Status)
	_, _ = w.Write(cr.Body)
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// NewRedisCache serves GET responses of namespace ns from Redis and stores
// 200 misses.  With Redis unavailable it is a no-op.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client, ns string) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	ttl := cacheTTL(cfg, ns)
	maxBody := int64(cfg.MaxBodyBytes)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method != http.MethodGet {
				return next(c)
			}
			ctx := c.Request().Context()
			key := cacheKey(cfg, ns, c.Request())

			if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
				var hit cachedResponse
				if json.Unmarshal(bs, &hit) == nil && hit.Status != 0 {
					hit.write(c.Response())
					return nil
				}
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			// Truncated bodies are never stored.
			if cw.status != http.StatusOK || (maxBody > 0 && cw.size > maxBody) {
				return nil
			}
			payload, err := json.Marshal(cachedResponse{
				Status: cw.status,
				Header: bodyHeaders(c.Response().Header()),
				Body:   cw.buf.Bytes(),
			})
			if err == nil {
				_ = rdb.Set(context.Background(), key, payload, ttl).Err()
			}
			return nil
		}
	}
}

// PurgeCacheOnWrite drops the given namespaces after a successful write
// (a non-GET answering 2xx).
func PurgeCacheOnWrite(cfg config.CacheConfig, rdb *redis.Client, log *zap.Logger, namespaces ...string) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil || len(namespaces) == 0 {
		return passThrough
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if c.Request().Method == http.MethodGet || err != nil {
				return err
			}
			if status := c.Response().Status; status < 200 || status >= 300 {
				return nil
			}
			for _, ns := range namespaces {
				pattern := cfg.Prefix + ":" + ns + ":*"
				n, perr := PurgeCache(context.Background(), rdb, pattern)
				if perr != nil {
					log.Warn("cache purge failed", zap.String("namespace", ns), zap.Error(perr))
					continue
				}
				log.Debug("cache purged", zap.String("namespace", ns), zap.Int("keys", n))
			}
			return nil
		}
	}
}

// PurgeCache unlinks every key matching pattern in batches and returns how
// many were removed.
func PurgeCache(ctx context.Context, rdb *redis.Client, pattern string) (int, error) {
	const batch = 200
	total := 0
	keys := make([]string, 0, batch)
	flush := func() error {
		if len(keys) == 0 {
			return nil
		}
		if err := rdb.Unlink(ctx, keys...).Err(); err != nil {
			return err
		}
		total += len(keys)
		keys = keys[:0]
		return nil
	}

	iter := rdb.Scan(ctx, 0, pattern, batch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == batch {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return total, err
	}
	return total, flush()
}
