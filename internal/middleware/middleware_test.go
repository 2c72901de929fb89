package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/cinema-ticket-booking/internal/config"
	"github.com/iliyamo/cinema-ticket-booking/internal/utils"
)

const testSecret = "test-secret"

func protectedServer(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.GET("/p", func(c echo.Context) error {
		id, _ := UserID(c)
		return c.JSON(http.StatusOK, echo.Map{"id": id, "role": Role(c)})
	}, mw...)
	return e
}

func do(e *echo.Echo, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func token(t *testing.T, id uint64, role string) string {
	tok, err := utils.NewAccessToken(testSecret, id, role, 5, time.Now())
	require.NoError(t, err)
	return tok.Token
}

func TestJWTAuth(t *testing.T) {
	e := protectedServer(JWTAuth(testSecret))

	rec := do(e, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"missing bearer token"}`, rec.Body.String())

	rec = do(e, "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(e, token(t, 7, "CUSTOMER"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":7,"role":"CUSTOMER"}`, rec.Body.String())
}

func TestOptionalJWT(t *testing.T) {
	e := protectedServer(OptionalJWT(testSecret))

	rec := do(e, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":0,"role":""}`, rec.Body.String())

	rec = do(e, "garbage")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, token(t, 3, "ADMIN"))
	assert.JSONEq(t, `{"id":3,"role":"ADMIN"}`, rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	e := protectedServer(JWTAuth(testSecret), RequireRole("ADMIN"))

	rec := do(e, token(t, 1, "CUSTOMER"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"forbidden"}`, rec.Body.String())

	rec = do(e, token(t, 1, "ADMIN"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e := echo.New()
	e.Use(RequestLogger(zap.New(core)))
	e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/missing", func(c echo.Context) error { return echo.NewHTTPError(http.StatusNotFound, "nope") })
	e.GET("/boom", func(c echo.Context) error { return c.NoContent(http.StatusInternalServerError) })

	for _, p := range []string{"/ok", "/missing", "/boom"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, int64(http.StatusNotFound), entries[1].ContextMap()["status"])
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "/boom", entries[2].ContextMap()["path"])
}

func TestCacheDisabledWithoutRedis(t *testing.T) {
	cfg := config.CacheConfig{Enabled: true, Prefix: "cache", CatalogTTL: time.Minute}
	e := echo.New()
	e.GET("/p", func(c echo.Context) error { return c.String(http.StatusOK, "fresh") }, NewRedisCache(cfg, nil, CacheCatalog))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/p", nil))
	assert.Equal(t, "fresh", rec.Body.String())
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestCachedResponseReplaysHeaders(t *testing.T) {
	hdr := http.Header{}
	hdr.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	hdr.Set(echo.HeaderContentLength, "7")
	hdr.Set("X-Cache", "MISS")
	hdr.Set(echo.HeaderAccessControlAllowOrigin, "*")
	cr := cachedResponse{Status: http.StatusOK, Header: hdr, Body: []byte(`{"a":1}`)}

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/movies", nil), rec)
	cr.write(c.Response())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, echo.MIMEApplicationJSON, rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Empty(t, rec.Header().Get(echo.HeaderContentLength))
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, `{"a":1}`, rec.Body.String())
}

func TestCacheKeyAndTTL(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "cache", CatalogTTL: time.Minute, ScheduleTTL: 10 * time.Second}
	req := func(target string) *http.Request { return httptest.NewRequest(http.MethodGet, target, nil) }

	assert.NotEqual(t, cacheKey(cfg, CacheCatalog, req("/api/movies?page=1")), cacheKey(cfg, CacheCatalog, req("/api/movies?page=2")))
	assert.NotEqual(t, cacheKey(cfg, CacheCatalog, req("/api/movies")), cacheKey(cfg, CacheSchedule, req("/api/movies")))
	assert.Contains(t, cacheKey(cfg, CacheSchedule, req("/api/showtimes")), "cache:schedule:")

	assert.Equal(t, time.Minute, cacheTTL(cfg, CacheCatalog))
	assert.Equal(t, 10*time.Second, cacheTTL(cfg, CacheSchedule))
}

func TestRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())

	p := config.RateLimitPolicy{Name: "auth", KeyBy: "ip"}
	assert.Equal(t, "rl:auth:ip:10.0.0.1", rateKey("rl", p, c))

	p = config.RateLimitPolicy{Name: "orders", KeyBy: "user"}
	assert.Equal(t, "rl:orders:user:anon", rateKey("rl", p, c))
	c.Set(CtxUserID, uint64(9))
	assert.Equal(t, "rl:orders:user:9", rateKey("rl", p, c))

	p.KeyBy = "ip_user"
	assert.Equal(t, "rl:orders:ip:10.0.0.1:user:9", rateKey("rl", p, c))
}

func TestRateLimitDisabledWithoutRedis(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, Prefix: "rl"}
	p := config.RateLimitPolicy{Name: "auth", Burst: 1, Every: time.Second, KeyBy: "ip"}
	e := echo.New()
	e.POST("/auth/login", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, RateLimit(cfg, p, nil, zap.NewNop()))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}
