// Package router wires handlers and middleware onto the echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-ticket-booking/internal/config"
	"github.com/iliyamo/cinema-ticket-booking/internal/handler"
	"github.com/iliyamo/cinema-ticket-booking/internal/middleware"
	"github.com/iliyamo/cinema-ticket-booking/internal/model"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Health    echo.HandlerFunc
	Auth      *handler.AuthHandler
	Users     *handler.UserHandler
	Posts     *handler.PostHandler
	Movies    *handler.MovieHandler
	Cinemas   *handler.CinemaHandler
	Showtimes *handler.ShowtimeHandler
	Food      *handler.FoodHandler
	Vouchers  *handler.VoucherHandler
	Orders    *handler.OrderHandler
	Reports   *handler.ReportHandler
}

// Options carries the middleware configuration.  Redis may be nil, in which
// case caching and rate limiting are skipped.
type Options struct {
	JWTSecret string
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig
	Redis     *redis.Client
	Log       *zap.Logger
}

// guards are the middleware chains shared by the route files.
type guards struct {
	auth       echo.MiddlewareFunc // any signed-in user
	optional   echo.MiddlewareFunc // identity when a token is sent
	catalog    echo.MiddlewareFunc
	schedule   echo.MiddlewareFunc
	authLimit  echo.MiddlewareFunc
	orderLimit echo.MiddlewareFunc
	admin      func(purge ...string) []echo.MiddlewareFunc
}

func newGuards(o Options) guards {
	jwt := middleware.JWTAuth(o.JWTSecret)
	return guards{
		auth:       jwt,
		optional:   middleware.OptionalJWT(o.JWTSecret),
		catalog:    middleware.NewRedisCache(o.Cache, o.Redis, middleware.CacheCatalog),
		schedule:   middleware.NewRedisCache(o.Cache, o.Redis, middleware.CacheSchedule),
		authLimit:  middleware.RateLimit(o.RateLimit, o.RateLimit.Auth, o.Redis, o.Log),
		orderLimit: middleware.RateLimit(o.RateLimit, o.RateLimit.Orders, o.Redis, o.Log),
		// admin chains purge the cache namespaces their writes can stale.
		admin: func(purge ...string) []echo.MiddlewareFunc {
			return []echo.MiddlewareFunc{
				jwt,
				middleware.RequireRole(model.RoleAdmin),
				middleware.PurgeCacheOnWrite(o.Cache, o.Redis, o.Log, purge...),
			}
		},
	}
}

// Register mounts every route.
func Register(e *echo.Echo, h Handlers, o Options) {
	g := newGuards(o)

	e.GET("/healthz", h.Health)
	registerAuth(e, h.Auth, g)
	registerCatalog(e, h, g)
	registerCustomer(e, h, g)
	registerAdmin(e, h, g)
}

// registerAuth mounts /auth.  Credential endpoints sit behind the rate
// limiter; /auth/me needs a token.
func registerAuth(e *echo.Echo, a *handler.AuthHandler, g guards) {
	r := e.Group("/auth", g.authLimit)
	r.POST("/register", a.Register)
	r.POST("/login", a.Login)
	r.POST("/refresh", a.Refresh)
	r.POST("/logout", a.Logout)
	r.POST("/forgot-password", a.ForgotPassword)
	r.POST("/verify-otp", a.VerifyOTP)
	r.POST("/reset-password", a.ResetPassword)
	r.GET("/me", a.Me, g.auth)
}

// registerCatalog mounts the public read side.  Responses that do not depend
// on the caller are cached; posts and food vary for admins and the seat map
// changes with every order, so those are not.
func registerCatalog(e *echo.Echo, h Handlers, g guards) {
	api := e.Group("/api")

	api.GET("/movies", h.Movies.List, g.catalog)
	api.GET("/movies/:id", h.Movies.Get, g.catalog)
	api.GET("/movies/:id/showtimes", h.Movies.ListShowtimes, g.schedule)

	api.GET("/cinemas", h.Cinemas.List, g.catalog)
	api.GET("/cinemas/:id", h.Cinemas.Get, g.catalog)
	api.GET("/cinemas/:id/rooms", h.Cinemas.ListRooms, g.catalog)
	api.GET("/rooms/:id/seats", h.Cinemas.ListSeats, g.catalog)

	api.GET("/showtimes", h.Showtimes.List, g.schedule)
	api.GET("/showtimes/:id", h.Showtimes.Get, g.schedule)
	api.GET("/showtimes/:id/seats", h.Showtimes.SeatMap)

	api.GET("/v1/posts", h.Posts.List, g.optional)
	api.GET("/v1/posts/:id", h.Posts.Get, g.optional)

	e.GET("/food-and-drinks", h.Food.List, g.optional)
}
