package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-ticket-booking/internal/middleware"
)

// registerAdmin mounts ADMIN-only endpoints.  Catalogue writes purge both
// cache namespaces since showtime listings embed movie, cinema and room
// names; showtime writes only purge the schedule.
func registerAdmin(e *echo.Echo, h Handlers, g guards) {
	catalog := g.admin(middleware.CacheCatalog, middleware.CacheSchedule)
	schedule := g.admin(middleware.CacheSchedule)
	a := g.admin()
	api := e.Group("/api")

	// ---- Catalogue ----
	api.POST("/movies", h.Movies.Create, catalog...)
	api.PUT("/movies/:id", h.Movies.Update, catalog...)
	api.DELETE("/movies/:id", h.Movies.Delete, catalog...)

	api.POST("/cinemas", h.Cinemas.Create, catalog...)
	api.PUT("/cinemas/:id", h.Cinemas.Update, catalog...)
	api.DELETE("/cinemas/:id", h.Cinemas.Delete, catalog...)

	// ---- Rooms and seats ----
	api.POST("/cinemas/:id/rooms", h.Cinemas.CreateRoom, catalog...)
	api.PUT("/rooms/:id", h.Cinemas.UpdateRoom, catalog...)
	api.DELETE("/rooms/:id", h.Cinemas.DeleteRoom, catalog...)
	api.POST("/rooms/:id/seats/generate", h.Cinemas.GenerateSeats, catalog...)
	api.PUT("/seats/:id", h.Cinemas.UpdateSeat, catalog...)
	api.DELETE("/seats/:id", h.Cinemas.DeleteSeat, catalog...)

	// ---- Showtimes ----
	api.POST("/showtimes", h.Showtimes.Create, schedule...)
	api.PUT("/showtimes/:id", h.Showtimes.Update, schedule...)
	api.DELETE("/showtimes/:id", h.Showtimes.Delete, schedule...)

	// ---- Concessions, vouchers, posts ----
	e.POST("/food-and-drinks", h.Food.Create, a...)
	e.PUT("/food-and-drinks/:id", h.Food.Update, a...)
	e.DELETE("/food-and-drinks/:id", h.Food.Delete, a...)

	api.GET("/vouchers", h.Vouchers.List, a...)
	api.POST("/vouchers", h.Vouchers.Create, a...)
	api.PUT("/vouchers/:id", h.Vouchers.Update, a...)
	api.DELETE("/vouchers/:id", h.Vouchers.Delete, a...)

	api.POST("/v1/posts", h.Posts.Create, a...)
	api.PUT("/v1/posts/:id", h.Posts.Update, a...)
	api.DELETE("/v1/posts/:id", h.Posts.Delete, a...)

	// ---- Users and customers ----
	api.GET("/v1/users", h.Users.List, a...)
	api.GET("/v1/users/:id", h.Users.Get, a...)
	api.PUT("/v1/users/:id", h.Users.Update, a...)
	api.DELETE("/v1/users/:id", h.Users.Delete, a...)

	e.GET("/customers", h.Users.ListCustomers, a...)
	e.GET("/customers/:id", h.Users.GetCustomer, a...)
	e.PUT("/customers/:id", h.Users.Update, a...)

	// ---- Orders ----
	e.GET("/orders", h.Orders.List, a...)
	e.PATCH("/orders/:id/status", h.Orders.UpdateStatus, a...)

	// ---- Reports ----
	e.GET("/reports/summary", h.Reports.Summary, a...)
	e.GET("/reports/revenue/daily", h.Reports.Daily, a...)
	e.GET("/reports/revenue/movies", h.Reports.Movies, a...)
	e.GET("/reports/revenue/cinemas", h.Reports.Cinemas, a...)
}
