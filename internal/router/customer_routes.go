package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-ticket-booking/internal/middleware"
	"github.com/iliyamo/cinema-ticket-booking/internal/model"
)

// registerCustomer mounts the signed-in endpoints: own account, voucher
// validation and the order flow.  Admins are accepted everywhere a customer
// is; ownership is checked in the handlers.
func registerCustomer(e *echo.Echo, h Handlers, g guards) {
	member := middleware.RequireRole(model.RoleCustomer, model.RoleAdmin)

	me := e.Group("/api/v1/users/me", g.auth, member)
	me.GET("", h.Users.GetMe)
	me.PUT("", h.Users.UpdateMe)
	me.GET("/membership", h.Users.Membership)

	e.POST("/api/vouchers/validate", h.Vouchers.Validate, g.auth, member)

	o := e.Group("/orders", g.auth, member)
	o.POST("/quote", h.Orders.Quote)
	o.POST("", h.Orders.Create, g.orderLimit)
	o.GET("/mine", h.Orders.Mine)
	o.GET("/:id", h.Orders.Get)
	o.POST("/:id/pay", h.Orders.Pay)
	o.POST("/:id/cancel", h.Orders.Cancel)
}
