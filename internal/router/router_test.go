package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-ticket-booking/internal/handler"
)

func TestRegisterMountsRoutes(t *testing.T) {
	e := echo.New()
	Register(e, Handlers{
		Health:    func(c echo.Context) error { return c.NoContent(http.StatusOK) },
		Auth:      &handler.AuthHandler{},
		Users:     &handler.UserHandler{},
		Posts:     &handler.PostHandler{},
		Movies:    &handler.MovieHandler{},
		Cinemas:   &handler.CinemaHandler{},
		Showtimes: &handler.ShowtimeHandler{},
		Food:      &handler.FoodHandler{},
		Vouchers:  &handler.VoucherHandler{},
		Orders:    &handler.OrderHandler{},
		Reports:   &handler.ReportHandler{},
	}, Options{JWTSecret: "secret", Log: zap.NewNop()})

	mounted := map[string]bool{}
	for _, r := range e.Routes() {
		mounted[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /healthz",
		"POST /auth/login",
		"POST /auth/reset-password",
		"GET /api/movies/:id/showtimes",
		"GET /api/showtimes/:id/seats",
		"POST /api/rooms/:id/seats/generate",
		"GET /food-and-drinks",
		"POST /api/vouchers/validate",
		"POST /orders/quote",
		"POST /orders/:id/pay",
		"PATCH /orders/:id/status",
		"GET /customers/:id",
		"GET /api/v1/users/me/membership",
		"GET /reports/revenue/daily",
	} {
		assert.True(t, mounted[want], want)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	e := echo.New()
	Register(e, Handlers{
		Health:  func(c echo.Context) error { return c.NoContent(http.StatusOK) },
		Orders:  &handler.OrderHandler{},
		Reports: &handler.ReportHandler{},
	}, Options{JWTSecret: "secret", Log: zap.NewNop()})

	for _, target := range []string{"/reports/summary", "/customers"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}
}
