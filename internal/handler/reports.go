package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/cinema-ticket-booking/internal/model"
	"github.com/iliyamo/cinema-ticket-booking/internal/repository"
)

// defaultReportDays is the window used by the daily revenue report when no
// range is supplied.
const defaultReportDays = 30

// ReportHandler serves the admin dashboard.  The summary runs several
// aggregate queries, so concurrent requests share one execution.
type ReportHandler struct {
	Reports *repository.ReportRepo
	Now     func() time.Time

	group singleflight.Group
}

func NewReportHandler(r *repository.ReportRepo) *ReportHandler {
	return &ReportHandler{Reports: r, Now: time.Now}
}

// Summary handles GET /reports/summary.
func (h *ReportHandler) Summary(c echo.Context) error {
	// The shared call outlives any one caller, so it gets its own deadline.
	ch := h.group.DoChan("summary", func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()
		return h.Reports.Summary(ctx)
	})
	select {
	case <-c.Request().Context().Done():
		return dbError(c, c.Request().Context().Err())
	case res := <-ch:
		if res.Err != nil {
			return dbError(c, res.Err)
		}
		return c.JSON(http.StatusOK, res.Val.(model.ReportSummary))
	}
}

// Daily handles GET /reports/revenue/daily?from=&to=.  Both bounds are
// inclusive calendar days; the default is the last 30 days.
func (h *ReportHandler) Daily(c echo.Context) error {
	today := h.Now().UTC().Truncate(24 * time.Hour)
	from, to := today.AddDate(0, 0, -(defaultReportDays-1)), today
	if s := c.QueryParam("from"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			return badRequest(c, "from must be YYYY-MM-DD")
		}
		from = t
	}
	if s := c.QueryParam("to"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			return badRequest(c, "to must be YYYY-MM-DD")
		}
		to = t
	}
	if to.Before(from) {
		return badRequest(c, "to must not be before from")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	points, err := h.Reports.RevenueByDay(ctx, from, to.AddDate(0, 0, 1))
	if err != nil {
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, points)
}

// Movies handles GET /reports/revenue/movies?limit=.
func (h *ReportHandler) Movies(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	ctx, cancel := dbCtx(c)
	defer cancel()
	rows, err := h.Reports.RevenueByMovie(ctx, limit)
	if err != nil {
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, rows)
}

// Cinemas handles GET /reports/revenue/cinemas.
func (h *ReportHandler) Cinemas(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()
	rows, err := h.Reports.RevenueByCinema(ctx)
	if err != nil {
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, rows)
}
