package handler // handler defines the HTTP handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-ticket-booking/internal/middleware"
	"github.com/iliyamo/cinema-ticket-booking/internal/model"
	"github.com/iliyamo/cinema-ticket-booking/internal/repository"
)

// dbTimeout bounds every request's database work.
const dbTimeout = 5 * time.Second

func dbCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// fail writes {"error": msg}.  A non-nil cause is kept on the context for
// the request logger and never sent to the client.
func fail(c echo.Context, status int, msg string, cause error) error {
	if cause != nil {
		c.Set(middleware.CtxError, cause)
	}
	return c.JSON(status, echo.Map{"error": msg})
}

func badRequest(c echo.Context, msg string) error {
	return fail(c, http.StatusBadRequest, msg, nil)
}

func dbError(c echo.Context, err error) error {
	return fail(c, http.StatusInternalServerError, "database error", err)
}

// pathID parses a positive integer path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// queryID parses an optional positive integer query parameter; absent or
// malformed values yield 0.
func queryID(c echo.Context, name string) uint64 {
	id, _ := strconv.ParseUint(strings.TrimSpace(c.QueryParam(name)), 10, 64)
	return id
}

func pageFrom(c echo.Context) repository.Page {
	p, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("page_size"))
	return repository.Page{Page: p, PageSize: size}.Normalize()
}

// paged is the envelope for list endpoints with pagination.
func paged(c echo.Context, items any, total int, p repository.Page) error {
	return c.JSON(http.StatusOK, echo.Map{
		"items":     items,
		"total":     total,
		"page":      p.Page,
		"page_size": p.PageSize,
	})
}

func currentUser(c echo.Context) (uint64, bool) {
	return middleware.UserID(c)
}

func unauthorized(c echo.Context) error {
	return fail(c, http.StatusUnauthorized, "unauthorized", nil)
}

func isAdmin(c echo.Context) bool {
	return middleware.Role(c) == model.RoleAdmin
}

// dedupeIDs drops zeros and repeats while keeping order.
func dedupeIDs(ids []uint64) []uint64 {
	out := make([]uint64, 0, len(ids))
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// parseDate accepts YYYY-MM-DD or RFC3339.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
