package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-ticket-booking/internal/booking"
	"github.com/iliyamo/cinema-ticket-booking/internal/model"
	"github.com/iliyamo/cinema-ticket-booking/internal/repository"
)

// UserHandler serves account self-service plus the admin user and customer
// screens.
type UserHandler struct {
	Users      *repository.UserRepo
	Orders     *repository.OrderRepo
	Thresholds booking.Thresholds
}

func NewUserHandler(u *repository.UserRepo, o *repository.OrderRepo, th booking.Thresholds) *UserHandler {
	return &UserHandler{Users: u, Orders: o, Thresholds: th}
}

type profileReq struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type adminUserReq struct {
	profileReq
	Role            string `json:"role"`
	IsActive        *bool  `json:"is_active"`
	MembershipLevel string `json:"membership_level"`
}

var validTiers = map[string]bool{model.TierStandard: true, model.TierVIP: true, model.TierPremium: true}

// applyProfile merges non-empty fields of req into u.
func applyProfile(u *model.User, req profileReq) error {
	if n := strings.TrimSpace(req.Name); n != "" {
		u.Name = n
	}
	if e := repository.NormalizeEmail(req.Email); e != "" {
		if !booking.ValidEmail(e) {
			return errors.New("invalid email")
		}
		u.Email = e
	}
	if p := strings.TrimSpace(req.Phone); p != "" {
		u.Phone = p
	}
	return nil
}

func (h *UserHandler) load(c echo.Context, id uint64) (*model.User, error) {
	ctx, cancel := dbCtx(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fail(c, http.StatusNotFound, "user not found", nil)
		}
		return nil, dbError(c, err)
	}
	return u, nil
}

// GetMe handles GET /api/v1/users/me.
func (h *UserHandler) GetMe(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	u, err := h.load(c, uid)
	if u == nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

// UpdateMe handles PUT /api/v1/users/me.  Only name, email and phone are
// editable by the account owner.
func (h *UserHandler) UpdateMe(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	var req profileReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	u, err := h.load(c, uid)
	if u == nil {
		return err
	}
	if err := applyProfile(u, req); err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Users.UpdateProfile(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return fail(c, http.StatusConflict, "email already exists", nil)
		}
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// Membership handles GET /api/v1/users/me/membership: the current tier and
// the progress towards the next one.
func (h *UserHandler) Membership(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	u, err := h.load(c, uid)
	if u == nil {
		return err
	}
	return c.JSON(http.StatusOK, h.Thresholds.Progress(u.TotalSpentCents))
}

// List handles GET /api/v1/users (admin).  ?role= and ?q= filter.
func (h *UserHandler) List(c echo.Context) error {
	return h.list(c, strings.ToUpper(strings.TrimSpace(c.QueryParam("role"))))
}

// ListCustomers handles GET /customers (admin).
func (h *UserHandler) ListCustomers(c echo.Context) error {
	return h.list(c, model.RoleCustomer)
}

func (h *UserHandler) list(c echo.Context, role string) error {
	p := pageFrom(c)
	ctx, cancel := dbCtx(c)
	defer cancel()
	users, total, err := h.Users.List(ctx, repository.UserFilter{Role: role, Search: c.QueryParam("q"), Page: p})
	if err != nil {
		return dbError(c, err)
	}
	return paged(c, users, total, p)
}

// Get handles GET /api/v1/users/:id (admin).
func (h *UserHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid user id")
	}
	u, err := h.load(c, id)
	if u == nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

// GetCustomer handles GET /customers/:id: the account plus its order history.
func (h *UserHandler) GetCustomer(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid customer id")
	}
	u, err := h.load(c, id)
	if u == nil {
		return err
	}
	if u.Role != model.RoleCustomer {
		return fail(c, http.StatusNotFound, "customer not found", nil)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	orders, err := h.Orders.ListByCustomer(ctx, id)
	if err != nil {
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"customer":   u,
		"membership": h.Thresholds.Progress(u.TotalSpentCents),
		"orders":     orders,
	})
}

// Update handles PUT /api/v1/users/:id and PUT /customers/:id (admin).
// Admins cannot demote or deactivate themselves.
func (h *UserHandler) Update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid user id")
	}
	var req adminUserReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	u, err := h.load(c, id)
	if u == nil {
		return err
	}
	if err := applyProfile(u, req.profileReq); err != nil {
		return badRequest(c, err.Error())
	}
	if r := strings.ToUpper(strings.TrimSpace(req.Role)); r != "" {
		if r != model.RoleAdmin && r != model.RoleCustomer {
			return badRequest(c, "invalid role")
		}
		u.Role = r
	}
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}
	if t := strings.ToUpper(strings.TrimSpace(req.MembershipLevel)); t != "" {
		if !validTiers[t] {
			return badRequest(c, "invalid membership_level")
		}
		u.MembershipLevel = t
	}
	if self, _ := currentUser(c); self == id && (u.Role != model.RoleAdmin || !u.IsActive) {
		return fail(c, http.StatusForbidden, "cannot demote or deactivate yourself", nil)
	}

	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Users.UpdateAdmin(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return fail(c, http.StatusConflict, "email already exists", nil)
		}
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// Delete handles DELETE /api/v1/users/:id (admin).  Users with orders are
// kept; deactivate them instead.
func (h *UserHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid user id")
	}
	if self, _ := currentUser(c); self == id {
		return fail(c, http.StatusForbidden, "cannot delete yourself", nil)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Users.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrUserNotFound):
			return fail(c, http.StatusNotFound, "user not found", nil)
		case errors.Is(err, repository.ErrConflict):
			return fail(c, http.StatusConflict, "user has orders or posts; deactivate instead", nil)
		}
		return dbError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
