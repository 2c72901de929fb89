package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-ticket-booking/internal/booking"
	"github.com/iliyamo/cinema-ticket-booking/internal/model"
	"github.com/iliyamo/cinema-ticket-booking/internal/repository"
)

// VoucherHandler validates voucher codes for customers and manages them for
// admins.
type VoucherHandler struct {
	Vouchers *repository.VoucherRepo
	Now      func() time.Time
}

func NewVoucherHandler(v *repository.VoucherRepo) *VoucherHandler {
	return &VoucherHandler{Vouchers: v, Now: time.Now}
}

type validateVoucherReq struct {
	Code          string `json:"code"`
	SubtotalCents int64  `json:"subtotal_cents"`
}

type validateVoucherResp struct {
	Code          string `json:"code"`
	Valid         bool   `json:"valid"`
	Reason        string `json:"reason,omitempty"`
	DiscountCents int64  `json:"discount_cents"`
	TotalCents    int64  `json:"total_cents"`
}

type voucherReq struct {
	Code             string     `json:"code"`
	DiscountType     string     `json:"discount_type"`
	DiscountAmount   *int64     `json:"discount_amount"`
	MaxDiscountCents *int64     `json:"max_discount_cents"`
	MinOrderCents    *int64     `json:"min_order_cents"`
	MaxUsage         *uint32    `json:"max_usage"`
	IsActive         *bool      `json:"is_active"`
	ExpiresAt        *time.Time `json:"expires_at"`
}

// apply copies the set fields of req onto v and validates the result.
func (req voucherReq) apply(v *model.Voucher) error {
	if code := repository.NormalizeCode(req.Code); code != "" {
		v.Code = code
	}
	if t := strings.ToUpper(strings.TrimSpace(req.DiscountType)); t != "" {
		v.DiscountType = t
	}
	if req.DiscountAmount != nil {
		v.DiscountAmount = *req.DiscountAmount
	}
	if req.MaxDiscountCents != nil {
		v.MaxDiscountCents = *req.MaxDiscountCents
	}
	if req.MinOrderCents != nil {
		v.MinOrderCents = *req.MinOrderCents
	}
	if req.MaxUsage != nil {
		v.MaxUsage = *req.MaxUsage
	}
	if req.IsActive != nil {
		v.IsActive = *req.IsActive
	}
	if req.ExpiresAt != nil {
		t := req.ExpiresAt.UTC()
		v.ExpiresAt = &t
	}

	switch {
	case v.Code == "":
		return errors.New("code is required")
	case v.DiscountType != model.DiscountPercent && v.DiscountType != model.DiscountFixed:
		return errors.New("discount_type must be PERCENT or FIXED")
	case v.DiscountAmount <= 0:
		return errors.New("discount_amount must be positive")
	case v.DiscountType == model.DiscountPercent && v.DiscountAmount > 100:
		return errors.New("percent discount cannot exceed 100")
	case v.MaxDiscountCents < 0 || v.MinOrderCents < 0:
		return errors.New("amounts must not be negative")
	case v.MaxUsage == 0:
		return errors.New("max_usage must be positive")
	}
	return nil
}

func voucherError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrVoucherNotFound):
		return fail(c, http.StatusNotFound, "voucher not found", nil)
	case errors.Is(err, repository.ErrVoucherCodeTaken):
		return fail(c, http.StatusConflict, err.Error(), nil)
	}
	return dbError(c, err)
}

// Validate handles POST /api/vouchers/validate.  An unknown or ineligible
// code is reported with valid=false rather than an error status, so the
// checkout page can show the reason inline.
func (h *VoucherHandler) Validate(c echo.Context) error {
	var req validateVoucherReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	code := repository.NormalizeCode(req.Code)
	if code == "" {
		return badRequest(c, "code is required")
	}
	if req.SubtotalCents < 0 {
		return badRequest(c, "subtotal_cents must not be negative")
	}
	resp := validateVoucherResp{Code: code, TotalCents: req.SubtotalCents}

	ctx, cancel := dbCtx(c)
	defer cancel()
	v, err := h.Vouchers.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrVoucherNotFound) {
			resp.Reason = "voucher not found"
			return c.JSON(http.StatusOK, resp)
		}
		return dbError(c, err)
	}
	if err := booking.VoucherEligible(*v, req.SubtotalCents, h.Now()); err != nil {
		resp.Reason = err.Error()
		return c.JSON(http.StatusOK, resp)
	}
	resp.Valid = true
	resp.DiscountCents = booking.Discount(*v, req.SubtotalCents)
	resp.TotalCents = req.SubtotalCents - resp.DiscountCents
	return c.JSON(http.StatusOK, resp)
}

func (h *VoucherHandler) List(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()
	list, err := h.Vouchers.List(ctx)
	if err != nil {
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *VoucherHandler) Create(c echo.Context) error {
	var req voucherReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	v := &model.Voucher{IsActive: true}
	if err := req.apply(v); err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Vouchers.Create(ctx, v); err != nil {
		return voucherError(c, err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *VoucherHandler) Update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid voucher id")
	}
	var req voucherReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	v, err := h.Vouchers.GetByID(ctx, id)
	if err != nil {
		return voucherError(c, err)
	}
	if err := req.apply(v); err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.Vouchers.Update(ctx, v); err != nil {
		return voucherError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *VoucherHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid voucher id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Vouchers.Delete(ctx, id); err != nil {
		return voucherError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
