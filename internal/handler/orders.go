package handler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-ticket-booking/internal/booking"
	"github.com/iliyamo/cinema-ticket-booking/internal/model"
	"github.com/iliyamo/cinema-ticket-booking/internal/queue"
	"github.com/iliyamo/cinema-ticket-booking/internal/repository"
)

const (
	maxSeatsPerOrder = 10
	publishTimeout   = 5 * time.Second
)

// OrderHandler implements checkout: quoting a basket, placing an order,
// paying and cancelling it.  Every money figure is computed here from the
// database; the client only sends ids and quantities.
type OrderHandler struct {
	DB         *sql.DB
	Orders     *repository.OrderRepo
	Showtimes  *repository.ShowtimeRepo
	Seats      *repository.SeatRepo
	Food       *repository.FoodRepo
	Vouchers   *repository.VoucherRepo
	Users      *repository.UserRepo
	Events     EventPublisher
	Thresholds booking.Thresholds
	// HoldTTL is how long a PENDING order keeps its seats.  Zero never expires.
	HoldTTL time.Duration
	Log     *zap.Logger
	Now     func() time.Time
}

func NewOrderHandler(db *sql.DB, o *repository.OrderRepo, s *repository.ShowtimeRepo, seats *repository.SeatRepo,
	f *repository.FoodRepo, v *repository.VoucherRepo, u *repository.UserRepo, ev EventPublisher,
	th booking.Thresholds, log *zap.Logger) *OrderHandler {
	return &OrderHandler{DB: db, Orders: o, Showtimes: s, Seats: seats, Food: f, Vouchers: v, Users: u,
		Events: ev, Thresholds: th, Log: log, Now: time.Now}
}

// ----- DTOs -----

type foodLineReq struct {
	FoodItemID uint64 `json:"food_item_id"`
	Quantity   uint32 `json:"quantity"`
}

type basketReq struct {
	ShowtimeID    uint64        `json:"showtime_id"`
	SeatIDs       []uint64      `json:"seat_ids"`
	Items         []foodLineReq `json:"items"`
	VoucherCode   string        `json:"voucher_code"`
	PaymentMethod string        `json:"payment_method"`
}

type statusReq struct {
	Status string `json:"status"`
}

// orderError carries an HTTP status for a rejected basket.  SeatIDs is set
// when seats were already sold.
type orderError struct {
	status  int
	msg     string
	seatIDs []uint64
}

func (e *orderError) Error() string { return e.msg }

func rejected(status int, format string, args ...any) error {
	return &orderError{status: status, msg: fmt.Sprintf(format, args...)}
}

func (h *OrderHandler) writeErr(c echo.Context, err error) error {
	var oe *orderError
	if errors.As(err, &oe) {
		if len(oe.seatIDs) > 0 {
			return c.JSON(oe.status, echo.Map{"error": oe.msg, "seat_ids": oe.seatIDs})
		}
		return fail(c, oe.status, oe.msg, nil)
	}
	var taken *repository.SeatTakenError
	if errors.As(err, &taken) {
		return c.JSON(http.StatusConflict, echo.Map{"error": repository.ErrSeatTaken.Error(), "seat_ids": taken.SeatIDs})
	}
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		return fail(c, http.StatusNotFound, "order not found", nil)
	case errors.Is(err, repository.ErrShowtimeNotFound):
		return fail(c, http.StatusNotFound, "showtime not found", nil)
	case errors.Is(err, repository.ErrVoucherUnavailable):
		return fail(c, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, repository.ErrInvalidTransition):
		return fail(c, http.StatusConflict, err.Error(), nil)
	}
	return dbError(c, err)
}

// priced is a basket resolved against the database inside a transaction.
type priced struct {
	showtime *model.Showtime
	voucher  *model.Voucher
	quote    booking.Quote
}

// price locks the showtime, seats and voucher referenced by req and prices
// them.  It is shared by Quote and Create so both see identical totals.
func (h *OrderHandler) price(ctx context.Context, tx *sql.Tx, req basketReq, now time.Time) (*priced, error) {
	seatIDs := dedupeIDs(req.SeatIDs)
	if req.ShowtimeID == 0 {
		return nil, rejected(http.StatusBadRequest, "showtime_id is required")
	}
	if len(seatIDs) == 0 {
		return nil, rejected(http.StatusBadRequest, "select at least one seat")
	}
	if len(seatIDs) > maxSeatsPerOrder {
		return nil, rejected(http.StatusBadRequest, "at most %d seats per order", maxSeatsPerOrder)
	}

	st, err := h.Showtimes.GetForUpdateTx(ctx, tx, req.ShowtimeID)
	if err != nil {
		return nil, err
	}
	if st.Status != model.ShowtimeScheduled {
		return nil, rejected(http.StatusBadRequest, "showtime is not open for booking")
	}
	if !now.Before(st.StartsAt) {
		return nil, rejected(http.StatusBadRequest, "showtime has already started")
	}

	seats, err := h.Seats.ListByIDsTx(ctx, tx, st.RoomID, seatIDs)
	if err != nil {
		return nil, err
	}
	if len(seats) != len(seatIDs) {
		return nil, rejected(http.StatusBadRequest, "seats must belong to the showtime's room")
	}
	for _, s := range seats {
		if !s.IsActive {
			return nil, rejected(http.StatusBadRequest, "seat %s%d is not available", s.RowLabel, s.SeatNumber)
		}
	}
	if _, err := h.expireStaleTx(ctx, tx, st.ID, now); err != nil {
		return nil, err
	}
	taken, err := h.Orders.TakenSeatsTx(ctx, tx, st.ID, seatIDs)
	if err != nil {
		return nil, err
	}
	if len(taken) > 0 {
		return nil, &orderError{status: http.StatusConflict, msg: repository.ErrSeatTaken.Error(), seatIDs: taken}
	}

	qty := make(map[uint64]uint32)
	var foodIDs []uint64
	for _, it := range req.Items {
		if it.FoodItemID == 0 || it.Quantity == 0 {
			return nil, rejected(http.StatusBadRequest, "food items need an id and a positive quantity")
		}
		if _, ok := qty[it.FoodItemID]; !ok {
			foodIDs = append(foodIDs, it.FoodItemID)
		}
		qty[it.FoodItemID] += it.Quantity
	}
	var lines []booking.FoodLine
	if len(foodIDs) > 0 {
		items, err := h.Food.GetManyTx(ctx, tx, foodIDs)
		if err != nil {
			return nil, err
		}
		for _, id := range foodIDs {
			item, ok := items[id]
			if !ok {
				return nil, rejected(http.StatusBadRequest, "food item %d is not available", id)
			}
			lines = append(lines, booking.FoodLine{Item: item, Quantity: qty[id]})
		}
	}

	var v *model.Voucher
	if code := repository.NormalizeCode(req.VoucherCode); code != "" {
		v, err = h.Vouchers.GetByCodeTx(ctx, tx, code)
		if err != nil {
			if errors.Is(err, repository.ErrVoucherNotFound) {
				return nil, rejected(http.StatusBadRequest, "voucher not found")
			}
			return nil, err
		}
	}

	q, err := booking.Price(*st, seats, lines, v, now)
	if err != nil {
		return nil, rejected(http.StatusBadRequest, "%s", err.Error())
	}
	return &priced{showtime: st, voucher: v, quote: q}, nil
}

// ----- customer endpoints -----

// Quote handles POST /orders/quote.  The only writes are expired holds on
// the showtime being released.
func (h *OrderHandler) Quote(c echo.Context) error {
	var req basketReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return dbError(c, err)
	}
	defer func() { _ = tx.Rollback() }()

	p, err := h.price(ctx, tx, req, h.Now())
	if err != nil {
		return h.writeErr(c, err)
	}
	if err := tx.Commit(); err != nil {
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, p.quote)
}

// Create handles POST /orders.  The order starts PENDING; seats are held by
// the unique (held_showtime_id, seat_id) index until paid, cancelled or
// expired, and the voucher use is taken immediately.
func (h *OrderHandler) Create(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	var req basketReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	method := strings.ToUpper(strings.TrimSpace(req.PaymentMethod))
	if !model.PaymentMethods[method] {
		return badRequest(c, "unsupported payment_method")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return dbError(c, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	p, err := h.price(ctx, tx, req, h.Now())
	if err != nil {
		return h.writeErr(c, err)
	}
	o := &model.Order{
		Code:              uuid.NewString(),
		CustomerID:        uid,
		ShowtimeID:        p.showtime.ID,
		PaymentMethod:     method,
		SeatSubtotalCents: p.quote.SeatSubtotalCents,
		FoodSubtotalCents: p.quote.FoodSubtotalCents,
		DiscountCents:     p.quote.DiscountCents,
		TotalPriceCents:   p.quote.TotalCents,
		Status:            model.OrderPending,
		Seats:             p.quote.Seats,
		Items:             p.quote.Items,
	}
	if p.voucher != nil {
		if err := h.Vouchers.RedeemTx(ctx, tx, p.voucher.ID); err != nil {
			return h.writeErr(c, err)
		}
		vid := p.voucher.ID
		o.VoucherID = &vid
	}
	if err := h.Orders.CreateTx(ctx, tx, o); err != nil {
		return h.writeErr(c, err)
	}
	if err := tx.Commit(); err != nil {
		return dbError(c, err)
	}
	committed = true
	return c.JSON(http.StatusCreated, o)
}

// Mine handles GET /orders/mine.
func (h *OrderHandler) Mine(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	list, err := h.Orders.ListByCustomer(ctx, uid)
	if err != nil {
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Get handles GET /orders/:id.  Customers only see their own orders;
// someone else's order is reported as not found.
func (h *OrderHandler) Get(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	o, err := h.Orders.GetByID(ctx, id)
	if err != nil {
		return h.writeErr(c, err)
	}
	if !isAdmin(c) && o.CustomerID != uid {
		return fail(c, http.StatusNotFound, "order not found", nil)
	}
	return c.JSON(http.StatusOK, o)
}

// Pay handles POST /orders/:id/pay.
func (h *OrderHandler) Pay(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	return h.confirm(c, id)
}

// Cancel handles POST /orders/:id/cancel.
func (h *OrderHandler) Cancel(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	return h.cancel(c, id)
}

// ----- admin endpoints -----

// List handles GET /orders?status=&customer_id=&page=.
func (h *OrderHandler) List(c echo.Context) error {
	p := pageFrom(c)
	ctx, cancel := dbCtx(c)
	defer cancel()
	list, total, err := h.Orders.ListAll(ctx, repository.OrderFilter{
		Status:     strings.ToUpper(strings.TrimSpace(c.QueryParam("status"))),
		CustomerID: queryID(c, "customer_id"),
		Page:       p,
	})
	if err != nil {
		return dbError(c, err)
	}
	return paged(c, list, total, p)
}

// UpdateStatus handles PATCH /orders/:id/status.  Only the transitions a
// customer can trigger are allowed: confirm a pending order or cancel one.
func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	switch strings.ToUpper(strings.TrimSpace(req.Status)) {
	case model.OrderConfirmed:
		return h.confirm(c, id)
	case model.OrderCancelled:
		return h.cancel(c, id)
	}
	return badRequest(c, "status must be CONFIRMED or CANCELLED")
}

// ----- transitions -----

// loadOwned locks the order and hides it from customers who do not own it.
func (h *OrderHandler) loadOwned(ctx context.Context, c echo.Context, tx *sql.Tx, id uint64) (*model.Order, error) {
	o, err := h.Orders.GetForUpdateTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin(c) {
		uid, _ := currentUser(c)
		if o.CustomerID != uid {
			return nil, repository.ErrOrderNotFound
		}
	}
	return o, nil
}

// confirm marks a PENDING order paid and credits the customer's spend in the
// same transaction.  The confirmation event is sent after commit.
func (h *OrderHandler) confirm(c echo.Context, id uint64) error {
	ctx, cancel := dbCtx(c)
	defer cancel()
	now := h.Now()

	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return dbError(c, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	o, err := h.loadOwned(ctx, c, tx, id)
	if err != nil {
		return h.writeErr(c, err)
	}
	if o.Status != model.OrderPending {
		return fail(c, http.StatusConflict, "order is not pending", nil)
	}
	st, err := h.Showtimes.GetForUpdateTx(ctx, tx, o.ShowtimeID)
	if err != nil {
		return h.writeErr(c, err)
	}
	if st.Status != model.ShowtimeScheduled {
		return fail(c, http.StatusConflict, "showtime is not open for booking", nil)
	}
	if !now.Before(st.StartsAt) {
		return badRequest(c, "showtime has already started")
	}
	if h.holdExpired(o, now) {
		if err := h.releaseTx(ctx, tx, o, now); err != nil {
			return h.writeErr(c, err)
		}
		if err := tx.Commit(); err != nil {
			return dbError(c, err)
		}
		committed = true
		return fail(c, http.StatusConflict, "order hold has expired", nil)
	}
	if err := h.Orders.UpdateStatusTx(ctx, tx, o.ID, model.OrderPending, model.OrderConfirmed, now); err != nil {
		return h.writeErr(c, err)
	}
	tier, err := h.Users.AddSpendTx(ctx, tx, o.CustomerID, o.TotalPriceCents, 1, h.Thresholds)
	if err != nil {
		return dbError(c, err)
	}
	if err := tx.Commit(); err != nil {
		return dbError(c, err)
	}
	committed = true

	paid, err := h.Orders.GetByID(ctx, o.ID)
	if err != nil {
		return dbError(c, err)
	}
	h.publishConfirmed(c, paid, tier, now)
	return c.JSON(http.StatusOK, echo.Map{"order": paid, "membership_level": tier})
}

// cancel frees the seats of an order, gives back the voucher use and, for a
// paid order, reverses the customer's spend.  Customers may only cancel
// before the showtime starts.
func (h *OrderHandler) cancel(c echo.Context, id uint64) error {
	ctx, cancel := dbCtx(c)
	defer cancel()
	now := h.Now()

	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return dbError(c, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	o, err := h.loadOwned(ctx, c, tx, id)
	if err != nil {
		return h.writeErr(c, err)
	}
	if o.Status == model.OrderCancelled {
		return fail(c, http.StatusConflict, "order is already cancelled", nil)
	}
	if !isAdmin(c) {
		st, err := h.Showtimes.GetForUpdateTx(ctx, tx, o.ShowtimeID)
		if err != nil {
			return h.writeErr(c, err)
		}
		if !now.Before(st.StartsAt) {
			return badRequest(c, "showtime has already started")
		}
	}
	if err := h.releaseTx(ctx, tx, o, now); err != nil {
		return h.writeErr(c, err)
	}
	if err := tx.Commit(); err != nil {
		return dbError(c, err)
	}
	committed = true

	out, err := h.Orders.GetByID(ctx, o.ID)
	if err != nil {
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// releaseTx cancels o inside tx.  Its seats go back on sale while the rows
// stay as history, the voucher use is returned and a paid order's spend is
// reversed.
func (h *OrderHandler) releaseTx(ctx context.Context, tx *sql.Tx, o *model.Order, now time.Time) error {
	if err := h.Orders.UpdateStatusTx(ctx, tx, o.ID, o.Status, model.OrderCancelled, now); err != nil {
		return err
	}
	if err := h.Orders.ReleaseSeatsTx(ctx, tx, o.ID, now); err != nil {
		return err
	}
	if o.VoucherID != nil {
		if err := h.Vouchers.ReleaseTx(ctx, tx, *o.VoucherID); err != nil {
			return err
		}
	}
	if o.Status == model.OrderConfirmed {
		if _, err := h.Users.AddSpendTx(ctx, tx, o.CustomerID, -o.TotalPriceCents, -1, h.Thresholds); err != nil {
			return err
		}
	}
	return nil
}

func (h *OrderHandler) holdExpired(o *model.Order, now time.Time) bool {
	return h.HoldTTL > 0 && o.Status == model.OrderPending && !o.CreatedAt.After(now.Add(-h.HoldTTL))
}

// expireStaleTx cancels PENDING orders older than HoldTTL.  showtimeID
// limits the sweep to one showtime; zero sweeps them all.
func (h *OrderHandler) expireStaleTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, now time.Time) (int, error) {
	if h.HoldTTL <= 0 {
		return 0, nil
	}
	stale, err := h.Orders.StalePendingTx(ctx, tx, showtimeID, now.Add(-h.HoldTTL))
	if err != nil {
		return 0, err
	}
	for _, o := range stale {
		if err := h.releaseTx(ctx, tx, o, now); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

// ExpireStale runs one expiry sweep over every showtime and reports how many
// orders were cancelled.
func (h *OrderHandler) ExpireStale(ctx context.Context) (int, error) {
	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	n, err := h.expireStaleTx(ctx, tx, 0, h.Now())
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return n, tx.Commit()
}

// CancelShowtimeOrders cancels every live order of a cancelled showtime in
// batches.  Running it again finds nothing left to do.
func (h *OrderHandler) CancelShowtimeOrders(ctx context.Context, showtimeID uint64) (int, error) {
	total := 0
	for {
		n, err := h.cancelShowtimeBatch(ctx, showtimeID)
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	if total > 0 {
		h.Log.Info("showtime orders cancelled", zap.Uint64("showtime_id", showtimeID), zap.Int("orders", total))
	}
	return total, nil
}

func (h *OrderHandler) cancelShowtimeBatch(ctx context.Context, showtimeID uint64) (int, error) {
	now := h.Now()
	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	live, err := h.Orders.LiveByShowtimeTx(ctx, tx, showtimeID)
	if err != nil || len(live) == 0 {
		return 0, err
	}
	for _, o := range live {
		if err := h.releaseTx(ctx, tx, o, now); err != nil {
			return 0, err
		}
	}
	return len(live), tx.Commit()
}

// publishConfirmed sends the order.confirmed event.  The order is already
// committed, so failures are logged and not returned.
func (h *OrderHandler) publishConfirmed(c echo.Context, o *model.Order, tier string, now time.Time) {
	if h.Events == nil {
		return
	}
	ev := queue.OrderConfirmedEvent{
		OrderID:         o.ID,
		OrderCode:       o.Code,
		CustomerID:      o.CustomerID,
		ShowtimeID:      o.ShowtimeID,
		TotalPriceCents: o.TotalPriceCents,
		PaymentMethod:   o.PaymentMethod,
		MembershipLevel: tier,
		ConfirmedAt:     now.UTC().Format(time.RFC3339),
	}
	for _, s := range o.Seats {
		ev.Seats = append(ev.Seats, fmt.Sprintf("%s%d", s.RowLabel, s.SeatNumber))
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if d, err := h.Showtimes.GetDetail(ctx, o.ShowtimeID); err == nil {
		ev.MovieTitle, ev.CinemaName, ev.RoomNumber = d.MovieTitle, d.CinemaName, d.RoomNumber
		ev.StartsAt = d.StartsAt.UTC().Format(time.RFC3339)
	}
	if u, err := h.Users.GetByID(ctx, o.CustomerID); err == nil {
		ev.CustomerEmail = u.Email
	}
	if err := h.Events.PublishOrderConfirmed(ctx, ev); err != nil {
		h.Log.Warn("publish order confirmed",
			zap.Uint64("order_id", o.ID),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.Error(err))
	}
}
