package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-ticket-booking/internal/booking"
	"github.com/iliyamo/cinema-ticket-booking/internal/middleware"
	"github.com/iliyamo/cinema-ticket-booking/internal/model"
	"github.com/iliyamo/cinema-ticket-booking/internal/queue"
	"github.com/iliyamo/cinema-ticket-booking/internal/repository"
)

var (
	testNow    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testStarts = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
)

type fakePublisher struct {
	confirmed []queue.OrderConfirmedEvent
	resets    []queue.PasswordResetRequestedEvent
	err       error
}

func (f *fakePublisher) PublishOrderConfirmed(_ context.Context, ev queue.OrderConfirmedEvent) error {
	f.confirmed = append(f.confirmed, ev)
	return f.err
}

func (f *fakePublisher) PublishPasswordReset(_ context.Context, ev queue.PasswordResetRequestedEvent) error {
	f.resets = append(f.resets, ev)
	return f.err
}

// newCtx builds an echo context for a JSON request.  uid 0 means anonymous.
func newCtx(method, target, body string, uid uint64, role string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if uid != 0 {
		c.Set(middleware.CtxUserID, uid)
		c.Set(middleware.CtxRole, role)
	}
	return c, rec
}

func withID(c echo.Context, id string) echo.Context {
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c
}

func newOrderHandler(t *testing.T) (*OrderHandler, sqlmock.Sqlmock, *fakePublisher) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	pub := &fakePublisher{}
	h := NewOrderHandler(db,
		repository.NewOrderRepo(db),
		repository.NewShowtimeRepo(db),
		repository.NewSeatRepo(db),
		repository.NewFoodRepo(db),
		repository.NewVoucherRepo(db),
		repository.NewUserRepo(db),
		pub,
		booking.Thresholds{VIP: 2_000_000, Premium: 5_000_000},
		zap.NewNop())
	h.Now = func() time.Time { return testNow }
	return h, mock, pub
}

func showtimeRow(status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "cinema_id", "room_id", "movie_id", "starts_at", "ends_at", "format",
		"has_subtitle", "is_dubbed", "base_price_cents", "status", "created_at", "updated_at"}).
		AddRow(3, 1, 2, 4, testStarts, testStarts.Add(2*time.Hour), "2D", false, false, 100000, status, testNow, testNow)
}

var seatCols = []string{"seat_id", "row_label", "seat_number", "seat_type", "price_cents", "released"}

func orderRow(customerID uint64, status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "code", "customer_id", "showtime_id", "voucher_id", "payment_method",
		"seat_subtotal_cents", "food_subtotal_cents", "discount_cents", "total_price_cents", "status",
		"paid_at", "created_at", "updated_at"}).
		AddRow(9, "c0de", customerID, 3, nil, "CARD", 100000, 0, 0, 100000, status, nil, testNow, testNow)
}

func TestHealth(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	c, rec := newCtx(http.MethodGet, "/healthz", "", 0, "")
	require.NoError(t, Health(db)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	mock.ExpectPing().WillReturnError(errors.New("down"))
	c, rec = newCtx(http.MethodGet, "/healthz", "", 0, "")
	require.NoError(t, Health(db)(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotNil(t, c.Get(middleware.CtxError))
}

func TestSeatGrid(t *testing.T) {
	seats, err := seatGrid(generateSeatsReq{Rows: 3, Cols: 4, VIPRows: []string{"b"}, CoupleRows: []string{"C"}})
	require.NoError(t, err)
	require.Len(t, seats, 12)
	assert.Equal(t, "A", seats[0].RowLabel)
	assert.Equal(t, uint32(1), seats[0].SeatNumber)
	assert.Equal(t, model.SeatStandard, seats[0].SeatType)
	assert.Equal(t, model.SeatVIP, seats[4].SeatType)
	assert.Equal(t, "C", seats[11].RowLabel)
	assert.Equal(t, uint32(4), seats[11].SeatNumber)
	assert.Equal(t, model.SeatCouple, seats[11].SeatType)

	_, err = seatGrid(generateSeatsReq{Rows: 0, Cols: 4})
	assert.Error(t, err)
	_, err = seatGrid(generateSeatsReq{Rows: 51, Cols: 4})
	assert.Error(t, err)
}

func TestVoucherValidate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	h := NewVoucherHandler(repository.NewVoucherRepo(db))
	h.Now = func() time.Time { return testNow }

	cols := []string{"id", "code", "discount_type", "discount_amount", "max_discount_cents", "min_order_cents",
		"used_count", "max_usage", "is_active", "expires_at", "created_at", "updated_at"}

	mock.ExpectQuery(`FROM vouchers WHERE code = \?`).WithArgs("NOPE").WillReturnRows(sqlmock.NewRows(cols))
	c, rec := newCtx(http.MethodPost, "/api/vouchers/validate", `{"code":" nope ","subtotal_cents":50000}`, 5, model.RoleCustomer)
	require.NoError(t, h.Validate(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"code":"NOPE","valid":false,"reason":"voucher not found","discount_cents":0,"total_cents":50000}`, rec.Body.String())

	mock.ExpectQuery(`FROM vouchers WHERE code = \?`).WithArgs("SALE10").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(1, "SALE10", "PERCENT", 10, 0, 0, 0, 100, true, nil, testNow, testNow))
	c, rec = newCtx(http.MethodPost, "/api/vouchers/validate", `{"code":"sale10","subtotal_cents":200000}`, 5, model.RoleCustomer)
	require.NoError(t, h.Validate(c))
	assert.JSONEq(t, `{"code":"SALE10","valid":true,"discount_cents":20000,"total_cents":180000}`, rec.Body.String())

	expired := testNow.Add(-time.Minute)
	mock.ExpectQuery(`FROM vouchers WHERE code = \?`).WithArgs("OLD").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(2, "OLD", "FIXED", 5000, 0, 0, 0, 100, true, expired, testNow, testNow))
	c, rec = newCtx(http.MethodPost, "/api/vouchers/validate", `{"code":"OLD","subtotal_cents":200000}`, 5, model.RoleCustomer)
	require.NoError(t, h.Validate(c))
	assert.Contains(t, rec.Body.String(), booking.ErrVoucherExpired.Error())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderQuoteReportsTakenSeats(t *testing.T) {
	h, mock, _ := newOrderHandler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM showtimes s WHERE s\.id = \? FOR UPDATE`).WithArgs(3).WillReturnRows(showtimeRow(model.ShowtimeScheduled))
	mock.ExpectQuery(`FROM seats WHERE room_id = \? AND id IN`).WithArgs(2, 1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "room_id", "row_label", "seat_number", "seat_type", "price_cents", "is_active"}).
			AddRow(1, 2, "A", 1, "STANDARD", 0, true).
			AddRow(2, 2, "A", 2, "VIP", 0, true))
	mock.ExpectQuery(`SELECT seat_id FROM order_seats`).WithArgs(3, 1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"seat_id"}).AddRow(2))
	mock.ExpectRollback()

	c, rec := newCtx(http.MethodPost, "/orders/quote", `{"showtime_id":3,"seat_ids":[1,2,2]}`, 5, model.RoleCustomer)
	require.NoError(t, h.Quote(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"seat already booked","seat_ids":[2]}`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderQuoteRejectsStartedShowtime(t *testing.T) {
	h, mock, _ := newOrderHandler(t)
	h.Now = func() time.Time { return testStarts }

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM showtimes s WHERE s\.id = \? FOR UPDATE`).WithArgs(3).WillReturnRows(showtimeRow(model.ShowtimeScheduled))
	mock.ExpectRollback()

	c, rec := newCtx(http.MethodPost, "/orders/quote", `{"showtime_id":3,"seat_ids":[1]}`, 5, model.RoleCustomer)
	require.NoError(t, h.Quote(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"showtime has already started"}`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderCreateValidatesPaymentMethod(t *testing.T) {
	h, mock, _ := newOrderHandler(t)

	c, rec := newCtx(http.MethodPost, "/orders", `{"showtime_id":3,"seat_ids":[1],"payment_method":"BITCOIN"}`, 5, model.RoleCustomer)
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())

	c, rec = newCtx(http.MethodPost, "/orders", `{}`, 0, "")
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOrderGetHidesOtherCustomersOrders(t *testing.T) {
	h, mock, _ := newOrderHandler(t)

	mock.ExpectQuery(`FROM orders o WHERE o\.id = \?`).WithArgs(9).WillReturnRows(orderRow(8, model.OrderPending))
	mock.ExpectQuery(`FROM order_seats os JOIN seats se`).WithArgs(9).
		WillReturnRows(sqlmock.NewRows(seatCols))
	mock.ExpectQuery(`FROM order_items oi`).WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"food_item_id", "name", "quantity", "price_cents"}))

	c, rec := newCtx(http.MethodGet, "/orders/9", "", 5, model.RoleCustomer)
	require.NoError(t, h.Get(withID(c, "9")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderPayConfirmsAndPublishes(t *testing.T) {
	h, mock, pub := newOrderHandler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM orders o WHERE o\.id = \? FOR UPDATE`).WithArgs(9).WillReturnRows(orderRow(5, model.OrderPending))
	mock.ExpectQuery(`FROM showtimes s WHERE s\.id = \? FOR UPDATE`).WithArgs(3).WillReturnRows(showtimeRow(model.ShowtimeScheduled))
	mock.ExpectExec(`UPDATE orders SET status = \?`).
		WithArgs(model.OrderConfirmed, sqlmock.AnyArg(), 9, model.OrderPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT total_spent_cents, total_orders FROM users WHERE id=\? FOR UPDATE`).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"total_spent_cents", "total_orders"}).AddRow(1_950_000, 3))
	mock.ExpectExec(`UPDATE users SET total_spent_cents=\?`).
		WithArgs(2_050_000, 4, model.TierVIP, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectQuery(`FROM orders o WHERE o\.id = \?`).WithArgs(9).WillReturnRows(orderRow(5, model.OrderConfirmed))
	mock.ExpectQuery(`FROM order_seats os JOIN seats se`).WithArgs(9).
		WillReturnRows(sqlmock.NewRows(seatCols).
			AddRow(1, "A", 5, "STANDARD", 100000, false))
	mock.ExpectQuery(`FROM order_items oi`).WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"food_item_id", "name", "quantity", "price_cents"}))

	mock.ExpectQuery(`JOIN movies m`).WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "cinema_id", "room_id", "movie_id", "starts_at", "ends_at", "format",
			"has_subtitle", "is_dubbed", "base_price_cents", "status", "created_at", "updated_at",
			"title", "name", "room_number"}).
			AddRow(3, 1, 2, 4, testStarts, testStarts.Add(2*time.Hour), "2D", false, false, 100000, "SCHEDULED",
				testNow, testNow, "Dune", "Downtown", "R1"))
	mock.ExpectQuery(`FROM users WHERE id=\?`).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "phone", "password_hash", "role", "membership_level",
			"total_spent_cents", "total_orders", "is_active", "created_at", "updated_at"}).
			AddRow(5, "Ann", "ann@example.com", "", "x", "CUSTOMER", "VIP", 2_050_000, 4, true, testNow, testNow))

	c, rec := newCtx(http.MethodPost, "/orders/9/pay", "", 5, model.RoleCustomer)
	require.NoError(t, h.Pay(withID(c, "9")))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"membership_level":"VIP"`)
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, pub.confirmed, 1)
	ev := pub.confirmed[0]
	assert.Equal(t, "c0de", ev.OrderCode)
	assert.Equal(t, "ann@example.com", ev.CustomerEmail)
	assert.Equal(t, "Dune", ev.MovieTitle)
	assert.Equal(t, []string{"A5"}, ev.Seats)
	assert.Equal(t, model.TierVIP, ev.MembershipLevel)
}

func TestOrderPayRejectsConfirmedOrder(t *testing.T) {
	h, mock, pub := newOrderHandler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM orders o WHERE o\.id = \? FOR UPDATE`).WithArgs(9).WillReturnRows(orderRow(5, model.OrderConfirmed))
	mock.ExpectRollback()

	c, rec := newCtx(http.MethodPost, "/orders/9/pay", "", 5, model.RoleCustomer)
	require.NoError(t, h.Pay(withID(c, "9")))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, pub.confirmed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderCancelReversesSpend(t *testing.T) {
	h, mock, _ := newOrderHandler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM orders o WHERE o\.id = \? FOR UPDATE`).WithArgs(9).WillReturnRows(orderRow(5, model.OrderConfirmed))
	mock.ExpectQuery(`FROM showtimes s WHERE s\.id = \? FOR UPDATE`).WithArgs(3).WillReturnRows(showtimeRow(model.ShowtimeScheduled))
	mock.ExpectExec(`UPDATE orders SET status = \?`).
		WithArgs(model.OrderCancelled, 9, model.OrderConfirmed).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE order_seats SET held_showtime_id = NULL`).WithArgs(sqlmock.AnyArg(), 9).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT total_spent_cents, total_orders FROM users WHERE id=\? FOR UPDATE`).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"total_spent_cents", "total_orders"}).AddRow(2_050_000, 4))
	mock.ExpectExec(`UPDATE users SET total_spent_cents=\?`).
		WithArgs(1_950_000, 3, model.TierStandard, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`FROM orders o WHERE o\.id = \?`).WithArgs(9).WillReturnRows(orderRow(5, model.OrderCancelled))
	mock.ExpectQuery(`FROM order_seats os JOIN seats se`).WithArgs(9).
		WillReturnRows(sqlmock.NewRows(seatCols).AddRow(1, "A", 5, "STANDARD", 100000, true))
	mock.ExpectQuery(`FROM order_items oi`).WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"food_item_id", "name", "quantity", "price_cents"}))

	c, rec := newCtx(http.MethodPost, "/orders/9/cancel", "", 5, model.RoleCustomer)
	require.NoError(t, h.Cancel(withID(c, "9")))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"CANCELLED"`)
	assert.Contains(t, rec.Body.String(), `"released":true`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserUpdateRefusesSelfDemotion(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	h := NewUserHandler(repository.NewUserRepo(db), repository.NewOrderRepo(db), booking.Thresholds{VIP: 10, Premium: 20})

	mock.ExpectQuery(`FROM users WHERE id=\?`).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "phone", "password_hash", "role", "membership_level",
			"total_spent_cents", "total_orders", "is_active", "created_at", "updated_at"}).
			AddRow(1, "Root", "root@example.com", "", "x", "ADMIN", "STANDARD", 0, 0, true, testNow, testNow))

	c, rec := newCtx(http.MethodPut, "/api/v1/users/1", `{"role":"CUSTOMER"}`, 1, model.RoleAdmin)
	require.NoError(t, h.Update(withID(c, "1")))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForgotPasswordHidesUnknownEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	pub := &fakePublisher{}
	h := &AuthHandler{Users: repository.NewUserRepo(db), OTPs: repository.NewOTPRepo(db), Events: pub, Log: zap.NewNop(), Now: time.Now}

	mock.ExpectQuery(`FROM users WHERE email=\?`).WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	c, rec := newCtx(http.MethodPost, "/auth/forgot-password", `{"email":"Ghost@Example.com"}`, 0, "")
	require.NoError(t, h.ForgotPassword(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"`+forgotMessage+`"}`, rec.Body.String())
	assert.Empty(t, pub.resets)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterValidation(t *testing.T) {
	h := &AuthHandler{Now: time.Now}
	cases := map[string]string{
		`{"email":"a@b.co","password":"secret1"}`:          "name is required",
		`{"name":"A","email":"nope","password":"secret1"}`: "invalid email",
		`{"name":"A","email":"a@b.co","password":"short"}`: "password must be at least 6 characters",
	}
	for body, want := range cases {
		c, rec := newCtx(http.MethodPost, "/auth/register", body, 0, "")
		require.NoError(t, h.Register(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, rec.Body.String(), want, body)
	}
}
