package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-ticket-booking/internal/booking"
	"github.com/iliyamo/cinema-ticket-booking/internal/model"
	"github.com/iliyamo/cinema-ticket-booking/internal/repository"
)

const basket = `{"showtime_id":3,"seat_ids":[1,2],"items":[{"food_item_id":7,"quantity":2}],` +
	`"voucher_code":"sale10","payment_method":"card"}`

func roomSeats() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "room_id", "row_label", "seat_number", "seat_type", "price_cents", "is_active"}).
		AddRow(1, 2, "A", 1, model.SeatStandard, 0, true).
		AddRow(2, 2, "A", 2, model.SeatVIP, 0, true)
}

func voucherRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "code", "discount_type", "discount_amount", "max_discount_cents", "min_order_cents",
		"used_count", "max_usage", "is_active", "expires_at", "created_at", "updated_at"}).
		AddRow(1, "SALE10", model.DiscountPercent, 10, 0, 0, 0, 100, true, nil, testNow, testNow)
}

// staleOrderRow is a pending order placed well before testNow.
func staleOrderRow(voucherID any) *sqlmock.Rows {
	created := testNow.Add(-20 * time.Minute)
	return sqlmock.NewRows([]string{"id", "code", "customer_id", "showtime_id", "voucher_id", "payment_method",
		"seat_subtotal_cents", "food_subtotal_cents", "discount_cents", "total_price_cents", "status",
		"paid_at", "created_at", "updated_at"}).
		AddRow(9, "c0de", 5, 3, voucherID, "CARD", 100000, 0, 0, 100000, model.OrderPending, nil, created, created)
}

// expectBasket queues the reads price makes for basket.
func expectBasket(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`FROM showtimes s WHERE s\.id = \? FOR UPDATE`).WithArgs(3).WillReturnRows(showtimeRow(model.ShowtimeScheduled))
	mock.ExpectQuery(`FROM seats WHERE room_id = \? AND id IN`).WithArgs(2, 1, 2).WillReturnRows(roomSeats())
	mock.ExpectQuery(`SELECT seat_id FROM order_seats`).WithArgs(3, 1, 2).WillReturnRows(sqlmock.NewRows([]string{"seat_id"}))
	mock.ExpectQuery(`FROM food_items WHERE is_available = 1 AND id IN`).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "category", "price_cents", "image_url", "is_available", "created_at", "updated_at"}).
			AddRow(7, "Popcorn", "SNACK", 50000, "", true, testNow, testNow))
	mock.ExpectQuery(`FROM vouchers WHERE code = \? FOR UPDATE`).WithArgs("SALE10").WillReturnRows(voucherRow())
}

func TestOrderCreateChargesTheQuotedTotal(t *testing.T) {
	h, mock, _ := newOrderHandler(t)

	mock.ExpectBegin()
	expectBasket(mock)
	mock.ExpectCommit()

	c, rec := newCtx(http.MethodPost, "/orders/quote", basket, 5, model.RoleCustomer)
	require.NoError(t, h.Quote(c))
	require.Equal(t, http.StatusOK, rec.Code)
	var q booking.Quote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))

	// 100000 standard + 130000 VIP + 2 x 50000 popcorn, less 10%.
	mock.ExpectBegin()
	expectBasket(mock)
	mock.ExpectExec(`UPDATE vouchers SET used_count = used_count \+ 1`).WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO orders`).
		WithArgs(sqlmock.AnyArg(), 5, 3, sqlmock.AnyArg(), "CARD", 230000, 100000, 33000, 297000, model.OrderPending).
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectExec(`INSERT INTO order_seats`).
		WithArgs(9, 3, 3, 1, 100000, 9, 3, 3, 2, 130000).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO order_items`).WithArgs(9, 7, 2, 50000).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT created_at, updated_at FROM orders WHERE id = \?`).WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(testNow, testNow))
	mock.ExpectCommit()

	c, rec = newCtx(http.MethodPost, "/orders", basket, 5, model.RoleCustomer)
	require.NoError(t, h.Create(c))
	require.Equal(t, http.StatusCreated, rec.Code)
	var o model.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, uint64(9), o.ID)
	assert.Equal(t, model.OrderPending, o.Status)
	assert.Equal(t, "CARD", o.PaymentMethod)
	assert.Equal(t, int64(297000), o.TotalPriceCents)
	assert.Equal(t, q.TotalCents, o.TotalPriceCents)
	assert.Equal(t, q.DiscountCents, o.DiscountCents)
	require.NotNil(t, o.VoucherID)
	assert.Equal(t, uint64(1), *o.VoucherID)
	assert.Len(t, o.Seats, 2)
	assert.NotEmpty(t, o.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderCreateRejectsSpentVoucher(t *testing.T) {
	h, mock, _ := newOrderHandler(t)

	mock.ExpectBegin()
	expectBasket(mock)
	mock.ExpectExec(`UPDATE vouchers SET used_count = used_count \+ 1`).WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	c, rec := newCtx(http.MethodPost, "/orders", basket, 5, model.RoleCustomer)
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"`+repository.ErrVoucherUnavailable.Error()+`"}`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderCreateReportsSeatsLostToARace(t *testing.T) {
	h, mock, _ := newOrderHandler(t)

	mock.ExpectBegin()
	expectBasket(mock)
	mock.ExpectExec(`UPDATE vouchers SET used_count = used_count \+ 1`).WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO orders`).WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectExec(`INSERT INTO order_seats`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '3-2' for key 'uq_order_seats_held_seat'"})
	mock.ExpectRollback()

	c, rec := newCtx(http.MethodPost, "/orders", basket, 5, model.RoleCustomer)
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"seat already booked","seat_ids":[1,2]}`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderPayRejectsCancelledShowtime(t *testing.T) {
	h, mock, pub := newOrderHandler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM orders o WHERE o\.id = \? FOR UPDATE`).WithArgs(9).WillReturnRows(orderRow(5, model.OrderPending))
	mock.ExpectQuery(`FROM showtimes s WHERE s\.id = \? FOR UPDATE`).WithArgs(3).WillReturnRows(showtimeRow(model.ShowtimeCancelled))
	mock.ExpectRollback()

	c, rec := newCtx(http.MethodPost, "/orders/9/pay", "", 5, model.RoleCustomer)
	require.NoError(t, h.Pay(withID(c, "9")))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"showtime is not open for booking"}`, rec.Body.String())
	assert.Empty(t, pub.confirmed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderPayReleasesExpiredHold(t *testing.T) {
	h, mock, pub := newOrderHandler(t)
	h.HoldTTL = 15 * time.Minute

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM orders o WHERE o\.id = \? FOR UPDATE`).WithArgs(9).WillReturnRows(staleOrderRow(nil))
	mock.ExpectQuery(`FROM showtimes s WHERE s\.id = \? FOR UPDATE`).WithArgs(3).WillReturnRows(showtimeRow(model.ShowtimeScheduled))
	mock.ExpectExec(`UPDATE orders SET status = \?`).
		WithArgs(model.OrderCancelled, 9, model.OrderPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE order_seats SET held_showtime_id = NULL`).WithArgs(sqlmock.AnyArg(), 9).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c, rec := newCtx(http.MethodPost, "/orders/9/pay", "", 5, model.RoleCustomer)
	require.NoError(t, h.Pay(withID(c, "9")))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"order hold has expired"}`, rec.Body.String())
	assert.Empty(t, pub.confirmed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderQuoteExpiresStaleHolds(t *testing.T) {
	h, mock, _ := newOrderHandler(t)
	h.HoldTTL = 15 * time.Minute

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM showtimes s WHERE s\.id = \? FOR UPDATE`).WithArgs(3).WillReturnRows(showtimeRow(model.ShowtimeScheduled))
	mock.ExpectQuery(`FROM seats WHERE room_id = \? AND id IN`).WithArgs(2, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "room_id", "row_label", "seat_number", "seat_type", "price_cents", "is_active"}).
			AddRow(1, 2, "A", 1, model.SeatStandard, 0, true))
	mock.ExpectQuery(`FROM orders o WHERE o\.status = \? AND o\.created_at <= \? AND o\.showtime_id = \?`).
		WithArgs(model.OrderPending, testNow.Add(-15*time.Minute), 3, sqlmock.AnyArg()).
		WillReturnRows(staleOrderRow(4))
	mock.ExpectExec(`UPDATE orders SET status = \?`).
		WithArgs(model.OrderCancelled, 9, model.OrderPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE order_seats SET held_showtime_id = NULL`).WithArgs(sqlmock.AnyArg(), 9).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE vouchers SET used_count = used_count - 1`).WithArgs(4).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT seat_id FROM order_seats`).WithArgs(3, 1).WillReturnRows(sqlmock.NewRows([]string{"seat_id"}))
	mock.ExpectCommit()

	c, rec := newCtx(http.MethodPost, "/orders/quote", `{"showtime_id":3,"seat_ids":[1]}`, 5, model.RoleCustomer)
	require.NoError(t, h.Quote(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_cents":100000`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireStaleWithNothingToDo(t *testing.T) {
	h, mock, _ := newOrderHandler(t)
	h.HoldTTL = 15 * time.Minute

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM orders o WHERE o\.status = \? AND o\.created_at <= \? ORDER BY`).
		WithArgs(model.OrderPending, testNow.Add(-15*time.Minute), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	n, err := h.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelShowtimeOrdersRefundsPaidOrders(t *testing.T) {
	h, mock, _ := newOrderHandler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM orders o\s+WHERE o\.showtime_id = \? AND o\.status IN`).
		WithArgs(3, model.OrderPending, model.OrderConfirmed, sqlmock.AnyArg()).
		WillReturnRows(orderRow(5, model.OrderConfirmed))
	mock.ExpectExec(`UPDATE orders SET status = \?`).
		WithArgs(model.OrderCancelled, 9, model.OrderConfirmed).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE order_seats SET held_showtime_id = NULL`).WithArgs(sqlmock.AnyArg(), 9).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT total_spent_cents, total_orders FROM users WHERE id=\? FOR UPDATE`).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"total_spent_cents", "total_orders"}).AddRow(100000, 1))
	mock.ExpectExec(`UPDATE users SET total_spent_cents=\?`).
		WithArgs(0, 0, model.TierStandard, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM orders o\s+WHERE o\.showtime_id = \? AND o\.status IN`).
		WithArgs(3, model.OrderPending, model.OrderConfirmed, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	n, err := h.CancelShowtimeOrders(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShowtimeCancelReleasesOrders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	h := NewShowtimeHandler(repository.NewShowtimeRepo(db), repository.NewMovieRepo(db))
	var cancelled []uint64
	h.OnCancel = func(_ context.Context, id uint64) (int, error) {
		cancelled = append(cancelled, id)
		return 2, nil
	}

	mock.ExpectQuery(`JOIN movies m`).WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "cinema_id", "room_id", "movie_id", "starts_at", "ends_at", "format",
			"has_subtitle", "is_dubbed", "base_price_cents", "status", "created_at", "updated_at",
			"title", "name", "room_number"}).
			AddRow(3, 1, 2, 4, testStarts, testStarts.Add(2*time.Hour), "2D", false, false, 100000, model.ShowtimeScheduled,
				testNow, testNow, "Dune", "Downtown", "R1"))
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM showtimes s WHERE s\.id = \? FOR UPDATE`).WithArgs(3).WillReturnRows(showtimeRow(model.ShowtimeScheduled))
	mock.ExpectExec(`UPDATE showtimes SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c, rec := newCtx(http.MethodPut, "/api/showtimes/3", `{"status":"cancelled"}`, 1, model.RoleAdmin)
	require.NoError(t, h.Update(withID(c, "3")))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"CANCELLED"`)
	assert.Equal(t, []uint64{3}, cancelled)
	assert.NoError(t, mock.ExpectationsWereMet())
}
