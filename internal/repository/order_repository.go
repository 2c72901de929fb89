package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/cinema-ticket-booking/internal/model"
)

var (
	// ErrOrderNotFound is returned when an order does not exist.
	ErrOrderNotFound = errors.New("order not found")
	// ErrSeatTaken is returned when at least one requested seat is already
	// sold for the showtime.  Use errors.As with *SeatTakenError to get the ids.
	ErrSeatTaken = errors.New("seat already booked")
	// ErrInvalidTransition is returned when an order is not in the status a
	// transition requires.
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// SeatTakenError lists the seats that were already sold.
type SeatTakenError struct {
	SeatIDs []uint64
}

func (e *SeatTakenError) Error() string {
	return fmt.Sprintf("seats already booked: %v", e.SeatIDs)
}

func (e *SeatTakenError) Is(target error) bool { return target == ErrSeatTaken }

// OrderRepo persists orders with their seats and food lines.
type OrderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

const orderColumns = `o.id, o.code, o.customer_id, o.showtime_id, o.voucher_id, o.payment_method,
	o.seat_subtotal_cents, o.food_subtotal_cents, o.discount_cents, o.total_price_cents, o.status,
	o.paid_at, o.created_at, o.updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*model.Order, error) {
	var (
		o       model.Order
		voucher sql.NullInt64
		paid    sql.NullTime
	)
	if err := row.Scan(&o.ID, &o.Code, &o.CustomerID, &o.ShowtimeID, &voucher, &o.PaymentMethod,
		&o.SeatSubtotalCents, &o.FoodSubtotalCents, &o.DiscountCents, &o.TotalPriceCents, &o.Status,
		&paid, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	if voucher.Valid {
		id := uint64(voucher.Int64)
		o.VoucherID = &id
	}
	if paid.Valid {
		t := paid.Time
		o.PaidAt = &t
	}
	return &o, nil
}

// TakenSeatsTx returns which of seatIDs are held by a live order for the
// showtime, locking the matching order_seats rows.
func (r *OrderRepo) TakenSeatsTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64) ([]uint64, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT seat_id FROM order_seats WHERE held_showtime_id = ? AND seat_id IN (`+placeholders(len(seatIDs))+`) FOR UPDATE`,
		append([]any{showtimeID}, uint64Args(seatIDs)...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var taken []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		taken = append(taken, id)
	}
	return taken, rows.Err()
}

// CreateTx inserts the order, its seats and its food lines.  The unique
// (held_showtime_id, seat_id) key on order_seats is the final guard against
// double booking; a violation is reported as *SeatTakenError.
func (r *OrderRepo) CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order) error {
	if o.Status == "" {
		o.Status = model.OrderPending
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO orders (code, customer_id, showtime_id, voucher_id, payment_method, seat_subtotal_cents,
		                     food_subtotal_cents, discount_cents, total_price_cents, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.Code, o.CustomerID, o.ShowtimeID, o.VoucherID, o.PaymentMethod, o.SeatSubtotalCents,
		o.FoodSubtotalCents, o.DiscountCents, o.TotalPriceCents, o.Status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)

	if len(o.Seats) > 0 {
		var b strings.Builder
		b.WriteString(`INSERT INTO order_seats (order_id, showtime_id, held_showtime_id, seat_id, price_cents) VALUES `)
		args := make([]any, 0, len(o.Seats)*5)
		for i, s := range o.Seats {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString("(?, ?, ?, ?, ?)")
			args = append(args, o.ID, o.ShowtimeID, o.ShowtimeID, s.SeatID, s.PriceCents)
		}
		if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
			if isDuplicate(err) {
				ids := make([]uint64, len(o.Seats))
				for i, s := range o.Seats {
					ids[i] = s.SeatID
				}
				return &SeatTakenError{SeatIDs: ids}
			}
			return err
		}
	}

	if len(o.Items) > 0 {
		var b strings.Builder
		b.WriteString(`INSERT INTO order_items (order_id, food_item_id, quantity, price_cents) VALUES `)
		args := make([]any, 0, len(o.Items)*4)
		for i, it := range o.Items {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString("(?, ?, ?, ?)")
			args = append(args, o.ID, it.FoodItemID, it.Quantity, it.PriceCents)
		}
		if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
			return err
		}
	}
	return tx.QueryRowContext(ctx, `SELECT created_at, updated_at FROM orders WHERE id = ?`, o.ID).
		Scan(&o.CreatedAt, &o.UpdatedAt)
}

// GetByID loads an order with its seats and food lines.
func (r *OrderRepo) GetByID(ctx context.Context, id uint64) (*model.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if o.Seats, err = r.seats(ctx, o.ID); err != nil {
		return nil, err
	}
	if o.Items, err = r.items(ctx, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *OrderRepo) seats(ctx context.Context, orderID uint64) ([]model.OrderSeat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT os.seat_id, se.row_label, se.seat_number, se.seat_type, os.price_cents, os.released_at IS NOT NULL
		 FROM order_seats os JOIN seats se ON se.id = os.seat_id
		 WHERE os.order_id = ?
		 ORDER BY LENGTH(se.row_label), se.row_label, se.seat_number`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.OrderSeat, 0)
	for rows.Next() {
		var s model.OrderSeat
		if err := rows.Scan(&s.SeatID, &s.RowLabel, &s.SeatNumber, &s.SeatType, &s.PriceCents, &s.Released); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *OrderRepo) items(ctx context.Context, orderID uint64) ([]model.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT oi.food_item_id, f.name, oi.quantity, oi.price_cents
		 FROM order_items oi JOIN food_items f ON f.id = oi.food_item_id
		 WHERE oi.order_id = ?
		 ORDER BY f.name`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.OrderItem, 0)
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.FoodItemID, &it.Name, &it.Quantity, &it.PriceCents); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// GetForUpdateTx loads the order header inside tx and locks the row.
func (r *OrderRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Order, error) {
	o, err := scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = ? FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return o, nil
}

// OrderFilter narrows ListAll.  Zero values are ignored.
type OrderFilter struct {
	Status     string
	CustomerID uint64
	Page       Page
}

const orderSummarySelect = `SELECT o.id, o.code, o.customer_id, u.email, o.showtime_id, m.title, c.name, s.starts_at,
	(SELECT COUNT(*) FROM order_seats os WHERE os.order_id = o.id),
	o.total_price_cents, o.payment_method, o.status, o.created_at
	FROM orders o
	JOIN users u ON u.id = o.customer_id
	JOIN showtimes s ON s.id = o.showtime_id
	JOIN movies m ON m.id = s.movie_id
	JOIN cinemas c ON c.id = s.cinema_id`

func collectSummaries(rows *sql.Rows) ([]model.OrderSummary, error) {
	defer rows.Close()
	out := make([]model.OrderSummary, 0)
	for rows.Next() {
		var s model.OrderSummary
		if err := rows.Scan(&s.ID, &s.Code, &s.CustomerID, &s.CustomerEmail, &s.ShowtimeID, &s.MovieTitle,
			&s.CinemaName, &s.StartsAt, &s.SeatCount, &s.TotalPriceCents, &s.PaymentMethod, &s.Status, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListByCustomer returns a customer's orders, newest first.
func (r *OrderRepo) ListByCustomer(ctx context.Context, customerID uint64) ([]model.OrderSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		orderSummarySelect+` WHERE o.customer_id = ? ORDER BY o.created_at DESC, o.id DESC`, customerID)
	if err != nil {
		return nil, err
	}
	return collectSummaries(rows)
}

// ListAll returns one page of orders across customers plus the total count.
func (r *OrderRepo) ListAll(ctx context.Context, f OrderFilter) ([]model.OrderSummary, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "o.status = ?")
		args = append(args, f.Status)
	}
	if f.CustomerID != 0 {
		where = append(where, "o.customer_id = ?")
		args = append(args, f.CustomerID)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders o`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	p := f.Page.Normalize()
	rows, err := r.db.QueryContext(ctx,
		orderSummarySelect+clause+` ORDER BY o.created_at DESC, o.id DESC LIMIT ? OFFSET ?`,
		append(args, p.PageSize, p.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collectSummaries(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// UpdateStatusTx moves an order from one status to another.  It returns
// ErrInvalidTransition when the order is not currently in from.  paid_at is
// stamped when the order becomes CONFIRMED.
func (r *OrderRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, from, to string, now time.Time) error {
	q := `UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP`
	args := []any{to}
	if to == model.OrderConfirmed {
		q += `, paid_at = ?`
		args = append(args, now.UTC())
	}
	q += ` WHERE id = ? AND status = ?`
	args = append(args, id, from)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// ReleaseSeatsTx puts the seats held by an order back on sale.  The rows
// are kept, marked released, so the order still shows what it held.
func (r *OrderRepo) ReleaseSeatsTx(ctx context.Context, tx *sql.Tx, orderID uint64, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE order_seats SET held_showtime_id = NULL, released_at = ?
		 WHERE order_id = ? AND held_showtime_id IS NOT NULL`, now.UTC(), orderID)
	return err
}

// maxReleaseBatch bounds how many orders one sweep locks.
const maxReleaseBatch = 200

// StalePendingTx locks PENDING orders created at or before cutoff.  A
// non-zero showtimeID narrows the sweep to that showtime.
func (r *OrderRepo) StalePendingTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, cutoff time.Time) ([]*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders o WHERE o.status = ? AND o.created_at <= ?`
	args := []any{model.OrderPending, cutoff.UTC()}
	if showtimeID != 0 {
		q += ` AND o.showtime_id = ?`
		args = append(args, showtimeID)
	}
	q += ` ORDER BY o.id LIMIT ? FOR UPDATE`
	args = append(args, maxReleaseBatch)
	return r.lockMany(ctx, tx, q, args...)
}

// LiveByShowtimeTx locks the PENDING and CONFIRMED orders of a showtime.
func (r *OrderRepo) LiveByShowtimeTx(ctx context.Context, tx *sql.Tx, showtimeID uint64) ([]*model.Order, error) {
	return r.lockMany(ctx, tx,
		`SELECT `+orderColumns+` FROM orders o
		 WHERE o.showtime_id = ? AND o.status IN (?, ?)
		 ORDER BY o.id LIMIT ? FOR UPDATE`,
		showtimeID, model.OrderPending, model.OrderConfirmed, maxReleaseBatch)
}

func (r *OrderRepo) lockMany(ctx context.Context, tx *sql.Tx, q string, args ...any) ([]*model.Order, error) {
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
