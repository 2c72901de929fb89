package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/cinema-ticket-booking/internal/model"
)

// ReportRepo runs the admin dashboard aggregates.  Revenue only counts
// CONFIRMED orders; a confirmed order is dated by paid_at.
type ReportRepo struct {
	db *sql.DB
}

func NewReportRepo(db *sql.DB) *ReportRepo { return &ReportRepo{db: db} }

const ticketCounts = `LEFT JOIN (SELECT order_id, COUNT(*) AS tickets FROM order_seats GROUP BY order_id) t ON t.order_id = o.id`

// RevenueByDay returns one point per UTC day in [from, to) that had revenue.
func (r *ReportRepo) RevenueByDay(ctx context.Context, from, to time.Time) ([]model.RevenuePoint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DATE_FORMAT(COALESCE(o.paid_at, o.created_at), '%Y-%m-%d') AS day,
		        SUM(o.total_price_cents), COUNT(*)
		 FROM orders o
		 WHERE o.status = ? AND COALESCE(o.paid_at, o.created_at) >= ? AND COALESCE(o.paid_at, o.created_at) < ?
		 GROUP BY day
		 ORDER BY day`,
		model.OrderConfirmed, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.RevenuePoint, 0)
	for rows.Next() {
		var p model.RevenuePoint
		if err := rows.Scan(&p.Date, &p.RevenueCents, &p.Orders); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RevenueByMovie ranks movies by confirmed revenue.
func (r *ReportRepo) RevenueByMovie(ctx context.Context, limit int) ([]model.RevenueByMovie, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.id, m.title, SUM(o.total_price_cents), COALESCE(SUM(t.tickets), 0), COUNT(DISTINCT o.showtime_id)
		 FROM orders o
		 JOIN showtimes s ON s.id = o.showtime_id
		 JOIN movies m ON m.id = s.movie_id
		 `+ticketCounts+`
		 WHERE o.status = ?
		 GROUP BY m.id, m.title
		 ORDER BY 3 DESC
		 LIMIT ?`, model.OrderConfirmed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.RevenueByMovie, 0)
	for rows.Next() {
		var m model.RevenueByMovie
		if err := rows.Scan(&m.MovieID, &m.Title, &m.RevenueCents, &m.Tickets, &m.Showtimes); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RevenueByCinema returns confirmed revenue per cinema with the average
// revenue per ticket sold.
func (r *ReportRepo) RevenueByCinema(ctx context.Context) ([]model.RevenueByCinema, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.name, SUM(o.total_price_cents), COALESCE(SUM(t.tickets), 0)
		 FROM orders o
		 JOIN showtimes s ON s.id = o.showtime_id
		 JOIN cinemas c ON c.id = s.cinema_id
		 `+ticketCounts+`
		 WHERE o.status = ?
		 GROUP BY c.id, c.name
		 ORDER BY 3 DESC`, model.OrderConfirmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.RevenueByCinema, 0)
	for rows.Next() {
		var c model.RevenueByCinema
		if err := rows.Scan(&c.CinemaID, &c.Name, &c.RevenueCents, &c.Tickets); err != nil {
			return nil, err
		}
		if c.Tickets > 0 {
			c.AvgTicketCents = c.RevenueCents / c.Tickets
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Summary returns the headline counters in a single round trip.
func (r *ReportRepo) Summary(ctx context.Context) (model.ReportSummary, error) {
	var s model.ReportSummary
	err := r.db.QueryRowContext(ctx,
		`SELECT
		   (SELECT COALESCE(SUM(total_price_cents), 0) FROM orders WHERE status = ?),
		   (SELECT COUNT(*) FROM orders WHERE status = ?),
		   (SELECT COUNT(*) FROM orders WHERE status = ?),
		   (SELECT COUNT(*) FROM order_seats os JOIN orders o ON o.id = os.order_id WHERE o.status = ?),
		   (SELECT COUNT(*) FROM users WHERE role = ?),
		   (SELECT COUNT(*) FROM movies)`,
		model.OrderConfirmed, model.OrderConfirmed, model.OrderPending, model.OrderConfirmed, model.RoleCustomer).
		Scan(&s.TotalRevenueCents, &s.ConfirmedOrders, &s.PendingOrders, &s.TicketsSold, &s.Customers, &s.Movies)
	return s, err
}
