// Package repository contains data access logic for showtimes.  A showtime
// is a scheduled screening of a movie in one room; two scheduled showtimes
// in the same room may not overlap.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/cinema-ticket-booking/internal/booking"
	"github.com/iliyamo/cinema-ticket-booking/internal/model"
)

var (
	// ErrShowtimeNotFound indicates that a showtime was not located in the DB.
	ErrShowtimeNotFound = errors.New("showtime not found")
	// ErrShowtimeOverlap is returned when a room already has a scheduled
	// showtime within the requested interval.
	ErrShowtimeOverlap = errors.New("showtime overlaps another showtime in the room")
	// ErrRoomNotInCinema is returned when room_id does not belong to cinema_id.
	ErrRoomNotInCinema = errors.New("room does not belong to cinema")
)

// ShowtimeRepo manages persistence for showtimes.
type ShowtimeRepo struct {
	db *sql.DB
}

// NewShowtimeRepo constructs a ShowtimeRepo with the given DB handle.
func NewShowtimeRepo(db *sql.DB) *ShowtimeRepo {
	return &ShowtimeRepo{db: db}
}

const showtimeColumns = `s.id, s.cinema_id, s.room_id, s.movie_id, s.starts_at, s.ends_at, s.format,
	s.has_subtitle, s.is_dubbed, s.base_price_cents, s.status, s.created_at, s.updated_at`

const showtimeDetailFrom = ` FROM showtimes s
	JOIN movies m ON m.id = s.movie_id
	JOIN cinemas c ON c.id = s.cinema_id
	JOIN rooms r ON r.id = s.room_id`

func scanShowtimeDetail(row interface{ Scan(...any) error }) (*model.ShowtimeDetail, error) {
	var d model.ShowtimeDetail
	if err := row.Scan(&d.ID, &d.CinemaID, &d.RoomID, &d.MovieID, &d.StartsAt, &d.EndsAt, &d.Format,
		&d.HasSubtitle, &d.IsDubbed, &d.BasePriceCents, &d.Status, &d.CreatedAt, &d.UpdatedAt,
		&d.MovieTitle, &d.CinemaName, &d.RoomNumber); err != nil {
		return nil, err
	}
	return &d, nil
}

// ShowtimeFilter narrows List.  Zero values are ignored.  Date selects the
// UTC calendar day of starts_at.  Upcoming hides showtimes that already
// started or were cancelled.
type ShowtimeFilter struct {
	MovieID  uint64
	CinemaID uint64
	RoomID   uint64
	Date     *time.Time
	Upcoming bool
	Now      time.Time
}

// Create validates the room and inserts the showtime.  It returns
// ErrRoomNotInCinema, ErrShowtimeOverlap or a not-found sentinel for a
// missing movie or room.
func (r *ShowtimeRepo) Create(ctx context.Context, s *model.Showtime) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	if err = checkShowtimeRefs(ctx, tx, s); err != nil {
		return err
	}
	overlaps, err := findOverlapping(ctx, tx, s.RoomID, s.StartsAt, s.EndsAt, 0)
	if err != nil {
		return err
	}
	if len(overlaps) > 0 {
		return ErrShowtimeOverlap
	}
	if s.Status == "" {
		s.Status = model.ShowtimeScheduled
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO showtimes (cinema_id, room_id, movie_id, starts_at, ends_at, format, has_subtitle, is_dubbed, base_price_cents, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.CinemaID, s.RoomID, s.MovieID, s.StartsAt.UTC(), s.EndsAt.UTC(), s.Format, s.HasSubtitle, s.IsDubbed,
		s.BasePriceCents, s.Status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return tx.QueryRowContext(ctx, `SELECT created_at, updated_at FROM showtimes WHERE id = ?`, s.ID).
		Scan(&s.CreatedAt, &s.UpdatedAt)
}

// checkShowtimeRefs locks the room row so concurrent creates for the same
// room serialise on the overlap check.
func checkShowtimeRefs(ctx context.Context, tx *sql.Tx, s *model.Showtime) error {
	var cinemaID uint64
	if err := tx.QueryRowContext(ctx, `SELECT cinema_id FROM rooms WHERE id = ? FOR UPDATE`, s.RoomID).Scan(&cinemaID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRoomNotFound
		}
		return err
	}
	if cinemaID != s.CinemaID {
		return ErrRoomNotInCinema
	}
	var one int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM movies WHERE id = ?`, s.MovieID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMovieNotFound
		}
		return err
	}
	return nil
}

// GetByID retrieves a showtime by its id.
func (r *ShowtimeRepo) GetByID(ctx context.Context, id uint64) (*model.Showtime, error) {
	d, err := r.GetDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	return &d.Showtime, nil
}

// GetDetail retrieves a showtime joined with movie, cinema and room names.
func (r *ShowtimeRepo) GetDetail(ctx context.Context, id uint64) (*model.ShowtimeDetail, error) {
	q := `SELECT ` + showtimeColumns + `, m.title, c.name, r.room_number` + showtimeDetailFrom + ` WHERE s.id = ?`
	d, err := scanShowtimeDetail(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShowtimeNotFound
		}
		return nil, err
	}
	return d, nil
}

// GetForUpdateTx locks a showtime row inside tx.
func (r *ShowtimeRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Showtime, error) {
	var s model.Showtime
	err := tx.QueryRowContext(ctx,
		`SELECT `+showtimeColumns+` FROM showtimes s WHERE s.id = ? FOR UPDATE`, id).
		Scan(&s.ID, &s.CinemaID, &s.RoomID, &s.MovieID, &s.StartsAt, &s.EndsAt, &s.Format,
			&s.HasSubtitle, &s.IsDubbed, &s.BasePriceCents, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShowtimeNotFound
		}
		return nil, err
	}
	return &s, nil
}

// List returns showtimes matching f ordered by start time.
func (r *ShowtimeRepo) List(ctx context.Context, f ShowtimeFilter) ([]*model.ShowtimeDetail, error) {
	var (
		where []string
		args  []any
	)
	if f.MovieID != 0 {
		where = append(where, "s.movie_id = ?")
		args = append(args, f.MovieID)
	}
	if f.CinemaID != 0 {
		where = append(where, "s.cinema_id = ?")
		args = append(args, f.CinemaID)
	}
	if f.RoomID != 0 {
		where = append(where, "s.room_id = ?")
		args = append(args, f.RoomID)
	}
	if f.Date != nil {
		day := time.Date(f.Date.Year(), f.Date.Month(), f.Date.Day(), 0, 0, 0, 0, time.UTC)
		where = append(where, "s.starts_at >= ? AND s.starts_at < ?")
		args = append(args, day, day.AddDate(0, 0, 1))
	}
	if f.Upcoming {
		where = append(where, "s.status = ? AND s.starts_at > ?")
		args = append(args, model.ShowtimeScheduled, f.Now.UTC())
	}
	q := `SELECT ` + showtimeColumns + `, m.title, c.name, r.room_number` + showtimeDetailFrom
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY s.starts_at ASC, s.id ASC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.ShowtimeDetail, 0)
	for rows.Next() {
		d, err := scanShowtimeDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// findOverlapping returns the scheduled showtimes in the room whose interval
// intersects [start, end).  excludeID, when non-zero, is left out so an
// update does not collide with itself.
func findOverlapping(ctx context.Context, q querier, roomID uint64, start, end time.Time, excludeID uint64) ([]model.Showtime, error) {
	// Existing overlaps unless it ends before the new start or starts after the new end.
	rows, err := q.QueryContext(ctx,
		`SELECT `+showtimeColumns+` FROM showtimes s
		 WHERE s.room_id = ? AND s.status = ? AND s.id <> ?
		   AND NOT (s.ends_at <= ? OR s.starts_at >= ?)
		 ORDER BY s.starts_at`,
		roomID, model.ShowtimeScheduled, excludeID, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Showtime, 0)
	for rows.Next() {
		var s model.Showtime
		if err := rows.Scan(&s.ID, &s.CinemaID, &s.RoomID, &s.MovieID, &s.StartsAt, &s.EndsAt, &s.Format,
			&s.HasSubtitle, &s.IsDubbed, &s.BasePriceCents, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Update overwrites the schedule and presentation fields.  Room, movie and
// cinema are fixed once a showtime exists; changing them would strand sold
// seats.  A status of CANCELLED skips the overlap check.
func (r *ShowtimeRepo) Update(ctx context.Context, s *model.Showtime) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	cur, err := r.GetForUpdateTx(ctx, tx, s.ID)
	if err != nil {
		return err
	}
	if s.Status == "" {
		s.Status = cur.Status
	}
	if s.Status == model.ShowtimeScheduled {
		overlaps, err := findOverlapping(ctx, tx, cur.RoomID, s.StartsAt, s.EndsAt, s.ID)
		if err != nil {
			return err
		}
		if len(overlaps) > 0 {
			return ErrShowtimeOverlap
		}
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE showtimes SET starts_at = ?, ends_at = ?, format = ?, has_subtitle = ?, is_dubbed = ?,
		        base_price_cents = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		s.StartsAt.UTC(), s.EndsAt.UTC(), s.Format, s.HasSubtitle, s.IsDubbed, s.BasePriceCents, s.Status, s.ID); err != nil {
		return err
	}
	s.CinemaID, s.RoomID, s.MovieID, s.CreatedAt = cur.CinemaID, cur.RoomID, cur.MovieID, cur.CreatedAt
	return nil
}

// Delete removes a showtime that has no orders.  Showtimes with orders
// return ErrConflict; cancel them instead.
func (r *ShowtimeRepo) Delete(ctx context.Context, id uint64) error {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE showtime_id = ?`, id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrConflict
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM showtimes WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrShowtimeNotFound
	}
	return nil
}

// SeatMap returns every active seat of the showtime's room with its price
// for this showtime and whether it is already sold.  Only rows still held
// (held_showtime_id set) count; released seats are AVAILABLE again.
func (r *ShowtimeRepo) SeatMap(ctx context.Context, showtimeID uint64) ([]model.ShowtimeSeat, error) {
	st, err := r.GetByID(ctx, showtimeID)
	if err != nil {
		return nil, err
	}
	const q = `SELECT se.id, se.row_label, se.seat_number, se.seat_type, se.price_cents,
	                  CASE WHEN os.seat_id IS NULL THEN 0 ELSE 1 END
	           FROM seats se
	           LEFT JOIN order_seats os ON os.seat_id = se.id AND os.held_showtime_id = ?
	           WHERE se.room_id = ? AND se.is_active = 1
	           ORDER BY LENGTH(se.row_label), se.row_label, se.seat_number`
	rows, err := r.db.QueryContext(ctx, q, showtimeID, st.RoomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.ShowtimeSeat, 0)
	for rows.Next() {
		var (
			s        model.ShowtimeSeat
			override int64
			taken    bool
		)
		if err := rows.Scan(&s.SeatID, &s.RowLabel, &s.SeatNumber, &s.SeatType, &override, &taken); err != nil {
			return nil, err
		}
		s.PriceCents = booking.SeatPrice(st.BasePriceCents, s.SeatType, override)
		s.Status = model.SeatAvailable
		if taken {
			s.Status = model.SeatOccupied
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
