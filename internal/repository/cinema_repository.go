// This file defines the cinema repository. A Cinema represents a venue that
// contains screening rooms; deleting one cascades to its rooms and seats.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/cinema-ticket-booking/internal/booking"
	"github.com/iliyamo/cinema-ticket-booking/internal/model"
)

// ErrCinemaNotFound is returned when a cinema cannot be found in the DB.
var ErrCinemaNotFound = errors.New("cinema not found")

// ErrCinemaNameTaken is returned when another cinema already uses the name.
var ErrCinemaNameTaken = errors.New("cinema name already exists")

// CinemaRepo encapsulates all database queries related to cinemas.
type CinemaRepo struct {
	db *sql.DB // db is the underlying database connection pool
}

// NewCinemaRepo constructs a CinemaRepo with the provided DB handle.
func NewCinemaRepo(db *sql.DB) *CinemaRepo {
	return &CinemaRepo{db: db}
}

func scanCinema(row interface{ Scan(...any) error }) (*model.Cinema, error) {
	var (
		c      model.Cinema
		phones string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.OpeningHours, &c.Location, &phones, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.PhoneNumbers = booking.SplitList(phones)
	return &c, nil
}

// Create inserts a new cinema.  On success the cinema is reloaded so the
// caller receives DB-populated timestamps.
func (r *CinemaRepo) Create(ctx context.Context, c *model.Cinema) error {
	const q = "INSERT INTO cinemas (name, opening_hours, location, phone_numbers) VALUES (?, ?, ?, ?)"
	res, err := r.db.ExecContext(ctx, q, c.Name, c.OpeningHours, c.Location, booking.JoinList(c.PhoneNumbers))
	if err != nil {
		if isDuplicate(err) {
			return ErrCinemaNameTaken
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*c = *created
	return nil
}

// GetByID fetches a cinema by its ID.  It returns ErrCinemaNotFound if no row is found.
func (r *CinemaRepo) GetByID(ctx context.Context, id uint64) (*model.Cinema, error) {
	const q = "SELECT id, name, opening_hours, location, phone_numbers, created_at, updated_at FROM cinemas WHERE id = ?"
	c, err := scanCinema(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCinemaNotFound
		}
		return nil, err
	}
	return c, nil
}

// ListAll returns all cinemas ordered by name.
func (r *CinemaRepo) ListAll(ctx context.Context) ([]*model.Cinema, error) {
	const q = `SELECT id, name, opening_hours, location, phone_numbers, created_at, updated_at
	           FROM cinemas ORDER BY name`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.Cinema, 0)
	for rows.Next() {
		c, err := scanCinema(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Update overwrites the editable cinema columns.
func (r *CinemaRepo) Update(ctx context.Context, c *model.Cinema) error {
	const q = `UPDATE cinemas
	           SET name = ?, opening_hours = ?, location = ?, phone_numbers = ?, updated_at = CURRENT_TIMESTAMP
	           WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, c.Name, c.OpeningHours, c.Location, booking.JoinList(c.PhoneNumbers), c.ID)
	if err != nil {
		if isDuplicate(err) {
			return ErrCinemaNameTaken
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, c.ID); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a cinema together with its rooms and seats.  The deletion
// occurs within a transaction.  A cinema whose showtimes have orders is
// refused with ErrConflict; unsold showtimes are removed with it.
func (r *CinemaRepo) Delete(ctx context.Context, id uint64) (err error) {
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
	var one int
	if err = tx.QueryRowContext(ctx, `SELECT 1 FROM cinemas WHERE id = ? FOR UPDATE`, id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCinemaNotFound
		}
		return err
	}
	var orders int
	if err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders o JOIN showtimes s ON s.id = o.showtime_id WHERE s.cinema_id = ?`, id,
	).Scan(&orders); err != nil {
		return err
	}
	if orders > 0 {
		return ErrConflict
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM showtimes WHERE cinema_id = ?`, id); err != nil {
		return err
	}
	// rooms and seats go through ON DELETE CASCADE
	if _, err = tx.ExecContext(ctx, `DELETE FROM cinemas WHERE id = ?`, id); err != nil {
		return err
	}
	return nil
}
