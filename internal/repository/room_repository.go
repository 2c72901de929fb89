package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/cinema-ticket-booking/internal/model"
)

// ErrRoomNotFound is returned when a room lookup fails.
var ErrRoomNotFound = errors.New("room not found")

// ErrRoomNumberTaken is returned when the cinema already has a room with that number.
var ErrRoomNumberTaken = errors.New("room number already exists in cinema")

// RoomRepo provides methods to create and retrieve rooms.
type RoomRepo struct {
	db *sql.DB
}

// NewRoomRepo constructs a RoomRepo with the given DB handle.
func NewRoomRepo(db *sql.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

const roomColumns = `id, cinema_id, room_number, capacity, created_at, updated_at`

func scanRoom(row interface{ Scan(...any) error }) (*model.Room, error) {
	var rm model.Room
	if err := row.Scan(&rm.ID, &rm.CinemaID, &rm.RoomNumber, &rm.Capacity, &rm.CreatedAt, &rm.UpdatedAt); err != nil {
		return nil, err
	}
	return &rm, nil
}

// Create inserts a room for a cinema.  Capacity starts at zero and follows
// seat generation.
func (r *RoomRepo) Create(ctx context.Context, rm *model.Room) error {
	res, err := r.db.ExecContext(ctx, `INSERT INTO rooms (cinema_id, room_number) VALUES (?, ?)`, rm.CinemaID, rm.RoomNumber)
	if err != nil {
		if isDuplicate(err) {
			return ErrRoomNumberTaken
		}
		if isForeignKey(err) {
			return ErrCinemaNotFound
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
	*rm = *created
	return nil
}

// GetByID retrieves a room by id.
func (r *RoomRepo) GetByID(ctx context.Context, id uint64) (*model.Room, error) {
	rm, err := scanRoom(r.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return rm, nil
}

// ListByCinema returns the rooms of a cinema ordered by room number.
func (r *RoomRepo) ListByCinema(ctx context.Context, cinemaID uint64) ([]*model.Room, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE cinema_id = ? ORDER BY room_number`, cinemaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.Room, 0)
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

// UpdateNumber renames a room.
func (r *RoomRepo) UpdateNumber(ctx context.Context, id uint64, number string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET room_number = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, number, id)
	if err != nil {
		if isDuplicate(err) {
			return ErrRoomNumberTaken
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a room and its seats.  Rooms that still have showtimes
// return ErrConflict.
func (r *RoomRepo) Delete(ctx context.Context, id uint64) error {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM showtimes WHERE room_id = ?`, id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrConflict
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRoomNotFound
	}
	return nil
}
