package repository // repository defines data access for seats

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/cinema-ticket-booking/internal/model"
)

// ErrSeatNotFound is returned when a seat lookup yields no rows.
var ErrSeatNotFound = errors.New("seat not found")

// SeatRepo provides methods to work with seats in the database.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

const seatColumns = `id, room_id, row_label, seat_number, seat_type, price_cents, is_active`

func scanSeats(rows *sql.Rows) ([]model.Seat, error) {
	defer rows.Close()
	out := make([]model.Seat, 0)
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.ID, &s.RoomID, &s.RowLabel, &s.SeatNumber, &s.SeatType, &s.PriceCents, &s.IsActive); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateBulk inserts multiple seats for one room in a single statement and
// refreshes the room's capacity in the same transaction.  A seat position
// that already exists yields ErrDuplicate and nothing is written.
func (r *SeatRepo) CreateBulk(ctx context.Context, roomID uint64, seats []model.Seat) (err error) {
	if len(seats) == 0 {
		return nil
	}
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

	var b strings.Builder
	b.WriteString(`INSERT INTO seats (room_id, row_label, seat_number, seat_type, price_cents) VALUES `)
	args := make([]any, 0, len(seats)*5)
	for i, s := range seats {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?, ?, ?, ?, ?)")
		args = append(args, roomID, s.RowLabel, s.SeatNumber, s.SeatType, s.PriceCents)
	}
	if _, err = tx.ExecContext(ctx, b.String(), args...); err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		if isForeignKey(err) {
			return ErrRoomNotFound
		}
		return err
	}
	return refreshCapacity(ctx, tx, roomID)
}

func refreshCapacity(ctx context.Context, q querier, roomID uint64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE rooms SET capacity = (SELECT COUNT(*) FROM seats WHERE room_id = ? AND is_active = 1), updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, roomID, roomID)
	return err
}

// ListByRoom retrieves all seats of a room ordered by row then seat number.
func (r *SeatRepo) ListByRoom(ctx context.Context, roomID uint64) ([]model.Seat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+seatColumns+` FROM seats WHERE room_id = ? ORDER BY LENGTH(row_label), row_label, seat_number`, roomID)
	if err != nil {
		return nil, err
	}
	return scanSeats(rows)
}

// GetByID retrieves a seat by its id.
func (r *SeatRepo) GetByID(ctx context.Context, id uint64) (*model.Seat, error) {
	var s model.Seat
	err := r.db.QueryRowContext(ctx, `SELECT `+seatColumns+` FROM seats WHERE id = ?`, id).
		Scan(&s.ID, &s.RoomID, &s.RowLabel, &s.SeatNumber, &s.SeatType, &s.PriceCents, &s.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSeatNotFound
		}
		return nil, err
	}
	return &s, nil
}

// ListByIDsTx loads the given seats of a room inside tx and locks them.
// Seats from another room are silently excluded so callers can compare
// lengths to detect foreign ids.
func (r *SeatRepo) ListByIDsTx(ctx context.Context, tx *sql.Tx, roomID uint64, ids []uint64) ([]model.Seat, error) {
	if len(ids) == 0 {
		return []model.Seat{}, nil
	}
	q := `SELECT ` + seatColumns + ` FROM seats WHERE room_id = ? AND id IN (` + placeholders(len(ids)) + `) FOR UPDATE`
	rows, err := tx.QueryContext(ctx, q, append([]any{roomID}, uint64Args(ids)...)...)
	if err != nil {
		return nil, err
	}
	return scanSeats(rows)
}

// Update changes a seat's type, price override and active flag, then
// refreshes the room capacity.
func (r *SeatRepo) Update(ctx context.Context, s *model.Seat) (err error) {
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
	var roomID uint64
	if err = tx.QueryRowContext(ctx, `SELECT room_id FROM seats WHERE id = ? FOR UPDATE`, s.ID).Scan(&roomID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSeatNotFound
		}
		return err
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE seats SET seat_type = ?, price_cents = ?, is_active = ? WHERE id = ?`,
		s.SeatType, s.PriceCents, s.IsActive, s.ID); err != nil {
		return err
	}
	s.RoomID = roomID
	return refreshCapacity(ctx, tx, roomID)
}

// Delete removes a seat that was never sold.  Sold seats return ErrConflict;
// deactivate them instead.
func (r *SeatRepo) Delete(ctx context.Context, id uint64) (err error) {
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
	var roomID uint64
	if err = tx.QueryRowContext(ctx, `SELECT room_id FROM seats WHERE id = ? FOR UPDATE`, id).Scan(&roomID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSeatNotFound
		}
		return err
	}
	var sold int
	if err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_seats WHERE seat_id = ?`, id).Scan(&sold); err != nil {
		return err
	}
	if sold > 0 {
		return ErrConflict
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM seats WHERE id = ?`, id); err != nil {
		return err
	}
	return refreshCapacity(ctx, tx, roomID)
}
