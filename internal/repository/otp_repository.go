package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/cinema-ticket-booking/internal/model"
)

// ErrOTPNotFound is returned when the user has no unused, unexpired code.
var ErrOTPNotFound = errors.New("no active one-time code")

// OTPRepo stores hashed one-time codes for the forgot-password flow.
type OTPRepo struct{ DB *sql.DB }

func NewOTPRepo(db *sql.DB) *OTPRepo { return &OTPRepo{DB: db} }

// Create stores a new code hash.  Earlier unused codes for the user are
// invalidated so only the most recent code works.
func (r *OTPRepo) Create(ctx context.Context, o *model.PasswordOTP) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
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
	if _, err = tx.ExecContext(ctx,
		"UPDATE password_otps SET used_at=UTC_TIMESTAMP() WHERE user_id=? AND used_at IS NULL", o.UserID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO password_otps (user_id, code_hash, expires_at) VALUES (?,?,?)",
		o.UserID, o.CodeHash, o.ExpiresAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	return nil
}

// LatestActive returns the user's newest code that is unused and not expired.
func (r *OTPRepo) LatestActive(ctx context.Context, userID uint64, now time.Time) (*model.PasswordOTP, error) {
	var (
		o    model.PasswordOTP
		used sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, user_id, code_hash, expires_at, attempts, used_at, created_at
		 FROM password_otps
		 WHERE user_id=? AND used_at IS NULL AND expires_at > ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`, userID, now.UTC()).
		Scan(&o.ID, &o.UserID, &o.CodeHash, &o.ExpiresAt, &o.Attempts, &used, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOTPNotFound
		}
		return nil, err
	}
	if used.Valid {
		t := used.Time
		o.UsedAt = &t
	}
	return &o, nil
}

// IncrementAttempts records a failed verification and returns the new count.
func (r *OTPRepo) IncrementAttempts(ctx context.Context, id uint64) (uint32, error) {
	if _, err := r.DB.ExecContext(ctx, "UPDATE password_otps SET attempts=attempts+1 WHERE id=?", id); err != nil {
		return 0, err
	}
	var n uint32
	err := r.DB.QueryRowContext(ctx, "SELECT attempts FROM password_otps WHERE id=?", id).Scan(&n)
	return n, err
}

// MarkUsed consumes a code.  It returns ErrOTPNotFound when the code was
// already used, which makes a reset single-shot under concurrency.
func (r *OTPRepo) MarkUsed(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE password_otps SET used_at=UTC_TIMESTAMP() WHERE id=? AND used_at IS NULL", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOTPNotFound
	}
	return nil
}
