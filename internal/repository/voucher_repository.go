package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/cinema-ticket-booking/internal/model"
)

var (
	// ErrVoucherNotFound is returned when no voucher matches an id or code.
	ErrVoucherNotFound = errors.New("voucher not found")
	// ErrVoucherCodeTaken is returned on a duplicate voucher code.
	ErrVoucherCodeTaken = errors.New("voucher code already exists")
	// ErrVoucherUnavailable is returned when a redeem races past the usage
	// limit or the voucher was deactivated in between.
	ErrVoucherUnavailable = errors.New("voucher is no longer available")
)

// VoucherRepo handles the vouchers table.
type VoucherRepo struct {
	db *sql.DB
}

func NewVoucherRepo(db *sql.DB) *VoucherRepo { return &VoucherRepo{db: db} }

const voucherColumns = `id, code, discount_type, discount_amount, max_discount_cents, min_order_cents,
	used_count, max_usage, is_active, expires_at, created_at, updated_at`

func scanVoucher(row interface{ Scan(...any) error }) (*model.Voucher, error) {
	var (
		v       model.Voucher
		expires sql.NullTime
	)
	if err := row.Scan(&v.ID, &v.Code, &v.DiscountType, &v.DiscountAmount, &v.MaxDiscountCents, &v.MinOrderCents,
		&v.UsedCount, &v.MaxUsage, &v.IsActive, &expires, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	if expires.Valid {
		t := expires.Time
		v.ExpiresAt = &t
	}
	return &v, nil
}

// NormalizeCode trims and upper-cases a voucher code.  Codes are stored
// normalised so lookups are case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *VoucherRepo) Create(ctx context.Context, v *model.Voucher) error {
	v.Code = NormalizeCode(v.Code)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO vouchers (code, discount_type, discount_amount, max_discount_cents, min_order_cents, max_usage, is_active, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.Code, v.DiscountType, v.DiscountAmount, v.MaxDiscountCents, v.MinOrderCents, v.MaxUsage, v.IsActive, v.ExpiresAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrVoucherCodeTaken
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
	*v = *created
	return nil
}

func (r *VoucherRepo) GetByID(ctx context.Context, id uint64) (*model.Voucher, error) {
	v, err := scanVoucher(r.db.QueryRowContext(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVoucherNotFound
		}
		return nil, err
	}
	return v, nil
}

// GetByCode looks a voucher up by its normalised code.
func (r *VoucherRepo) GetByCode(ctx context.Context, code string) (*model.Voucher, error) {
	return r.getByCode(ctx, r.db, code, false)
}

// GetByCodeTx is GetByCode inside tx with the row locked.
func (r *VoucherRepo) GetByCodeTx(ctx context.Context, tx *sql.Tx, code string) (*model.Voucher, error) {
	return r.getByCode(ctx, tx, code, true)
}

func (r *VoucherRepo) getByCode(ctx context.Context, q querier, code string, lock bool) (*model.Voucher, error) {
	stmt := `SELECT ` + voucherColumns + ` FROM vouchers WHERE code = ?`
	if lock {
		stmt += ` FOR UPDATE`
	}
	v, err := scanVoucher(q.QueryRowContext(ctx, stmt, NormalizeCode(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVoucherNotFound
		}
		return nil, err
	}
	return v, nil
}

func (r *VoucherRepo) List(ctx context.Context) ([]*model.Voucher, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+voucherColumns+` FROM vouchers ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.Voucher, 0)
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Update overwrites the editable fields.  used_count is owned by
// RedeemTx/ReleaseTx and is never written here.
func (r *VoucherRepo) Update(ctx context.Context, v *model.Voucher) error {
	v.Code = NormalizeCode(v.Code)
	res, err := r.db.ExecContext(ctx,
		`UPDATE vouchers SET code = ?, discount_type = ?, discount_amount = ?, max_discount_cents = ?, min_order_cents = ?,
		        max_usage = ?, is_active = ?, expires_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		v.Code, v.DiscountType, v.DiscountAmount, v.MaxDiscountCents, v.MinOrderCents, v.MaxUsage, v.IsActive, v.ExpiresAt, v.ID)
	if err != nil {
		if isDuplicate(err) {
			return ErrVoucherCodeTaken
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, v.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *VoucherRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM vouchers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrVoucherNotFound
	}
	return nil
}

// RedeemTx consumes one use of the voucher.  The increment is conditional
// so two concurrent orders can never push used_count past max_usage.
func (r *VoucherRepo) RedeemTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE vouchers SET used_count = used_count + 1
		 WHERE id = ? AND is_active = 1 AND used_count < max_usage`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrVoucherUnavailable
	}
	return nil
}

// ReleaseTx gives back one use after an order is cancelled.
func (r *VoucherRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE vouchers SET used_count = used_count - 1 WHERE id = ? AND used_count > 0`, id)
	return err
}
