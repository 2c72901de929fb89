package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/cinema-ticket-booking/internal/booking"
	"github.com/iliyamo/cinema-ticket-booking/internal/model"
	"github.com/iliyamo/cinema-ticket-booking/internal/utils"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailExists  = errors.New("email already exists")
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = `id, name, email, phone, password_hash, role, membership_level, total_spent_cents,
	total_orders, is_active, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash, &u.Role, &u.MembershipLevel,
		&u.TotalSpentCents, &u.TotalOrders, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// NormalizeEmail lower-cases and trims an address before storage or lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create hashes password with the given bcrypt cost and inserts the user.
// Role defaults to CUSTOMER.
func (r *UserRepo) Create(ctx context.Context, u *model.User, password string, cost int) error {
	u.Email = NormalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = model.RoleCustomer
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (name, email, phone, password_hash, role) VALUES (?,?,?,?,?)",
		strings.TrimSpace(u.Name), u.Email, strings.TrimSpace(u.Phone), hash, u.Role)
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
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
	*u = *created
	return nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// UserFilter narrows List.  Search matches name, email or phone.
type UserFilter struct {
	Role   string
	Search string
	Page   Page
}

// List returns one page of users, newest first, with the total count.
func (r *UserRepo) List(ctx context.Context, f UserFilter) ([]*model.User, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Role != "" {
		where = append(where, "role = ?")
		args = append(args, f.Role)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, "(name LIKE ? OR email LIKE ? OR phone LIKE ?)")
		like := "%" + s + "%"
		args = append(args, like, like, like)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users"+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	p := f.Page.Normalize()
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users"+clause+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, p.PageSize, p.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]*model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// UpdateProfile changes the self-service fields: name, email and phone.
func (r *UserRepo) UpdateProfile(ctx context.Context, u *model.User) error {
	u.Email = NormalizeEmail(u.Email)
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET name=?, email=?, phone=?, updated_at=CURRENT_TIMESTAMP WHERE id=?",
		strings.TrimSpace(u.Name), u.Email, strings.TrimSpace(u.Phone), u.ID)
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, u.ID); err != nil {
			return err
		}
	}
	return nil
}

// UpdateAdmin changes the fields only an admin may touch in addition to the
// profile: role, active flag and membership level.
func (r *UserRepo) UpdateAdmin(ctx context.Context, u *model.User) error {
	u.Email = NormalizeEmail(u.Email)
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET name=?, email=?, phone=?, role=?, is_active=?, membership_level=?, updated_at=CURRENT_TIMESTAMP
		 WHERE id=?`,
		strings.TrimSpace(u.Name), u.Email, strings.TrimSpace(u.Phone), u.Role, u.IsActive, u.MembershipLevel, u.ID)
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, u.ID); err != nil {
			return err
		}
	}
	return nil
}

// UpdatePassword stores a new bcrypt hash for the user.
func (r *UserRepo) UpdatePassword(ctx context.Context, userID uint64, password string, cost int) error {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, updated_at=CURRENT_TIMESTAMP WHERE id=?", hash, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes a user.  Users with orders or posts yield ErrConflict;
// deactivate them instead.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		if isForeignKey(err) {
			return ErrConflict
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AddSpendTx adjusts a customer's cumulative spend and order count inside tx
// and recomputes the membership tier from the new total.  Negative deltas
// reverse a cancelled confirmed order; totals never drop below zero.  It
// returns the resulting tier.
func (r *UserRepo) AddSpendTx(ctx context.Context, tx *sql.Tx, userID uint64, spendDelta int64, ordersDelta int, th booking.Thresholds) (string, error) {
	var (
		spent  int64
		orders int64
	)
	err := tx.QueryRowContext(ctx,
		"SELECT total_spent_cents, total_orders FROM users WHERE id=? FOR UPDATE", userID).Scan(&spent, &orders)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	spent += spendDelta
	if spent < 0 {
		spent = 0
	}
	orders += int64(ordersDelta)
	if orders < 0 {
		orders = 0
	}
	tier := th.Tier(spent)
	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET total_spent_cents=?, total_orders=?, membership_level=?, updated_at=CURRENT_TIMESTAMP WHERE id=?",
		spent, orders, tier, userID); err != nil {
		return "", err
	}
	return tier, nil
}

// EnsureAdmin creates the bootstrap admin when no user with that email
// exists.  It reports whether a row was created.
func (r *UserRepo) EnsureAdmin(ctx context.Context, email, password string, cost int) (bool, error) {
	if _, err := r.GetByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return false, err
	}
	u := &model.User{Name: "Administrator", Email: email, Role: model.RoleAdmin}
	if err := r.Create(ctx, u, password, cost); err != nil {
		if errors.Is(err, ErrEmailExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
