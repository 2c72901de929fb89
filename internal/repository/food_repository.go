package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/cinema-ticket-booking/internal/model"
)

// ErrFoodNotFound is returned when a food item does not exist.
var ErrFoodNotFound = errors.New("food item not found")

// FoodRepo handles the food_items table.
type FoodRepo struct {
	db *sql.DB
}

func NewFoodRepo(db *sql.DB) *FoodRepo { return &FoodRepo{db: db} }

const foodColumns = `id, name, category, price_cents, image_url, is_available, created_at, updated_at`

func scanFood(row interface{ Scan(...any) error }) (*model.FoodItem, error) {
	var f model.FoodItem
	if err := row.Scan(&f.ID, &f.Name, &f.Category, &f.PriceCents, &f.ImageURL, &f.IsAvailable, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func collectFood(rows *sql.Rows) ([]*model.FoodItem, error) {
	defer rows.Close()
	out := make([]*model.FoodItem, 0)
	for rows.Next() {
		f, err := scanFood(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *FoodRepo) Create(ctx context.Context, f *model.FoodItem) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO food_items (name, category, price_cents, image_url, is_available) VALUES (?, ?, ?, ?, ?)`,
		f.Name, f.Category, f.PriceCents, f.ImageURL, f.IsAvailable)
	if err != nil {
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
	*f = *created
	return nil
}

func (r *FoodRepo) GetByID(ctx context.Context, id uint64) (*model.FoodItem, error) {
	f, err := scanFood(r.db.QueryRowContext(ctx, `SELECT `+foodColumns+` FROM food_items WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFoodNotFound
		}
		return nil, err
	}
	return f, nil
}

// List returns every item, including unavailable ones, for the admin screen.
func (r *FoodRepo) List(ctx context.Context) ([]*model.FoodItem, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+foodColumns+` FROM food_items ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	return collectFood(rows)
}

// ListAvailable returns what a customer can order, optionally narrowed to one category.
func (r *FoodRepo) ListAvailable(ctx context.Context, category string) ([]*model.FoodItem, error) {
	q := `SELECT ` + foodColumns + ` FROM food_items WHERE is_available = 1`
	var args []any
	if category != "" {
		q += ` AND category = ?`
		args = append(args, category)
	}
	rows, err := r.db.QueryContext(ctx, q+` ORDER BY category, name`, args...)
	if err != nil {
		return nil, err
	}
	return collectFood(rows)
}

// GetManyTx loads the available items with the given ids inside tx.
// Missing or unavailable ids are absent from the result.
func (r *FoodRepo) GetManyTx(ctx context.Context, tx *sql.Tx, ids []uint64) (map[uint64]model.FoodItem, error) {
	out := make(map[uint64]model.FoodItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT `+foodColumns+` FROM food_items WHERE is_available = 1 AND id IN (`+placeholders(len(ids))+`)`,
		uint64Args(ids)...)
	if err != nil {
		return nil, err
	}
	items, err := collectFood(rows)
	if err != nil {
		return nil, err
	}
	for _, f := range items {
		out[f.ID] = *f
	}
	return out, nil
}

func (r *FoodRepo) Update(ctx context.Context, f *model.FoodItem) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE food_items SET name = ?, category = ?, price_cents = ?, image_url = ?, is_available = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		f.Name, f.Category, f.PriceCents, f.ImageURL, f.IsAvailable, f.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, f.ID); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes an item.  Items referenced by orders yield ErrConflict;
// mark them unavailable instead.
func (r *FoodRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM food_items WHERE id = ?`, id)
	if err != nil {
		if isForeignKey(err) {
			return ErrConflict
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrFoodNotFound
	}
	return nil
}
