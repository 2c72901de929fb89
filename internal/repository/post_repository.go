package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/cinema-ticket-booking/internal/model"
)

// ErrPostNotFound is returned when a post does not exist (or is hidden from
// the caller).
var ErrPostNotFound = errors.New("post not found")

// PostRepo handles news and promotion posts.
type PostRepo struct {
	db *sql.DB
}

func NewPostRepo(db *sql.DB) *PostRepo { return &PostRepo{db: db} }

const postColumns = `id, title, content, image_url, author_id, published, created_at, updated_at`

func scanPost(row interface{ Scan(...any) error }) (*model.Post, error) {
	var p model.Post
	if err := row.Scan(&p.ID, &p.Title, &p.Content, &p.ImageURL, &p.AuthorID, &p.Published, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostRepo) Create(ctx context.Context, p *model.Post) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO posts (title, content, image_url, author_id, published) VALUES (?, ?, ?, ?, ?)`,
		p.Title, p.Content, p.ImageURL, p.AuthorID, p.Published)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByID(ctx, uint64(id), true)
	if err != nil {
		return err
	}
	*p = *created
	return nil
}

// GetByID fetches a post.  Unpublished posts are only returned when
// includeDrafts is set.
func (r *PostRepo) GetByID(ctx context.Context, id uint64, includeDrafts bool) (*model.Post, error) {
	q := `SELECT ` + postColumns + ` FROM posts WHERE id = ?`
	if !includeDrafts {
		q += ` AND published = 1`
	}
	p, err := scanPost(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return p, nil
}

// List returns posts newest first with the total count.
func (r *PostRepo) List(ctx context.Context, includeDrafts bool, page Page) ([]*model.Post, int, error) {
	clause := ""
	if !includeDrafts {
		clause = ` WHERE published = 1`
	}
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`+clause).Scan(&total); err != nil {
		return nil, 0, err
	}
	p := page.Normalize()
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts`+clause+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		p.PageSize, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]*model.Post, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, post)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *PostRepo) Update(ctx context.Context, p *model.Post) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE posts SET title = ?, content = ?, image_url = ?, published = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		p.Title, p.Content, p.ImageURL, p.Published, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, p.ID, true); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPostNotFound
	}
	return nil
}
