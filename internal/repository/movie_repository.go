package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/cinema-ticket-booking/internal/booking"
	"github.com/iliyamo/cinema-ticket-booking/internal/model"
)

// ErrMovieNotFound is returned when a movie cannot be found in the DB.
var ErrMovieNotFound = errors.New("movie not found")

const movieColumns = `id, title, description, poster_url, backdrop_url, rating, duration_min, genres, release_date, created_at, updated_at`

// MovieRepo encapsulates all database queries related to movies.
type MovieRepo struct {
	db *sql.DB
}

// NewMovieRepo constructs a MovieRepo with the provided DB handle.
func NewMovieRepo(db *sql.DB) *MovieRepo {
	return &MovieRepo{db: db}
}

// MovieFilter narrows List.  Search matches the title, Genre matches one
// entry of the comma separated genre column.
type MovieFilter struct {
	Search string
	Genre  string
	Page   Page
}

func scanMovie(row interface{ Scan(...any) error }) (*model.Movie, error) {
	var (
		m       model.Movie
		genres  string
		release sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.Title, &m.Description, &m.PosterURL, &m.BackdropURL, &m.Rating,
		&m.DurationMin, &genres, &release, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Genres = booking.SplitList(genres)
	m.Duration = booking.FormatDuration(m.DurationMin)
	if release.Valid {
		t := release.Time
		m.ReleaseDate = &t
	}
	return &m, nil
}

// Create inserts a new movie and reloads it so DB defaults are populated.
func (r *MovieRepo) Create(ctx context.Context, m *model.Movie) error {
	const q = `INSERT INTO movies (title, description, poster_url, backdrop_url, rating, duration_min, genres, release_date)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, m.Title, m.Description, m.PosterURL, m.BackdropURL, m.Rating,
		m.DurationMin, booking.JoinList(m.Genres), m.ReleaseDate)
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
	*m = *created
	return nil
}

// GetByID fetches a movie by its ID.  It returns ErrMovieNotFound if no row is found.
func (r *MovieRepo) GetByID(ctx context.Context, id uint64) (*model.Movie, error) {
	m, err := scanMovie(r.db.QueryRowContext(ctx, `SELECT `+movieColumns+` FROM movies WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMovieNotFound
		}
		return nil, err
	}
	return m, nil
}

// List returns one page of movies ordered by release date (newest first)
// together with the total number of matching rows.
func (r *MovieRepo) List(ctx context.Context, f MovieFilter) ([]*model.Movie, int, error) {
	var (
		where []string
		args  []any
	)
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, "title LIKE ?")
		args = append(args, "%"+s+"%")
	}
	if g := strings.TrimSpace(f.Genre); g != "" {
		where = append(where, "FIND_IN_SET(?, genres) > 0")
		args = append(args, g)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM movies`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	p := f.Page.Normalize()
	q := `SELECT ` + movieColumns + ` FROM movies` + clause + ` ORDER BY release_date DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, q, append(args, p.PageSize, p.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]*model.Movie, 0)
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Update overwrites every editable column.  It returns ErrMovieNotFound when
// the row does not exist.
func (r *MovieRepo) Update(ctx context.Context, m *model.Movie) error {
	const q = `UPDATE movies
	           SET title = ?, description = ?, poster_url = ?, backdrop_url = ?, rating = ?,
	               duration_min = ?, genres = ?, release_date = ?, updated_at = CURRENT_TIMESTAMP
	           WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, m.Title, m.Description, m.PosterURL, m.BackdropURL, m.Rating,
		m.DurationMin, booking.JoinList(m.Genres), m.ReleaseDate, m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, m.ID); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a movie.  Movies that still have showtimes cannot be
// removed and yield ErrConflict.
func (r *MovieRepo) Delete(ctx context.Context, id uint64) error {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM showtimes WHERE movie_id = ?`, id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrConflict
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM movies WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMovieNotFound
	}
	return nil
}
