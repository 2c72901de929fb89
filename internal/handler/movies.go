package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-ticket-booking/internal/booking"
	"github.com/iliyamo/cinema-ticket-booking/internal/model"
	"github.com/iliyamo/cinema-ticket-booking/internal/repository"
)

// MovieHandler handles HTTP requests related to movies.  Reads are public;
// writes are mounted under the admin group.
type MovieHandler struct {
	Movies    *repository.MovieRepo
	Showtimes *repository.ShowtimeRepo
	Now       func() time.Time
}

// NewMovieHandler constructs a MovieHandler with the given repositories.
func NewMovieHandler(m *repository.MovieRepo, s *repository.ShowtimeRepo) *MovieHandler {
	return &MovieHandler{Movies: m, Showtimes: s, Now: time.Now}
}

// movieReq is the body for create and update.  Genres may be sent either as
// a list or as a comma separated string.
type movieReq struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	PosterURL   string   `json:"poster_url"`
	BackdropURL string   `json:"backdrop_url"`
	Rating      *float64 `json:"rating"`
	DurationMin uint32   `json:"duration_min"`
	Genres      []string `json:"genres"`
	GenreList   string   `json:"genre"`
	ReleaseDate string   `json:"release_date"`
}

// apply copies the request onto m.  When partial is true empty fields keep
// m's current values.
func (req movieReq) apply(m *model.Movie, partial bool) error {
	if t := strings.TrimSpace(req.Title); t != "" || !partial {
		m.Title = t
	}
	if req.Description != "" || !partial {
		m.Description = req.Description
	}
	if u := strings.TrimSpace(req.PosterURL); u != "" || !partial {
		m.PosterURL = u
	}
	if u := strings.TrimSpace(req.BackdropURL); u != "" || !partial {
		m.BackdropURL = u
	}
	if req.Rating != nil {
		if *req.Rating < 0 || *req.Rating > 10 {
			return errors.New("rating must be between 0 and 10")
		}
		m.Rating = *req.Rating
	}
	if req.DurationMin > 0 {
		m.DurationMin = req.DurationMin
	}
	switch {
	case len(req.Genres) > 0:
		m.Genres = booking.SplitList(booking.JoinList(req.Genres))
	case req.GenreList != "":
		m.Genres = booking.SplitList(req.GenreList)
	}
	if req.ReleaseDate != "" {
		d, err := parseDate(req.ReleaseDate)
		if err != nil {
			return errors.New("release_date must be YYYY-MM-DD")
		}
		m.ReleaseDate = &d
	}
	if m.Title == "" {
		return errors.New("title is required")
	}
	if m.DurationMin == 0 {
		return errors.New("duration_min must be positive")
	}
	m.Duration = booking.FormatDuration(m.DurationMin)
	return nil
}

// List handles GET /api/movies.  Supports ?q=, ?genre=, ?page=, ?page_size=.
func (h *MovieHandler) List(c echo.Context) error {
	p := pageFrom(c)
	ctx, cancel := dbCtx(c)
	defer cancel()
	movies, total, err := h.Movies.List(ctx, repository.MovieFilter{
		Search: c.QueryParam("q"),
		Genre:  c.QueryParam("genre"),
		Page:   p,
	})
	if err != nil {
		return dbError(c, err)
	}
	return paged(c, movies, total, p)
}

// Get handles GET /api/movies/:id.
func (h *MovieHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid movie id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	m, err := h.Movies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrMovieNotFound) {
			return fail(c, http.StatusNotFound, "movie not found", nil)
		}
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// ListShowtimes handles GET /api/movies/:id/showtimes: upcoming scheduled
// screenings, optionally narrowed with ?cinema_id= and ?date=.
func (h *MovieHandler) ListShowtimes(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid movie id")
	}
	f := repository.ShowtimeFilter{
		MovieID:  id,
		CinemaID: queryID(c, "cinema_id"),
		Upcoming: true,
		Now:      h.Now(),
	}
	if d := c.QueryParam("date"); d != "" {
		t, err := parseDate(d)
		if err != nil {
			return badRequest(c, "date must be YYYY-MM-DD")
		}
		f.Date = &t
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if _, err := h.Movies.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrMovieNotFound) {
			return fail(c, http.StatusNotFound, "movie not found", nil)
		}
		return dbError(c, err)
	}
	list, err := h.Showtimes.List(ctx, f)
	if err != nil {
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Create handles POST /api/movies.
func (h *MovieHandler) Create(c echo.Context) error {
	var req movieReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	m := &model.Movie{}
	if err := req.apply(m, false); err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Movies.Create(ctx, m); err != nil {
		return dbError(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

// Update handles PUT /api/movies/:id.  Fields left empty keep their value.
func (h *MovieHandler) Update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid movie id")
	}
	var req movieReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	m, err := h.Movies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrMovieNotFound) {
			return fail(c, http.StatusNotFound, "movie not found", nil)
		}
		return dbError(c, err)
	}
	if err := req.apply(m, true); err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.Movies.Update(ctx, m); err != nil {
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// Delete handles DELETE /api/movies/:id.
func (h *MovieHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid movie id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Movies.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrMovieNotFound):
			return fail(c, http.StatusNotFound, "movie not found", nil)
		case errors.Is(err, repository.ErrConflict):
			return fail(c, http.StatusConflict, "movie has showtimes", nil)
		}
		return dbError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
