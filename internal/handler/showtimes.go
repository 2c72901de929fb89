package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-ticket-booking/internal/model"
	"github.com/iliyamo/cinema-ticket-booking/internal/repository"
)

var showtimeFormats = map[string]bool{"2D": true, "3D": true, "IMAX": true, "4DX": true}

// ShowtimeHandler exposes showtime scheduling and the per-showtime seat map.
type ShowtimeHandler struct {
	Showtimes *repository.ShowtimeRepo
	Movies    *repository.MovieRepo
	// OnCancel releases the orders of a showtime that has been cancelled.
	OnCancel func(ctx context.Context, showtimeID uint64) (int, error)
	Now      func() time.Time
}

func NewShowtimeHandler(s *repository.ShowtimeRepo, m *repository.MovieRepo) *ShowtimeHandler {
	return &ShowtimeHandler{Showtimes: s, Movies: m, Now: time.Now}
}

// showtimeReq is the create/update body.  Times are RFC3339; EndsAt may be
// omitted and is then derived from the movie's duration.
type showtimeReq struct {
	CinemaID       uint64    `json:"cinema_id"`
	RoomID         uint64    `json:"room_id"`
	MovieID        uint64    `json:"movie_id"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	Format         string    `json:"format"`
	HasSubtitle    *bool     `json:"has_subtitle"`
	IsDubbed       *bool     `json:"is_dubbed"`
	BasePriceCents int64     `json:"base_price_cents"`
	Status         string    `json:"status"`
}

func showtimeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrShowtimeNotFound):
		return fail(c, http.StatusNotFound, "showtime not found", nil)
	case errors.Is(err, repository.ErrShowtimeOverlap):
		return fail(c, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, repository.ErrRoomNotInCinema):
		return badRequest(c, err.Error())
	case errors.Is(err, repository.ErrRoomNotFound):
		return badRequest(c, "room not found")
	case errors.Is(err, repository.ErrMovieNotFound):
		return badRequest(c, "movie not found")
	case errors.Is(err, repository.ErrConflict):
		return fail(c, http.StatusConflict, "showtime has orders; cancel it instead", nil)
	}
	return dbError(c, err)
}

// List handles GET /api/showtimes?movie_id=&cinema_id=&room_id=&date=.
// ?upcoming=true hides past and cancelled showtimes.
func (h *ShowtimeHandler) List(c echo.Context) error {
	f := repository.ShowtimeFilter{
		MovieID:  queryID(c, "movie_id"),
		CinemaID: queryID(c, "cinema_id"),
		RoomID:   queryID(c, "room_id"),
		Upcoming: c.QueryParam("upcoming") == "true",
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
	list, err := h.Showtimes.List(ctx, f)
	if err != nil {
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *ShowtimeHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid showtime id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	d, err := h.Showtimes.GetDetail(ctx, id)
	if err != nil {
		return showtimeError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// SeatMap handles GET /api/showtimes/:id/seats.
func (h *ShowtimeHandler) SeatMap(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid showtime id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	seats, err := h.Showtimes.SeatMap(ctx, id)
	if err != nil {
		return showtimeError(c, err)
	}
	return c.JSON(http.StatusOK, seats)
}

// Create handles POST /api/showtimes.
func (h *ShowtimeHandler) Create(c echo.Context) error {
	var req showtimeReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.CinemaID == 0 || req.RoomID == 0 || req.MovieID == 0 {
		return badRequest(c, "cinema_id, room_id and movie_id are required")
	}
	if req.StartsAt.IsZero() {
		return badRequest(c, "starts_at is required")
	}
	if req.BasePriceCents <= 0 {
		return badRequest(c, "base_price_cents must be positive")
	}
	format := strings.ToUpper(strings.TrimSpace(req.Format))
	if format == "" {
		format = "2D"
	}
	if !showtimeFormats[format] {
		return badRequest(c, "format must be one of 2D, 3D, IMAX, 4DX")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()
	ends := req.EndsAt
	if ends.IsZero() {
		m, err := h.Movies.GetByID(ctx, req.MovieID)
		if err != nil {
			return showtimeError(c, err)
		}
		ends = req.StartsAt.Add(time.Duration(m.DurationMin) * time.Minute)
	}
	if !ends.After(req.StartsAt) {
		return badRequest(c, "ends_at must be after starts_at")
	}
	s := &model.Showtime{
		CinemaID:       req.CinemaID,
		RoomID:         req.RoomID,
		MovieID:        req.MovieID,
		StartsAt:       req.StartsAt.UTC(),
		EndsAt:         ends.UTC(),
		Format:         format,
		HasSubtitle:    req.HasSubtitle != nil && *req.HasSubtitle,
		IsDubbed:       req.IsDubbed != nil && *req.IsDubbed,
		BasePriceCents: req.BasePriceCents,
		Status:         model.ShowtimeScheduled,
	}
	if err := h.Showtimes.Create(ctx, s); err != nil {
		return showtimeError(c, err)
	}
	return c.JSON(http.StatusCreated, s)
}

// Update handles PUT /api/showtimes/:id.  Room, movie and cinema cannot be
// changed; omitted fields keep their value.
func (h *ShowtimeHandler) Update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid showtime id")
	}
	var req showtimeReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	s, err := h.Showtimes.GetByID(ctx, id)
	if err != nil {
		return showtimeError(c, err)
	}
	if !req.StartsAt.IsZero() {
		dur := s.EndsAt.Sub(s.StartsAt)
		s.StartsAt = req.StartsAt.UTC()
		if req.EndsAt.IsZero() {
			s.EndsAt = s.StartsAt.Add(dur)
		}
	}
	if !req.EndsAt.IsZero() {
		s.EndsAt = req.EndsAt.UTC()
	}
	if !s.EndsAt.After(s.StartsAt) {
		return badRequest(c, "ends_at must be after starts_at")
	}
	if f := strings.ToUpper(strings.TrimSpace(req.Format)); f != "" {
		if !showtimeFormats[f] {
			return badRequest(c, "format must be one of 2D, 3D, IMAX, 4DX")
		}
		s.Format = f
	}
	if req.HasSubtitle != nil {
		s.HasSubtitle = *req.HasSubtitle
	}
	if req.IsDubbed != nil {
		s.IsDubbed = *req.IsDubbed
	}
	if req.BasePriceCents > 0 {
		s.BasePriceCents = req.BasePriceCents
	}
	if st := strings.ToUpper(strings.TrimSpace(req.Status)); st != "" {
		if st != model.ShowtimeScheduled && st != model.ShowtimeCancelled {
			return badRequest(c, "invalid status")
		}
		s.Status = st
	}
	if err := h.Showtimes.Update(ctx, s); err != nil {
		return showtimeError(c, err)
	}
	if s.Status == model.ShowtimeCancelled && h.OnCancel != nil {
		if _, err := h.OnCancel(ctx, s.ID); err != nil {
			return dbError(c, err)
		}
	}
	return c.JSON(http.StatusOK, s)
}

func (h *ShowtimeHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid showtime id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Showtimes.Delete(ctx, id); err != nil {
		return showtimeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
