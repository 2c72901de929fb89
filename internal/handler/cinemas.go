package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-ticket-booking/internal/booking"
	"github.com/iliyamo/cinema-ticket-booking/internal/model"
	"github.com/iliyamo/cinema-ticket-booking/internal/repository"
)

// maxGridSide bounds seat generation so one request cannot create an
// unbounded number of rows.
const maxGridSide = 50

// CinemaHandler manages cinemas, their rooms and the seats inside them.
type CinemaHandler struct {
	Cinemas *repository.CinemaRepo
	Rooms   *repository.RoomRepo
	Seats   *repository.SeatRepo
}

func NewCinemaHandler(c *repository.CinemaRepo, r *repository.RoomRepo, s *repository.SeatRepo) *CinemaHandler {
	return &CinemaHandler{Cinemas: c, Rooms: r, Seats: s}
}

type cinemaReq struct {
	Name         string   `json:"name"`
	OpeningHours string   `json:"opening_hours"`
	Location     string   `json:"location"`
	PhoneNumbers []string `json:"phone_numbers"`
}

type roomReq struct {
	RoomNumber string `json:"room_number"`
}

// generateSeatsReq describes a rectangular grid.  VIPRows and CoupleRows
// are row labels (e.g. "E", "F") that get the matching seat type.
type generateSeatsReq struct {
	Rows       int      `json:"rows"`
	Cols       int      `json:"cols"`
	VIPRows    []string `json:"vip_rows"`
	CoupleRows []string `json:"couple_rows"`
}

type seatReq struct {
	SeatType   string `json:"seat_type"`
	PriceCents *int64 `json:"price_cents"`
	IsActive   *bool  `json:"is_active"`
}

func cinemaNotFound(c echo.Context, err error) error {
	if errors.Is(err, repository.ErrCinemaNotFound) {
		return fail(c, http.StatusNotFound, "cinema not found", nil)
	}
	return dbError(c, err)
}

func roomNotFound(c echo.Context, err error) error {
	if errors.Is(err, repository.ErrRoomNotFound) {
		return fail(c, http.StatusNotFound, "room not found", nil)
	}
	return dbError(c, err)
}

// ----- cinemas -----

func (h *CinemaHandler) List(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()
	list, err := h.Cinemas.ListAll(ctx)
	if err != nil {
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *CinemaHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid cinema id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	cin, err := h.Cinemas.GetByID(ctx, id)
	if err != nil {
		return cinemaNotFound(c, err)
	}
	return c.JSON(http.StatusOK, cin)
}

func (h *CinemaHandler) Create(c echo.Context) error {
	var req cinemaReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	cin := &model.Cinema{
		Name:         strings.TrimSpace(req.Name),
		OpeningHours: strings.TrimSpace(req.OpeningHours),
		Location:     strings.TrimSpace(req.Location),
		PhoneNumbers: booking.SplitList(booking.JoinList(req.PhoneNumbers)),
	}
	if cin.Name == "" {
		return badRequest(c, "name is required")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Cinemas.Create(ctx, cin); err != nil {
		if errors.Is(err, repository.ErrCinemaNameTaken) {
			return fail(c, http.StatusConflict, err.Error(), nil)
		}
		return dbError(c, err)
	}
	return c.JSON(http.StatusCreated, cin)
}

func (h *CinemaHandler) Update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid cinema id")
	}
	var req cinemaReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	cin, err := h.Cinemas.GetByID(ctx, id)
	if err != nil {
		return cinemaNotFound(c, err)
	}
	if n := strings.TrimSpace(req.Name); n != "" {
		cin.Name = n
	}
	if v := strings.TrimSpace(req.OpeningHours); v != "" {
		cin.OpeningHours = v
	}
	if v := strings.TrimSpace(req.Location); v != "" {
		cin.Location = v
	}
	if req.PhoneNumbers != nil {
		cin.PhoneNumbers = booking.SplitList(booking.JoinList(req.PhoneNumbers))
	}
	if err := h.Cinemas.Update(ctx, cin); err != nil {
		if errors.Is(err, repository.ErrCinemaNameTaken) {
			return fail(c, http.StatusConflict, err.Error(), nil)
		}
		return cinemaNotFound(c, err)
	}
	return c.JSON(http.StatusOK, cin)
}

// Delete removes a cinema with its rooms and seats.  Cinemas with orders
// are refused.
func (h *CinemaHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid cinema id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Cinemas.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fail(c, http.StatusConflict, "cinema has orders", nil)
		}
		return cinemaNotFound(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ----- rooms -----

// ListRooms handles GET /api/cinemas/:id/rooms.
func (h *CinemaHandler) ListRooms(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid cinema id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if _, err := h.Cinemas.GetByID(ctx, id); err != nil {
		return cinemaNotFound(c, err)
	}
	rooms, err := h.Rooms.ListByCinema(ctx, id)
	if err != nil {
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, rooms)
}

// CreateRoom handles POST /api/cinemas/:id/rooms.
func (h *CinemaHandler) CreateRoom(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid cinema id")
	}
	var req roomReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	rm := &model.Room{CinemaID: id, RoomNumber: strings.TrimSpace(req.RoomNumber)}
	if rm.RoomNumber == "" {
		return badRequest(c, "room_number is required")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Rooms.Create(ctx, rm); err != nil {
		if errors.Is(err, repository.ErrRoomNumberTaken) {
			return fail(c, http.StatusConflict, err.Error(), nil)
		}
		return cinemaNotFound(c, err)
	}
	return c.JSON(http.StatusCreated, rm)
}

// UpdateRoom handles PUT /api/rooms/:id.  Only the room number is editable;
// capacity follows the seats.
func (h *CinemaHandler) UpdateRoom(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	var req roomReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	number := strings.TrimSpace(req.RoomNumber)
	if number == "" {
		return badRequest(c, "room_number is required")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Rooms.UpdateNumber(ctx, id, number); err != nil {
		if errors.Is(err, repository.ErrRoomNumberTaken) {
			return fail(c, http.StatusConflict, err.Error(), nil)
		}
		return roomNotFound(c, err)
	}
	rm, err := h.Rooms.GetByID(ctx, id)
	if err != nil {
		return roomNotFound(c, err)
	}
	return c.JSON(http.StatusOK, rm)
}

func (h *CinemaHandler) DeleteRoom(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Rooms.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fail(c, http.StatusConflict, "room has showtimes", nil)
		}
		return roomNotFound(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ----- seats -----

// seatGrid lays out rows×cols seats labelled A1, A2, ... and types the rows
// listed in vip/couple accordingly.  Couple wins when a row is in both.
func seatGrid(req generateSeatsReq) ([]model.Seat, error) {
	if req.Rows < 1 || req.Cols < 1 || req.Rows > maxGridSide || req.Cols > maxGridSide {
		return nil, errors.New("rows and cols must be between 1 and 50")
	}
	types := make(map[string]string)
	for _, r := range req.VIPRows {
		types[strings.ToUpper(strings.TrimSpace(r))] = model.SeatVIP
	}
	for _, r := range req.CoupleRows {
		types[strings.ToUpper(strings.TrimSpace(r))] = model.SeatCouple
	}
	seats := make([]model.Seat, 0, req.Rows*req.Cols)
	for i := 0; i < req.Rows; i++ {
		label := booking.RowLabel(i)
		st, ok := types[label]
		if !ok {
			st = model.SeatStandard
		}
		for n := 1; n <= req.Cols; n++ {
			seats = append(seats, model.Seat{RowLabel: label, SeatNumber: uint32(n), SeatType: st, IsActive: true})
		}
	}
	return seats, nil
}

// GenerateSeats handles POST /api/rooms/:id/seats/generate.
func (h *CinemaHandler) GenerateSeats(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	var req generateSeatsReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	seats, err := seatGrid(req)
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Seats.CreateBulk(ctx, id, seats); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return fail(c, http.StatusConflict, "room already has seats at those positions", nil)
		}
		return roomNotFound(c, err)
	}
	out, err := h.Seats.ListByRoom(ctx, id)
	if err != nil {
		return dbError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

// ListSeats handles GET /api/rooms/:id/seats.
func (h *CinemaHandler) ListSeats(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if _, err := h.Rooms.GetByID(ctx, id); err != nil {
		return roomNotFound(c, err)
	}
	seats, err := h.Seats.ListByRoom(ctx, id)
	if err != nil {
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, seats)
}

// UpdateSeat handles PUT /api/seats/:id.  A price of 0 clears the override.
func (h *CinemaHandler) UpdateSeat(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid seat id")
	}
	var req seatReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	s, err := h.Seats.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSeatNotFound) {
			return fail(c, http.StatusNotFound, "seat not found", nil)
		}
		return dbError(c, err)
	}
	if t := strings.ToUpper(strings.TrimSpace(req.SeatType)); t != "" {
		if !booking.ValidSeatType(t) {
			return badRequest(c, "invalid seat_type")
		}
		s.SeatType = t
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return badRequest(c, "price_cents must not be negative")
		}
		s.PriceCents = *req.PriceCents
	}
	if req.IsActive != nil {
		s.IsActive = *req.IsActive
	}
	if err := h.Seats.Update(ctx, s); err != nil {
		if errors.Is(err, repository.ErrSeatNotFound) {
			return fail(c, http.StatusNotFound, "seat not found", nil)
		}
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *CinemaHandler) DeleteSeat(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid seat id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Seats.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrSeatNotFound):
			return fail(c, http.StatusNotFound, "seat not found", nil)
		case errors.Is(err, repository.ErrConflict):
			return fail(c, http.StatusConflict, "seat has been sold; deactivate it instead", nil)
		}
		return dbError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
