package model

import "time"

const (
	ShowtimeScheduled = "SCHEDULED"
	ShowtimeCancelled = "CANCELLED"
)

// Showtime is a scheduled screening of a movie in a specific room.
//
// Fields:
//
//	StartsAt/EndsAt – UTC interval; EndsAt defaults to StartsAt plus the
//	                  movie duration when not supplied.
//	Format          – 2D, 3D, IMAX or 4DX.
//	BasePriceCents  – price of a STANDARD seat without override.
type Showtime struct {
	ID             uint64    `json:"id"`
	CinemaID       uint64    `json:"cinema_id"`
	RoomID         uint64    `json:"room_id"`
	MovieID        uint64    `json:"movie_id"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	Format         string    `json:"format"`
	HasSubtitle    bool      `json:"has_subtitle"`
	IsDubbed       bool      `json:"is_dubbed"`
	BasePriceCents int64     `json:"base_price_cents"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ShowtimeDetail joins the names clients render next to a showtime.
type ShowtimeDetail struct {
	Showtime
	MovieTitle string `json:"movie_title"`
	CinemaName string `json:"cinema_name"`
	RoomNumber string `json:"room_number"`
}
