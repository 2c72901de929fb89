package model

import "time"

// Cinema is a venue containing one or more rooms.
type Cinema struct {
	ID           uint64    `json:"id"`
	Name         string    `json:"name"`
	OpeningHours string    `json:"opening_hours"` // e.g. "09:00-23:30"
	Location     string    `json:"location"`
	PhoneNumbers []string  `json:"phone_numbers"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Room is a screening room inside a cinema.  Capacity follows the number of
// seats generated for it.
type Room struct {
	ID         uint64    `json:"id"`
	CinemaID   uint64    `json:"cinema_id"`
	RoomNumber string    `json:"room_number"`
	Capacity   uint32    `json:"capacity"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
