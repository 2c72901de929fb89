package model

// Seat types.  The type decides the price multiplier applied to a
// showtime's base price.
const (
	SeatStandard = "STANDARD"
	SeatVIP      = "VIP"
	SeatCouple   = "COUPLE"
)

// Seat statuses inside a showtime seat map.  SELECTED is client-side state
// and never produced by the server.
const (
	SeatAvailable = "AVAILABLE"
	SeatOccupied  = "OCCUPIED"
)

// Seat describes a physical seat in a room.  Seats are uniquely identified
// by their room, row label and seat number.  A PriceCents above zero
// overrides the price derived from the showtime.
type Seat struct {
	ID         uint64 `json:"id"`
	RoomID     uint64 `json:"room_id"`
	RowLabel   string `json:"row_label"`
	SeatNumber uint32 `json:"seat_number"`
	SeatType   string `json:"seat_type"`
	PriceCents int64  `json:"price_cents"`
	IsActive   bool   `json:"is_active"`
}

// ShowtimeSeat is one cell of a showtime seat map.
type ShowtimeSeat struct {
	SeatID     uint64 `json:"seat_id"`
	RowLabel   string `json:"row_label"`
	SeatNumber uint32 `json:"seat_number"`
	SeatType   string `json:"seat_type"`
	PriceCents int64  `json:"price_cents"`
	Status     string `json:"status"`
}
