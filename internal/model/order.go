package model

import "time"

const (
	OrderPending   = "PENDING"
	OrderConfirmed = "CONFIRMED"
	OrderCancelled = "CANCELLED"
)

// Accepted payment methods.  Payment itself happens outside this service;
// the method is recorded on the order.
var PaymentMethods = map[string]bool{
	"CASH":          true,
	"CARD":          true,
	"MOMO":          true,
	"ZALOPAY":       true,
	"BANK_TRANSFER": true,
}

// Order is a booking: seats for one showtime plus optional food, an optional
// voucher and the server-computed price breakdown.
type Order struct {
	ID                uint64      `json:"id"`
	Code              string      `json:"code"`
	CustomerID        uint64      `json:"customer_id"`
	ShowtimeID        uint64      `json:"showtime_id"`
	VoucherID         *uint64     `json:"voucher_id,omitempty"`
	PaymentMethod     string      `json:"payment_method"`
	SeatSubtotalCents int64       `json:"seat_subtotal_cents"`
	FoodSubtotalCents int64       `json:"food_subtotal_cents"`
	DiscountCents     int64       `json:"discount_cents"`
	TotalPriceCents   int64       `json:"total_price_cents"`
	Status            string      `json:"status"`
	PaidAt            *time.Time  `json:"paid_at,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
	Seats             []OrderSeat `json:"seats"`
	Items             []OrderItem `json:"items"`
}

// OrderSeat is a seat sold under an order at the price quoted at checkout.
// Released seats belong to a cancelled order and are on sale again.
type OrderSeat struct {
	SeatID     uint64 `json:"seat_id"`
	RowLabel   string `json:"row_label,omitempty"`
	SeatNumber uint32 `json:"seat_number,omitempty"`
	SeatType   string `json:"seat_type,omitempty"`
	PriceCents int64  `json:"price_cents"`
	Released   bool   `json:"released,omitempty"`
}

// OrderItem is a food or drink line.
type OrderItem struct {
	FoodItemID uint64 `json:"food_item_id"`
	Name       string `json:"name,omitempty"`
	Quantity   uint32 `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

// OrderSummary is the list view of an order with the names a customer
// recognises.
type OrderSummary struct {
	ID              uint64    `json:"id"`
	Code            string    `json:"code"`
	CustomerID      uint64    `json:"customer_id"`
	CustomerEmail   string    `json:"customer_email"`
	ShowtimeID      uint64    `json:"showtime_id"`
	MovieTitle      string    `json:"movie_title"`
	CinemaName      string    `json:"cinema_name"`
	StartsAt        time.Time `json:"starts_at"`
	SeatCount       int       `json:"seat_count"`
	TotalPriceCents int64     `json:"total_price_cents"`
	PaymentMethod   string    `json:"payment_method"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}
