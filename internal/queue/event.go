// Package queue defines the message payloads exchanged over RabbitMQ and the
// background consumer that processes them.
package queue

// Queue names.  Both are durable and use the default exchange.
const (
	QueueOrderConfirmed = "order.confirmed"
	QueuePasswordReset  = "auth.password_reset"
)

// OrderConfirmedEvent is published after an order is paid.  It carries
// enough for consumers to log or notify without querying the database.
type OrderConfirmedEvent struct {
	OrderID         uint64   `json:"order_id"`
	OrderCode       string   `json:"order_code"`
	CustomerID      uint64   `json:"customer_id"`
	CustomerEmail   string   `json:"customer_email"`
	ShowtimeID      uint64   `json:"showtime_id"`
	MovieTitle      string   `json:"movie_title"`
	CinemaName      string   `json:"cinema_name"`
	RoomNumber      string   `json:"room_number"`
	StartsAt        string   `json:"starts_at"`
	Seats           []string `json:"seats"`
	TotalPriceCents int64    `json:"total_price_cents"`
	PaymentMethod   string   `json:"payment_method"`
	MembershipLevel string   `json:"membership_level"`
	ConfirmedAt     string   `json:"confirmed_at"`
}

// PasswordResetRequestedEvent asks the mailer to deliver a one-time code.
type PasswordResetRequestedEvent struct {
	UserID      uint64 `json:"user_id"`
	Email       string `json:"email"`
	Code        string `json:"code"`
	ExpiresAt   string `json:"expires_at"`
	RequestedAt string `json:"requested_at"`
}
