package model

// RevenuePoint is revenue for one calendar day (YYYY-MM-DD, UTC).
type RevenuePoint struct {
	Date         string `json:"date"`
	RevenueCents int64  `json:"revenue_cents"`
	Orders       int64  `json:"orders"`
}

// RevenueByMovie groups confirmed revenue per movie.
type RevenueByMovie struct {
	MovieID      uint64 `json:"movie_id"`
	Title        string `json:"title"`
	RevenueCents int64  `json:"revenue_cents"`
	Tickets      int64  `json:"tickets"`
	Showtimes    int64  `json:"showtimes"`
}

// RevenueByCinema groups confirmed revenue per cinema.
type RevenueByCinema struct {
	CinemaID       uint64 `json:"cinema_id"`
	Name           string `json:"name"`
	RevenueCents   int64  `json:"revenue_cents"`
	Tickets        int64  `json:"tickets"`
	AvgTicketCents int64  `json:"avg_ticket_cents"`
}

// ReportSummary is the admin dashboard headline block.
type ReportSummary struct {
	TotalRevenueCents int64 `json:"total_revenue_cents"`
	ConfirmedOrders   int64 `json:"confirmed_orders"`
	PendingOrders     int64 `json:"pending_orders"`
	TicketsSold       int64 `json:"tickets_sold"`
	Customers         int64 `json:"customers"`
	Movies            int64 `json:"movies"`
}
