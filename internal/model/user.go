package model

import "time"

const (
	RoleAdmin    = "ADMIN"
	RoleCustomer = "CUSTOMER"
)

// Membership tiers, ordered from lowest to highest.
const (
	TierStandard = "STANDARD"
	TierVIP      = "VIP"
	TierPremium  = "PREMIUM"
)

// User represents an account as stored in the `users` table.  Customers
// carry their cumulative spend so the membership tier can be derived.
// PasswordHash never leaves the server.
type User struct {
	ID              uint64    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	PasswordHash    string    `json:"-"`
	Role            string    `json:"role"`
	MembershipLevel string    `json:"membership_level"`
	TotalSpentCents int64     `json:"total_spent_cents"`
	TotalOrders     uint32    `json:"total_orders"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// PasswordOTP is a one-time code issued by the forgot-password flow.  Only
// a bcrypt hash of the code is stored.
type PasswordOTP struct {
	ID        uint64
	UserID    uint64
	CodeHash  string
	ExpiresAt time.Time
	Attempts  uint32
	UsedAt    *time.Time
	CreatedAt time.Time
}
