package model

import "time"

const (
	DiscountPercent = "PERCENT"
	DiscountFixed   = "FIXED"
)

// Voucher is a discount code with a usage limit and an optional expiry.
// DiscountAmount is a percentage (0-100) for PERCENT vouchers and an amount
// in cents for FIXED ones.  MaxDiscountCents caps PERCENT discounts when
// above zero.
type Voucher struct {
	ID               uint64     `json:"id"`
	Code             string     `json:"code"`
	DiscountType     string     `json:"discount_type"`
	DiscountAmount   int64      `json:"discount_amount"`
	MaxDiscountCents int64      `json:"max_discount_cents"`
	MinOrderCents    int64      `json:"min_order_cents"`
	UsedCount        uint32     `json:"used_count"`
	MaxUsage         uint32     `json:"max_usage"`
	IsActive         bool       `json:"is_active"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
