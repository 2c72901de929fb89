// Package booking holds the arithmetic behind checkout: seat price lookup,
// food subtotals, voucher eligibility and discounts.  Everything here is pure
// so handlers can quote a basket and then recompute it inside the order
// transaction with identical results.
package booking

import (
	"errors"
	"time"

	"github.com/iliyamo/cinema-ticket-booking/internal/model"
)

// seatMultiplier maps a seat type to a percentage of the showtime base price.
var seatMultiplier = map[string]int64{
	model.SeatStandard: 100,
	model.SeatVIP:      130,
	model.SeatCouple:   200,
}

var (
	ErrVoucherInactive  = errors.New("voucher is not active")
	ErrVoucherExhausted = errors.New("voucher usage limit reached")
	ErrVoucherExpired   = errors.New("voucher has expired")
	ErrVoucherMinOrder  = errors.New("order total below voucher minimum")
)

// SeatPrice returns the price of one seat.  A positive override always wins;
// otherwise the base price is scaled by the seat type, with unknown types
// priced as STANDARD.
func SeatPrice(baseCents int64, seatType string, overrideCents int64) int64 {
	if overrideCents > 0 {
		return overrideCents
	}
	m, ok := seatMultiplier[seatType]
	if !ok {
		m = 100
	}
	return baseCents * m / 100
}

// ValidSeatType reports whether t is a known seat type.
func ValidSeatType(t string) bool {
	_, ok := seatMultiplier[t]
	return ok
}

// FoodLine is a food item and the quantity ordered.
type FoodLine struct {
	Item     model.FoodItem
	Quantity uint32
}

// Quote is a fully priced basket.
type Quote struct {
	Seats             []model.OrderSeat `json:"seats"`
	Items             []model.OrderItem `json:"items"`
	SeatSubtotalCents int64             `json:"seat_subtotal_cents"`
	FoodSubtotalCents int64             `json:"food_subtotal_cents"`
	SubtotalCents     int64             `json:"subtotal_cents"`
	DiscountCents     int64             `json:"discount_cents"`
	TotalCents        int64             `json:"total_cents"`
	VoucherError      string            `json:"voucher_error,omitempty"`
}

// Price computes a quote for seats of a showtime plus food lines.  When v is
// non-nil and eligible its discount is applied to the combined subtotal; an
// ineligible voucher is reported on the quote and the error is returned so
// callers that require the voucher can reject the order.
func Price(st model.Showtime, seats []model.Seat, foods []FoodLine, v *model.Voucher, now time.Time) (Quote, error) {
	q := Quote{
		Seats: make([]model.OrderSeat, 0, len(seats)),
		Items: make([]model.OrderItem, 0, len(foods)),
	}
	for _, s := range seats {
		p := SeatPrice(st.BasePriceCents, s.SeatType, s.PriceCents)
		q.Seats = append(q.Seats, model.OrderSeat{
			SeatID:     s.ID,
			RowLabel:   s.RowLabel,
			SeatNumber: s.SeatNumber,
			SeatType:   s.SeatType,
			PriceCents: p,
		})
		q.SeatSubtotalCents += p
	}
	for _, f := range foods {
		if f.Quantity == 0 {
			continue
		}
		q.Items = append(q.Items, model.OrderItem{
			FoodItemID: f.Item.ID,
			Name:       f.Item.Name,
			Quantity:   f.Quantity,
			PriceCents: f.Item.PriceCents,
		})
		q.FoodSubtotalCents += f.Item.PriceCents * int64(f.Quantity)
	}
	q.SubtotalCents = q.SeatSubtotalCents + q.FoodSubtotalCents
	q.TotalCents = q.SubtotalCents

	if v == nil {
		return q, nil
	}
	if err := VoucherEligible(*v, q.SubtotalCents, now); err != nil {
		q.VoucherError = err.Error()
		return q, err
	}
	q.DiscountCents = Discount(*v, q.SubtotalCents)
	q.TotalCents = q.SubtotalCents - q.DiscountCents
	return q, nil
}

// VoucherEligible checks whether v can be applied to an order of subtotal
// cents at time now.  The first failing rule is returned.
func VoucherEligible(v model.Voucher, subtotalCents int64, now time.Time) error {
	if !v.IsActive {
		return ErrVoucherInactive
	}
	if v.UsedCount >= v.MaxUsage {
		return ErrVoucherExhausted
	}
	if v.ExpiresAt != nil && !now.Before(*v.ExpiresAt) {
		return ErrVoucherExpired
	}
	if subtotalCents < v.MinOrderCents {
		return ErrVoucherMinOrder
	}
	return nil
}

// Discount returns the amount v takes off subtotal.  The result is never
// negative and never larger than the subtotal.
func Discount(v model.Voucher, subtotalCents int64) int64 {
	var d int64
	switch v.DiscountType {
	case model.DiscountPercent:
		pct := v.DiscountAmount
		if pct > 100 {
			pct = 100
		}
		d = subtotalCents * pct / 100
		if v.MaxDiscountCents > 0 && d > v.MaxDiscountCents {
			d = v.MaxDiscountCents
		}
	case model.DiscountFixed:
		d = v.DiscountAmount
	}
	if d < 0 {
		return 0
	}
	if d > subtotalCents {
		return subtotalCents
	}
	return d
}
