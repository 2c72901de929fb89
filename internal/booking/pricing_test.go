package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-ticket-booking/internal/model"
)

func TestSeatPrice(t *testing.T) {
	cases := []struct {
		name     string
		seatType string
		override int64
		want     int64
	}{
		{"standard", model.SeatStandard, 0, 80000},
		{"vip", model.SeatVIP, 0, 104000},
		{"couple", model.SeatCouple, 0, 160000},
		{"unknown falls back to standard", "BALCONY", 0, 80000},
		{"override wins", model.SeatVIP, 99000, 99000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SeatPrice(80000, tc.seatType, tc.override))
		})
	}
}

func TestVoucherEligible(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	base := model.Voucher{IsActive: true, UsedCount: 1, MaxUsage: 5, MinOrderCents: 100}

	assert.NoError(t, VoucherEligible(base, 100, now))

	inactive := base
	inactive.IsActive = false
	assert.ErrorIs(t, VoucherEligible(inactive, 100, now), ErrVoucherInactive)

	used := base
	used.UsedCount = 5
	assert.ErrorIs(t, VoucherEligible(used, 100, now), ErrVoucherExhausted)

	expired := base
	expired.ExpiresAt = &past
	assert.ErrorIs(t, VoucherEligible(expired, 100, now), ErrVoucherExpired)

	expiresNow := base
	expiresNow.ExpiresAt = &now
	assert.ErrorIs(t, VoucherEligible(expiresNow, 100, now), ErrVoucherExpired)

	later := base
	later.ExpiresAt = &future
	assert.NoError(t, VoucherEligible(later, 100, now))

	assert.ErrorIs(t, VoucherEligible(base, 99, now), ErrVoucherMinOrder)
}

func TestDiscount(t *testing.T) {
	pct := model.Voucher{DiscountType: model.DiscountPercent, DiscountAmount: 10}
	assert.Equal(t, int64(2000), Discount(pct, 20000))

	capped := pct
	capped.MaxDiscountCents = 1500
	assert.Equal(t, int64(1500), Discount(capped, 20000))

	over := model.Voucher{DiscountType: model.DiscountPercent, DiscountAmount: 250}
	assert.Equal(t, int64(20000), Discount(over, 20000))

	fixed := model.Voucher{DiscountType: model.DiscountFixed, DiscountAmount: 50000}
	assert.Equal(t, int64(30000), Discount(fixed, 30000), "never exceeds subtotal")
	assert.Equal(t, int64(50000), Discount(fixed, 90000))

	unknown := model.Voucher{DiscountType: "BOGUS", DiscountAmount: 10}
	assert.Zero(t, Discount(unknown, 90000))
}

func TestPrice_SumsSeatsFoodAndVoucher(t *testing.T) {
	now := time.Now().UTC()
	st := model.Showtime{BasePriceCents: 10000}
	seats := []model.Seat{
		{ID: 1, RowLabel: "A", SeatNumber: 1, SeatType: model.SeatStandard},
		{ID: 2, RowLabel: "A", SeatNumber: 2, SeatType: model.SeatVIP},
		{ID: 3, RowLabel: "H", SeatNumber: 1, SeatType: model.SeatCouple, PriceCents: 15000},
	}
	foods := []FoodLine{
		{Item: model.FoodItem{ID: 7, Name: "Popcorn", PriceCents: 4500}, Quantity: 2},
		{Item: model.FoodItem{ID: 8, Name: "Cola", PriceCents: 3000}, Quantity: 0},
	}
	v := &model.Voucher{IsActive: true, MaxUsage: 1, DiscountType: model.DiscountPercent, DiscountAmount: 10}

	q, err := Price(st, seats, foods, v, now)
	require.NoError(t, err)
	assert.Equal(t, int64(10000+13000+15000), q.SeatSubtotalCents)
	assert.Equal(t, int64(9000), q.FoodSubtotalCents)
	assert.Equal(t, int64(47000), q.SubtotalCents)
	assert.Equal(t, int64(4700), q.DiscountCents)
	assert.Equal(t, int64(42300), q.TotalCents)
	assert.Len(t, q.Seats, 3)
	assert.Len(t, q.Items, 1, "zero quantity lines are dropped")
}

func TestPrice_IneligibleVoucherIsReported(t *testing.T) {
	st := model.Showtime{BasePriceCents: 10000}
	seats := []model.Seat{{ID: 1, SeatType: model.SeatStandard}}
	v := &model.Voucher{IsActive: true, UsedCount: 3, MaxUsage: 3, DiscountType: model.DiscountFixed, DiscountAmount: 500}

	q, err := Price(st, seats, nil, v, time.Now())
	assert.ErrorIs(t, err, ErrVoucherExhausted)
	assert.Equal(t, ErrVoucherExhausted.Error(), q.VoucherError)
	assert.Zero(t, q.DiscountCents)
	assert.Equal(t, int64(10000), q.TotalCents)
}
