package booking

import "github.com/iliyamo/cinema-ticket-booking/internal/model"

// Thresholds are the cumulative spend, in cents, required for each tier
// above STANDARD.
type Thresholds struct {
	VIP     int64
	Premium int64
}

// Tier returns the membership tier earned by totalSpent.
func (t Thresholds) Tier(totalSpentCents int64) string {
	switch {
	case totalSpentCents >= t.Premium:
		return model.TierPremium
	case totalSpentCents >= t.VIP:
		return model.TierVIP
	default:
		return model.TierStandard
	}
}

// TierProgress describes where a customer sits between tiers.
type TierProgress struct {
	Tier            string `json:"tier"`
	NextTier        string `json:"next_tier,omitempty"`
	TotalSpentCents int64  `json:"total_spent_cents"`
	RemainingCents  int64  `json:"remaining_cents"`
	Percent         int    `json:"percent"`
}

// Progress computes the customer's position towards the next tier.  Percent
// is measured from the current tier's floor; PREMIUM is always 100.
func (t Thresholds) Progress(totalSpentCents int64) TierProgress {
	p := TierProgress{Tier: t.Tier(totalSpentCents), TotalSpentCents: totalSpentCents}
	var floor, ceil int64
	switch p.Tier {
	case model.TierPremium:
		p.Percent = 100
		return p
	case model.TierVIP:
		floor, ceil, p.NextTier = t.VIP, t.Premium, model.TierPremium
	default:
		floor, ceil, p.NextTier = 0, t.VIP, model.TierVIP
	}
	p.RemainingCents = ceil - totalSpentCents
	if span := ceil - floor; span > 0 {
		done := totalSpentCents - floor
		if done < 0 {
			done = 0
		}
		p.Percent = int(done * 100 / span)
	}
	return p
}
