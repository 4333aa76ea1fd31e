package service

import (
	"context"

	"github.com/iliyamo/hospital-registration/internal/model"
)

// fallbackPriceCents is the last resort of the fee chain, used when neither
// the schedule nor any level of the doctor, clinic, department hierarchy
// defines a fee for the slot type.
var fallbackPriceCents = map[model.SlotType]int64{
	model.SlotNormal:  1000,
	model.SlotExpert:  5000,
	model.SlotSpecial: 10000,
}

// identityDiscountBP maps a patient identity to the fraction of the base fee
// it pays, in basis points.  Campus identities pay 80%, external visitors pay
// full price.
var identityDiscountBP = map[model.Identity]int64{
	model.IdentityStudent:  8000,
	model.IdentityTeacher:  8000,
	model.IdentityStaff:    8000,
	model.IdentityExternal: 10000,
}

// applyDiscount scales cents by the identity's basis points, rounding half up
// so 1250 * 80% stays exactly 1000 and odd amounts never lose a cent to
// truncation.
func applyDiscount(cents int64, identity model.Identity) int64 {
	bp, ok := identityDiscountBP[identity]
	if !ok {
		bp = 10000
	}
	return (cents*bp + 5000) / 10000
}

// Pricer resolves the registration fee for a schedule and patient.
type Pricer struct {
	prices PriceSource
}

// NewPricer returns a Pricer over the given fee hierarchy.
func NewPricer(prices PriceSource) *Pricer { return &Pricer{prices: prices} }

// ResolveFee computes the fee in cents for booking the schedule as the given
// identity.  The base fee comes from the schedule's explicit override when
// set, otherwise from the first level of the doctor, clinic, department
// chain that defines one, otherwise from the hardcoded fallback table.  The
// identity discount applies last.
func (p *Pricer) ResolveFee(ctx context.Context, s *model.Schedule, identity model.Identity) (int64, error) {
	base := s.PriceCents
	if base == nil {
		resolved, err := p.prices.Resolve(ctx, s.SlotType, s.DoctorID, s.ClinicID, s.DepartmentID)
		if err != nil {
			return 0, err
		}
		base = resolved
	}
	if base == nil {
		v := fallbackPriceCents[s.SlotType]
		base = &v
	}
	return applyDiscount(*base, identity), nil
}
