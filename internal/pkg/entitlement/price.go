package entitlement

import "github.com/propertyguard/backend/app/models"

// EffectivePrice computes what an upgrade costs: the plan's annual price
// when the cycle is annual and the plan defines one, otherwise the monthly
// price, with the coupon discount applied last. A nil coupon means no
// discount.
func EffectivePrice(plan *models.Plan, billingCycle string, coupon *models.Coupon) float64 {
	base := plan.MonthlyPrice
	if billingCycle == models.BillingCycleAnnual && plan.AnnualPrice != nil {
		base = *plan.AnnualPrice
	}
	if coupon == nil {
		return base
	}
	return coupon.DiscountedPrice(base)
}
