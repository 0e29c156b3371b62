package models

import (
	"strings"
	"time"
)

const (
	DiscountTypePercent = "percent"
	DiscountTypeFixed   = "fixed"
)

// Coupon is a discount code with its own validity window and redemption cap.
// Codes are stored uppercase; lookups must normalize first.
type Coupon struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	Code          string  `gorm:"type:varchar(50);not null;uniqueIndex" json:"code"`
	DiscountType  string  `gorm:"type:varchar(10);not null;default:'percent'" json:"discount_type"`
	DiscountValue float64 `gorm:"not null" json:"discount_value"`

	// ApplicablePlans is a comma-separated list of plan codes. Empty means
	// the coupon applies to every plan.
	ApplicablePlans string `gorm:"type:varchar(255);default:''" json:"applicable_plans,omitempty"`

	ValidFrom          *time.Time `json:"valid_from,omitempty"`
	ValidUntil         *time.Time `json:"valid_until,omitempty"`
	MaxRedemptions     *int       `json:"max_redemptions,omitempty"`
	CurrentRedemptions int        `gorm:"not null;default:0" json:"current_redemptions"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NormalizeCouponCode maps user input to the canonical stored form.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// AppliesTo reports whether the coupon may be used with the given plan.
func (c *Coupon) AppliesTo(planCode string) bool {
	if strings.TrimSpace(c.ApplicablePlans) == "" {
		return true
	}
	for _, code := range strings.Split(c.ApplicablePlans, ",") {
		if strings.TrimSpace(code) == planCode {
			return true
		}
	}
	return false
}

// ValidFor evaluates the full validity predicate for a plan at a point in
// time: within window, below the redemption cap, and plan-applicable.
func (c *Coupon) ValidFor(planCode string, now time.Time) bool {
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidUntil != nil && !now.Before(*c.ValidUntil) {
		return false
	}
	if c.MaxRedemptions != nil && c.CurrentRedemptions >= *c.MaxRedemptions {
		return false
	}
	return c.AppliesTo(planCode)
}

// DiscountedPrice applies the coupon to a base price, clamped at zero.
func (c *Coupon) DiscountedPrice(base float64) float64 {
	var discounted float64
	switch c.DiscountType {
	case DiscountTypeFixed:
		discounted = base - c.DiscountValue
	default:
		discounted = base * (1 - c.DiscountValue/100)
	}
	if discounted < 0 {
		return 0
	}
	return discounted
}
