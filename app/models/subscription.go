package models

import (
	"math"
	"time"
)

const (
	BillingCycleMonthly = "monthly"
	BillingCycleAnnual  = "annual"
)

const (
	SubscriptionStatusTrial    = "trial"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusExpired  = "expired"
)

// Subscription is an account's commercial state against a plan. Exactly one
// row per account carries the Current marker; superseded rows stay behind as
// history with status expired and the marker cleared.
//
// Version guards concurrent writes: every state change goes through a
// compare-and-swap on (id, version) so two racing upgrades cannot both
// succeed.
type Subscription struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	AccountID string `gorm:"type:char(36);not null;index;index:ux_subscriptions_account_current,unique,priority:1" json:"account_id"`
	PlanCode  string `gorm:"type:varchar(50);not null;index" json:"plan_code"`
	Status    string `gorm:"type:varchar(20);not null;default:'trial';index" json:"status"`

	// Current is true for the account's live subscription and NULL for
	// history rows. MySQL unique indexes ignore NULLs, so the combined
	// (account_id, current) index allows any number of history rows but at
	// most one current subscription per account.
	Current *bool `gorm:"index:ux_subscriptions_account_current,unique,priority:2" json:"-"`

	BillingCycle       string     `gorm:"type:varchar(10);not null;default:'monthly'" json:"billing_cycle"`
	TrialStartedAt     *time.Time `json:"trial_started_at,omitempty"`
	TrialEndsAt        *time.Time `json:"trial_ends_at,omitempty"`
	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`

	PricePaid  float64 `gorm:"default:0" json:"price_paid"`
	CouponCode string  `gorm:"type:varchar(50);default:''" json:"coupon_code,omitempty"`
	PaymentRef string  `gorm:"type:varchar(100);default:''" json:"-"`

	Version   int       `gorm:"not null;default:1" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Plan *Plan `gorm:"-" json:"plan,omitempty"`
}

// IsTrialActiveAt reports whether the trial window covers the given instant.
func (s *Subscription) IsTrialActiveAt(now time.Time) bool {
	return s.Status == SubscriptionStatusTrial && s.TrialEndsAt != nil && now.Before(*s.TrialEndsAt)
}

// IsActiveAt reports whether a paid subscription covers the given instant.
func (s *Subscription) IsActiveAt(now time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.CurrentPeriodEnd != nil && now.Before(*s.CurrentPeriodEnd)
}

// EffectiveStatusAt derives the status as of now. Expiry transitions are
// computed lazily from stored timestamps; nothing ticks in the background.
// A trial past its end date reads as expired, an active subscription past
// its period end reads as past_due until the external billing event
// resolves it.
func (s *Subscription) EffectiveStatusAt(now time.Time) string {
	switch s.Status {
	case SubscriptionStatusTrial:
		if !s.IsTrialActiveAt(now) {
			return SubscriptionStatusExpired
		}
	case SubscriptionStatusActive:
		if !s.IsActiveAt(now) {
			return SubscriptionStatusPastDue
		}
	}
	return s.Status
}

// DaysUntilExpiryAt returns whole days (rounded up) until the trial or
// billing period ends, or 0 when already lapsed.
func (s *Subscription) DaysUntilExpiryAt(now time.Time) int {
	var end *time.Time
	switch s.Status {
	case SubscriptionStatusTrial:
		end = s.TrialEndsAt
	case SubscriptionStatusActive:
		end = s.CurrentPeriodEnd
	}
	if end == nil {
		return 0
	}
	remaining := end.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}
