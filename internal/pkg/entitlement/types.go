package entitlement

import (
	"context"

	"github.com/propertyguard/backend/app/models"
)

// ChargeResult is the outcome reported by the payment collaborator.
type ChargeResult struct {
	Success       bool
	Reason        string
	TransactionID string
}

// PaymentClient is the external payment collaborator. Implementations must
// enforce their own request timeout; the engine maps timeouts to ErrTimeout.
type PaymentClient interface {
	Charge(ctx context.Context, paymentMethodRef string, amount float64, currency string) (*ChargeResult, error)
}

// UsageCounter reads the in-flight API-call delta buffered in Redis for a
// calendar month (format 2006-01).
type UsageCounter interface {
	Pending(accountID, month string) (int64, error)
}

// Coupon validation reasons reported to callers. An invalid coupon is a
// normal user-facing condition, not a fault.
const (
	CouponReasonNotFound           = "not_found"
	CouponReasonNotYetValid        = "not_yet_valid"
	CouponReasonExpired            = "expired"
	CouponReasonRedemptionsReached = "redemptions_exhausted"
	CouponReasonPlanNotApplicable  = "plan_not_applicable"
)

// CouponValidation is the result of ValidateCoupon. Valid carries the coupon
// record; invalid carries a reason code.
type CouponValidation struct {
	Valid  bool           `json:"valid"`
	Reason string         `json:"reason,omitempty"`
	Coupon *models.Coupon `json:"coupon,omitempty"`
}

func invalidCoupon(reason string) *CouponValidation {
	return &CouponValidation{Valid: false, Reason: reason}
}
