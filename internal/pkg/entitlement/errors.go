package entitlement

import "errors"

// Tagged failures surfaced to presentation callers. Each operation returns
// either a value or one of these, wrapped; callers distinguish them with
// errors.Is to choose retry, hard failure, or upsell messaging.
var (
	// Caller-input errors: reject immediately, no retry.
	ErrAccountNotFound  = errors.New("account not found")
	ErrPlanNotFound     = errors.New("plan not found")
	ErrUnknownUsageType = errors.New("unknown usage type")

	// State-conflict errors: recoverable by re-fetching and retrying once.
	ErrTrialAlreadyUsed  = errors.New("trial already used")
	ErrCouponInvalid     = errors.New("coupon invalid")
	ErrConflictingUpdate = errors.New("conflicting update")

	// External-dependency errors: engine-owned state is never left
	// partially mutated on these paths.
	ErrPaymentFailed      = errors.New("payment failed")
	ErrTimeout            = errors.New("timeout")
	ErrCatalogUnavailable = errors.New("catalog unavailable")
)
