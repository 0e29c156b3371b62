package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/propertyguard/backend/internal/pkg/entitlement"
)

// nowFunc is swapped out by tests that need a fixed clock.
var nowFunc = time.Now

// formatTimePtr renders an optional timestamp as RFC3339 UTC, or nil.
func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// errorResponse maps a tagged engine failure onto an HTTP status and a
// stable error code the dashboard switches on.
func errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	code := "internal_error"

	switch {
	case errors.Is(err, entitlement.ErrAccountNotFound):
		status, code = fiber.StatusNotFound, "account_not_found"
	case errors.Is(err, entitlement.ErrPlanNotFound):
		status, code = fiber.StatusNotFound, "plan_not_found"
	case errors.Is(err, entitlement.ErrUnknownUsageType):
		status, code = fiber.StatusBadRequest, "unknown_usage_type"
	case errors.Is(err, entitlement.ErrTrialAlreadyUsed):
		status, code = fiber.StatusConflict, "trial_already_used"
	case errors.Is(err, entitlement.ErrConflictingUpdate):
		status, code = fiber.StatusConflict, "conflicting_update"
	case errors.Is(err, entitlement.ErrCouponInvalid):
		status, code = fiber.StatusUnprocessableEntity, "coupon_invalid"
	case errors.Is(err, entitlement.ErrPaymentFailed):
		status, code = fiber.StatusPaymentRequired, "payment_failed"
	case errors.Is(err, entitlement.ErrTimeout):
		status, code = fiber.StatusGatewayTimeout, "timeout"
	case errors.Is(err, entitlement.ErrCatalogUnavailable):
		status, code = fiber.StatusServiceUnavailable, "catalog_unavailable"
	}

	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   code,
		"message": err.Error(),
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   "bad_request",
		"message": message,
	})
}
