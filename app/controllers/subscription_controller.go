package controllers

import (
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/propertyguard/backend/app/models"
	"github.com/propertyguard/backend/app/repository"
	"github.com/propertyguard/backend/internal/pkg/database"
	"github.com/propertyguard/backend/internal/pkg/entitlement"
	"github.com/propertyguard/backend/internal/pkg/metrics/counter"
	"github.com/propertyguard/backend/internal/pkg/payment"
)

var (
	engine     *entitlement.Engine
	engineOnce sync.Once
	validate   = validator.New()
)

// InitializeSubscriptionController wires the entitlement engine with the
// global repositories and the external payment collaborator.
func InitializeSubscriptionController() {
	engineOnce.Do(func() {
		engine = entitlement.NewEngine(
			repository.GetGlobalRepositories(),
			payment.NewClientFromEnv(),
			counter.Reader{},
		)
	})
}

// SetEngine replaces the engine instance. Used by tests.
func SetEngine(e *entitlement.Engine) {
	engine = e
}

func getEngine() *entitlement.Engine {
	if engine == nil {
		repository.InitializeFactory(database.GetDB())
		InitializeSubscriptionController()
	}
	return engine
}

// HandleGetPlans returns the plan catalog in canonical order.
func HandleGetPlans(c *fiber.Ctx) error {
	plans, err := getEngine().GetCatalog(c.Context())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "plans": plans})
}

// HandleGetUserSubscription returns the account's current subscription, or
// a null subscription when the account never started a trial.
func HandleGetUserSubscription(c *fiber.Ctx) error {
	accountID := c.Params("id")
	sub, err := getEngine().GetSubscription(c.Context(), accountID)
	if err != nil {
		return errorResponse(c, err)
	}
	if sub == nil {
		return c.JSON(fiber.Map{"success": true, "subscription": nil})
	}
	return c.JSON(fiber.Map{"success": true, "subscription": subscriptionPayload(sub)})
}

// HandleGetUserUsage returns current consumption plus the plan's limits so
// the dashboard can render progress bars.
func HandleGetUserUsage(c *fiber.Ctx) error {
	accountID := c.Params("id")
	eng := getEngine()

	usage, err := eng.GetUsage(c.Context(), accountID)
	if err != nil {
		return errorResponse(c, err)
	}

	sub, err := eng.GetSubscription(c.Context(), accountID)
	if err != nil {
		return errorResponse(c, err)
	}

	var limits fiber.Map
	if sub != nil && sub.Plan != nil {
		limits = fiber.Map{
			"max_properties":             sub.Plan.MaxProperties,
			"max_storage_gb":             sub.Plan.MaxStorageGb,
			"max_documents_per_property": sub.Plan.MaxDocumentsPerProperty,
			"max_api_calls":              sub.Plan.MaxAPICalls,
		}
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"current_usage": usage,
		"plan_limits":   limits,
	})
}

type startTrialRequest struct {
	PlanCode string `json:"plan_code" validate:"required"`
}

// HandleStartTrial creates a trial subscription for the account.
func HandleStartTrial(c *fiber.Ctx) error {
	accountID := c.Params("id")

	var req startTrialRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return badRequest(c, "plan_code is required")
	}

	sub, err := getEngine().StartTrial(c.Context(), accountID, req.PlanCode)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "subscription": subscriptionPayload(sub)})
}

type upgradeRequest struct {
	PlanCode        string `json:"plan_code" validate:"required"`
	BillingCycle    string `json:"billing_cycle" validate:"required,oneof=monthly annual"`
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
	CouponCode      string `json:"coupon_code"`
}

// HandleUpgrade moves the account onto a paid plan.
func HandleUpgrade(c *fiber.Ctx) error {
	accountID := c.Params("id")

	var req upgradeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return badRequest(c, "plan_code, billing_cycle (monthly|annual) and payment_method_id are required")
	}

	sub, err := getEngine().Upgrade(c.Context(), accountID, req.PlanCode, req.BillingCycle, req.PaymentMethodID, req.CouponCode)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "subscription": subscriptionPayload(sub)})
}

type validateCouponRequest struct {
	CouponCode string `json:"coupon_code" validate:"required"`
	UserID     string `json:"user_id" validate:"required"`
	PlanCode   string `json:"plan_code" validate:"required"`
}

// HandleValidateCoupon checks a coupon against a plan. Invalid coupons are
// a normal response, not an error status.
func HandleValidateCoupon(c *fiber.Ctx) error {
	var req validateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return badRequest(c, "coupon_code, user_id and plan_code are required")
	}

	result, err := getEngine().ValidateCoupon(c.Context(), req.CouponCode, req.UserID, req.PlanCode)
	if err != nil {
		return errorResponse(c, err)
	}
	if !result.Valid {
		return c.JSON(fiber.Map{"success": false, "error": "coupon_invalid", "reason": result.Reason})
	}
	return c.JSON(fiber.Map{"success": true, "coupon": result.Coupon})
}

// HandleFeatureCheck resolves a single feature gate for the account.
func HandleFeatureCheck(c *fiber.Ctx) error {
	accountID := c.Params("id")
	feature := c.Params("feature")

	enabled, err := getEngine().IsFeatureEnabled(c.Context(), accountID, feature)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "feature": feature, "enabled": enabled})
}

// HandleLimitCheck reports whether a usage limit has been reached.
func HandleLimitCheck(c *fiber.Ctx) error {
	accountID := c.Params("id")
	usageType := c.Params("usage_type")

	reached, err := getEngine().IsUsageLimitReached(c.Context(), accountID, usageType)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "usage_type": usageType, "limit_reached": reached})
}

// subscriptionPayload shapes a subscription the way the dashboard renders
// it: embedded plan, derived activity flags and expiry countdown.
func subscriptionPayload(sub *models.Subscription) fiber.Map {
	now := nowFunc()
	payload := fiber.Map{
		"id":                     sub.ID,
		"account_id":             sub.AccountID,
		"plan_code":              sub.PlanCode,
		"subscription_status":    sub.EffectiveStatusAt(now),
		"billing_cycle":          sub.BillingCycle,
		"trial_started_at":       formatTimePtr(sub.TrialStartedAt),
		"trial_ends_at":          formatTimePtr(sub.TrialEndsAt),
		"current_period_start":   formatTimePtr(sub.CurrentPeriodStart),
		"current_period_end":     formatTimePtr(sub.CurrentPeriodEnd),
		"next_billing_date":      formatTimePtr(sub.CurrentPeriodEnd),
		"price_paid":             sub.PricePaid,
		"coupon_code":            sub.CouponCode,
		"is_trial_active":        sub.IsTrialActiveAt(now),
		"is_subscription_active": sub.IsActiveAt(now),
		"days_until_expiry":      sub.DaysUntilExpiryAt(now),
	}
	if sub.Plan != nil {
		payload["plan"] = sub.Plan
	}
	return payload
}
