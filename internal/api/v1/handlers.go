package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to the controllers to keep behavior consistent with the
	// dashboard-facing routes.
	"github.com/propertyguard/backend/app/controllers"
)

// APIServer implements the subscription API surface.
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ping": "pong"})
}

// GetPlans returns the plan catalog.
func (s *APIServer) GetPlans(c *fiber.Ctx) error {
	return controllers.HandleGetPlans(c)
}

// GetUserSubscription returns the account's current subscription.
func (s *APIServer) GetUserSubscription(c *fiber.Ctx) error {
	return controllers.HandleGetUserSubscription(c)
}

// GetUserUsage returns current consumption and plan limits.
func (s *APIServer) GetUserUsage(c *fiber.Ctx) error {
	return controllers.HandleGetUserUsage(c)
}

// PostStartTrial starts a trial subscription.
func (s *APIServer) PostStartTrial(c *fiber.Ctx) error {
	return controllers.HandleStartTrial(c)
}

// PostUpgrade upgrades the account to a paid plan.
func (s *APIServer) PostUpgrade(c *fiber.Ctx) error {
	return controllers.HandleUpgrade(c)
}

// PostValidateCoupon validates a coupon for a plan.
func (s *APIServer) PostValidateCoupon(c *fiber.Ctx) error {
	return controllers.HandleValidateCoupon(c)
}

// GetFeatureCheck resolves a feature gate.
func (s *APIServer) GetFeatureCheck(c *fiber.Ctx) error {
	return controllers.HandleFeatureCheck(c)
}

// GetLimitCheck reports whether a usage limit is reached.
func (s *APIServer) GetLimitCheck(c *fiber.Ctx) error {
	return controllers.HandleLimitCheck(c)
}

// RegisterHandlers attaches the subscription routes to a router group. The
// account-scoped routes live under a /user/:id group so that
// accountHandlers (metering etc.) see the :id param; middleware mounted on
// a prefix without the param in its own pattern never would.
func RegisterHandlers(router fiber.Router, s *APIServer, accountHandlers ...fiber.Handler) {
	router.Get("/ping", s.GetPing)
	router.Get("/plans", s.GetPlans)
	router.Post("/coupons/validate", s.PostValidateCoupon)

	user := router.Group("/user/:id", accountHandlers...)
	user.Get("/subscription", s.GetUserSubscription)
	user.Get("/usage", s.GetUserUsage)
	user.Post("/start-trial", s.PostStartTrial)
	user.Post("/upgrade", s.PostUpgrade)
	user.Get("/features/:feature", s.GetFeatureCheck)
	user.Get("/limits/:usage_type", s.GetLimitCheck)
}
