package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/propertyguard/backend/internal/pkg/metrics/counter"
)

// UsageMeterMiddleware counts API calls per account against the monthly
// metering buffer. It must be mounted on a route group whose own pattern
// carries the :id param (e.g. /user/:id); Fiber parses params per matched
// route, so a group without the param in its prefix would never see it.
// Increments are best effort: a cache outage must never block the request.
func UsageMeterMiddleware() fiber.Handler {
	return usageMeter(counter.AddAPICall)
}

func usageMeter(meter func(accountID string) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if accountID := c.Params("id"); accountID != "" {
			if err := meter(accountID); err != nil {
				log.Printf("usage meter: failed to count api call for account %s: %v", accountID, err)
			}
		}
		return c.Next()
	}
}
