package router

import (
	"github.com/gofiber/fiber/v2"
)

type HealthRouter struct {
}

func (h HealthRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
}

func NewHealthRouter() *HealthRouter {
	return &HealthRouter{}
}
