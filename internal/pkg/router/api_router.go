package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/propertyguard/backend/app/controllers"
	"github.com/propertyguard/backend/app/repository"
	apiv1 "github.com/propertyguard/backend/internal/api/v1"
	"github.com/propertyguard/backend/internal/pkg/cache"
	"github.com/propertyguard/backend/internal/pkg/database"
	"github.com/propertyguard/backend/internal/pkg/env"
	"github.com/propertyguard/backend/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	repository.InitializeFactory(database.GetDB())
	controllers.InitializeSubscriptionController()

	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        env.GetEnvInt("API_RATE_LIMIT", 60),
		Expiration: time.Minute,
		Storage:    newLimiterStorage(),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "PropertyGuard subscription API",
		})
	})

	subscription := api.Group("/subscription")
	apiServer := apiv1.NewAPIServer()
	apiv1.RegisterHandlers(subscription, apiServer, middleware.UsageMeterMiddleware())
}

// newLimiterStorage shares the cache server with the Redis client but keeps
// limiter buckets in their own database.
func newLimiterStorage() fiber.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")

	if cacheClient := cache.GetClient(); cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
