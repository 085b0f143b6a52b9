package routes

import (
	"github.com/gofiber/fiber/v2"

	"quote-book/src/config"
	"quote-book/src/handlers"
	"quote-book/src/middleware"
)

// Endpoints lists the registered routes for the startup log.
var Endpoints = []string{
	"POST   /api/v1/orders",
	"POST   /api/v1/orders/raw",
	"GET    /api/v1/orderbook",
	"GET    /api/v1/orderbook/:instrument/:side/best",
	"GET    /api/v1/orderbook/:instrument/:side/levels",
	"GET    /api/v1/orderbook/:instrument/:side/levels/:price",
	"GET    /api/v1/orderbook/:instrument/:side/stats",
	"GET    /health",
	"GET    /metrics",
}

func SetupRoutes(app *fiber.App, orderHandler *handlers.OrderHandler, cfg config.Config) *middleware.ServiceAvailability {
	serviceAvailability := middleware.NewServiceAvailability(cfg.Middleware)
	app.Use(serviceAvailability.Middleware())
	app.Use(middleware.RequestLogger(cfg.Middleware.RequestLoggingDisabled))

	api := app.Group("/api/v1")

	if !cfg.RateLimit.Disabled {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimit)
		api.Use(rateLimiter.Middleware())
	}

	api.Post("/orders", orderHandler.UpdateOrder)
	api.Post("/orders/raw", orderHandler.UpdateOrderRaw)

	book := api.Group("/orderbook")
	book.Get("/", orderHandler.GetFullOrderBook)
	book.Get("/:instrument/:side/best", orderHandler.GetBestPrice)
	book.Get("/:instrument/:side/levels", orderHandler.GetOrdersUpToLevel)
	book.Get("/:instrument/:side/levels/:price", orderHandler.GetOrdersAtLevel)
	book.Get("/:instrument/:side/stats", orderHandler.GetLevelStats)

	app.Get("/health", orderHandler.HealthCheck)
	app.Get("/metrics", orderHandler.Metrics)

	return serviceAvailability
}
