package middleware

import (
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"quote-book/src/config"
)

// ServiceAvailability answers 503 while in maintenance mode or when more
// than maxInFlight requests are being served. /health is always served.
type ServiceAvailability struct {
	maintenance atomic.Bool
	maxInFlight int64
	inFlight    atomic.Int64
}

func NewServiceAvailability(cfg config.Middleware) *ServiceAvailability {
	sa := &ServiceAvailability{maxInFlight: cfg.MaxConcurrentRequests}
	if cfg.MaintenanceMode {
		sa.maintenance.Store(true)
		log.Warn().Msg("Service is in maintenance mode - all requests will return 503")
	}
	if sa.maxInFlight > 0 {
		log.Info().Int64("max_concurrent_requests", sa.maxInFlight).Msg("Server overload detection enabled")
	}
	return sa
}

func (sa *ServiceAvailability) SetMaintenanceMode(enabled bool) {
	sa.maintenance.Store(enabled)
	if enabled {
		log.Warn().Msg("Service maintenance mode enabled")
	} else {
		log.Info().Msg("Service maintenance mode disabled")
	}
}

func (sa *ServiceAvailability) IsMaintenanceMode() bool {
	return sa.maintenance.Load()
}

func (sa *ServiceAvailability) InFlight() int64 {
	return sa.inFlight.Load()
}

func unavailable(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error":   "Service unavailable",
		"message": message,
		"code":    fiber.StatusServiceUnavailable,
	})
}

func (sa *ServiceAvailability) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Path() == "/health" {
			return c.Next()
		}

		if sa.maintenance.Load() {
			log.Warn().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Msg("Request rejected: service in maintenance mode")
			return unavailable(c, "The service is currently undergoing maintenance. Please try again later.")
		}

		if n := sa.inFlight.Add(1); sa.maxInFlight > 0 && n > sa.maxInFlight {
			sa.inFlight.Add(-1)
			log.Warn().
				Str("path", c.Path()).
				Int64("current_requests", n-1).
				Int64("max_requests", sa.maxInFlight).
				Msg("Request rejected: server overload")
			return unavailable(c, "The service is currently overloaded. Please try again later.")
		}
		defer sa.inFlight.Add(-1)

		return c.Next()
	}
}
