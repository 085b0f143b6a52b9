package handlers

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"quote-book/src/config"
	"quote-book/src/engine"
	"quote-book/src/models"
	"quote-book/src/parser"
)

type OrderHandler struct {
	Manager   *engine.OrderBookManager
	Book      config.Book
	StartTime time.Time

	UpdatesReceived int64
	UpdatesRejected int64

	latencies *latencyWindow
}

func NewOrderHandler(manager *engine.OrderBookManager, book config.Book, maxLatencies int) *OrderHandler {
	return &OrderHandler{
		Manager:   manager,
		Book:      book,
		StartTime: time.Now(),
		latencies: newLatencyWindow(maxLatencies),
	}
}

// UpdateOrder applies one JSON order snapshot.
func (h *OrderHandler) UpdateOrder(c *fiber.Ctx) error {
	atomic.AddInt64(&h.UpdatesReceived, 1)

	var req models.UpdateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		atomic.AddInt64(&h.UpdatesRejected, 1)
		log.Warn().
			Err(err).
			Str("ip", c.IP()).
			Str("path", c.Path()).
			Msg("Invalid request: malformed JSON")
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request: malformed JSON",
		})
	}

	side, err := engine.ParseSide(req.Side)
	if err != nil {
		return h.reject(c, err)
	}
	// edge case: a missing timestamp must stay missing, not become the epoch
	var ts time.Time
	if req.Timestamp > 0 {
		ts = time.UnixMilli(req.Timestamp)
	}
	order, err := engine.NewOrder(req.Instrument, side, req.Price, req.Quantity, ts)
	if err != nil {
		return h.reject(c, err)
	}
	return h.apply(c, order)
}

// UpdateOrderRaw applies one order snapshot in the feed line format.
func (h *OrderHandler) UpdateOrderRaw(c *fiber.Ctx) error {
	atomic.AddInt64(&h.UpdatesReceived, 1)

	order, err := parser.ParseOrder(string(c.Body()))
	if err != nil {
		return h.reject(c, err)
	}
	return h.apply(c, order)
}

func (h *OrderHandler) reject(c *fiber.Ctx, err error) error {
	atomic.AddInt64(&h.UpdatesRejected, 1)
	log.Warn().
		Err(err).
		Str("ip", c.IP()).
		Str("path", c.Path()).
		Msg("Invalid order update")
	return respondError(c, err)
}

func (h *OrderHandler) apply(c *fiber.Ctx, order engine.Order) error {
	start := time.Now()
	action, applied, err := h.Manager.Apply(order)
	h.latencies.record(time.Since(start))

	if err != nil {
		log.Error().
			Err(err).
			Stringer("order", order).
			Msg("Error applying order update")
		return respondError(c, err)
	}

	log.Info().
		Str("instrument", order.Instrument()).
		Str("side", string(order.Side())).
		Str("price", order.Price().StringFixed(engine.Scale)).
		Str("quantity", order.Quantity().StringFixed(engine.Scale)).
		Str("action", string(action)).
		Bool("applied", applied).
		Msg("Order update processed")

	status := fiber.StatusOK
	if action == engine.ActionInsert && applied {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(models.UpdateOrderResponse{
		Applied: applied,
		Action:  string(action),
	})
}

func (h *OrderHandler) HealthCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(models.HealthResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.StartTime).Seconds()),
		Instruments:   h.Manager.Registry().Len(),
	})
}

func (h *OrderHandler) Metrics(c *fiber.Ctx) error {
	stats := h.Manager.Stats()
	p50, p99, p999 := h.latencies.percentiles()

	received := atomic.LoadInt64(&h.UpdatesReceived)
	throughput := 0.0
	if uptime := time.Since(h.StartTime).Seconds(); uptime > 0 {
		throughput = float64(received) / uptime
	}

	return c.Status(fiber.StatusOK).JSON(models.MetricsResponse{
		UpdatesReceived:         received,
		UpdatesApplied:          stats.Applied,
		UpdatesRejected:         atomic.LoadInt64(&h.UpdatesRejected),
		Inserts:                 stats.Inserts,
		Replaces:                stats.Replaces,
		Deletes:                 stats.Deletes,
		NoOps:                   stats.NoOps,
		Ignores:                 stats.Ignores,
		ConsistencyViolations:   stats.Violations,
		Instruments:             stats.Instruments,
		LatencyP50Ms:            p50,
		LatencyP99Ms:            p99,
		LatencyP999Ms:           p999,
		ThroughputUpdatesPerSec: throughput,
	})
}

func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, engine.ErrInvalidArgument):
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, engine.ErrConsistencyViolation):
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{Error: err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{Error: "Internal server error"})
	}
}
