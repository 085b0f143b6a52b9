package handlers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"quote-book/src/engine"
	"quote-book/src/models"
)

func (h *OrderHandler) sideParam(c *fiber.Ctx) (string, engine.Side, error) {
	side, err := engine.ParseSide(c.Params("side"))
	return c.Params("instrument"), side, err
}

// depth reads ?depth=N. Missing or invalid values use the default depth and
// values above the maximum are capped.
func (h *OrderHandler) depth(c *fiber.Ctx) int {
	depth, err := strconv.Atoi(c.Query("depth", strconv.Itoa(h.Book.DefaultDepth)))
	if err != nil || depth <= 0 {
		depth = h.Book.DefaultDepth
	}
	// edge case: enforce maximum depth limit
	if depth > h.Book.MaxDepth {
		depth = h.Book.MaxDepth
	}
	return depth
}

func (h *OrderHandler) GetBestPrice(c *fiber.Ctx) error {
	instrument, side, err := h.sideParam(c)
	if err != nil {
		return respondError(c, err)
	}
	price, ok, err := h.Manager.BestPrice(instrument, side)
	if err != nil {
		return respondError(c, err)
	}

	resp := models.BestPriceResponse{Instrument: instrument, Side: string(side), Found: ok}
	if ok {
		resp.Price = price.StringFixed(engine.Scale)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *OrderHandler) GetOrdersAtLevel(c *fiber.Ctx) error {
	instrument, side, err := h.sideParam(c)
	if err != nil {
		return respondError(c, err)
	}
	price, err := decimal.NewFromString(c.Params("price"))
	if err != nil {
		return respondError(c, fmt.Errorf("%w: price %q is not a decimal", engine.ErrInvalidArgument, c.Params("price")))
	}

	orders, err := h.Manager.OrdersAtLevel(instrument, side, price)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(models.LevelOrdersResponse{
		Instrument: instrument,
		Side:       string(side),
		Price:      engine.Normalize(price).StringFixed(engine.Scale),
		Orders:     orderInfos(orders),
	})
}

func (h *OrderHandler) GetOrdersUpToLevel(c *fiber.Ctx) error {
	instrument, side, err := h.sideParam(c)
	if err != nil {
		return respondError(c, err)
	}
	depth := h.depth(c)

	levels, err := h.Manager.OrdersUpToLevel(instrument, side, depth)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(models.DepthResponse{
		Instrument: instrument,
		Side:       string(side),
		Depth:      depth,
		Levels:     levelInfos(levels),
	})
}

func (h *OrderHandler) GetLevelStats(c *fiber.Ctx) error {
	instrument, side, err := h.sideParam(c)
	if err != nil {
		return respondError(c, err)
	}
	depth := h.depth(c)

	avg, err := h.Manager.AveragePriceOverLevel(instrument, side, depth)
	if err != nil {
		return respondError(c, err)
	}
	total, err := h.Manager.TotalQtyOverLevel(instrument, side, depth)
	if err != nil {
		return respondError(c, err)
	}
	summaries, err := h.Manager.VolumeWeightedPriceOverLevel(instrument, side, depth)
	if err != nil {
		return respondError(c, err)
	}

	levels := make([]models.LevelSummaryInfo, 0, len(summaries))
	for _, s := range summaries {
		levels = append(levels, models.LevelSummaryInfo{
			Price:    s.Price.StringFixed(engine.Scale),
			Count:    s.Count,
			Quantity: s.TotalQty.StringFixed(engine.Scale),
		})
	}
	return c.Status(fiber.StatusOK).JSON(models.StatsResponse{
		Instrument:    instrument,
		Side:          string(side),
		Depth:         depth,
		AveragePrice:  avg.StringFixed(engine.Scale),
		TotalQuantity: total.StringFixed(engine.Scale),
		Levels:        levels,
	})
}

func (h *OrderHandler) GetFullOrderBook(c *fiber.Ctx) error {
	full := h.Manager.FullOrderBook()

	books := make(map[string]models.BookInfo, len(full))
	for instrument, snapshot := range full {
		books[instrument] = models.BookInfo{
			Buy:  levelInfos(snapshot.Buy),
			Sell: levelInfos(snapshot.Sell),
		}
	}
	return c.Status(fiber.StatusOK).JSON(models.FullBookResponse{
		Timestamp: time.Now().UnixMilli(),
		Books:     books,
	})
}

func orderInfos(orders []engine.Order) []models.OrderInfo {
	out := make([]models.OrderInfo, 0, len(orders))
	for _, o := range orders {
		out = append(out, models.OrderInfo{
			Instrument: o.Instrument(),
			Side:       string(o.Side()),
			Price:      o.Price().StringFixed(engine.Scale),
			Quantity:   o.Quantity().StringFixed(engine.Scale),
			Timestamp:  o.Timestamp().UnixMilli(),
		})
	}
	return out
}

func levelInfos(levels []engine.Level) []models.PriceLevelInfo {
	out := make([]models.PriceLevelInfo, 0, len(levels))
	for _, level := range levels {
		out = append(out, models.PriceLevelInfo{
			Price:  level.Price.StringFixed(engine.Scale),
			Orders: orderInfos(level.Orders),
		})
	}
	return out
}
