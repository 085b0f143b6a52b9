package handlers

import (
	"testing"

	"github.com/gofiber/fiber/v2"

	"quote-book/src/models"
)

func seedBook(t *testing.T, app *fiber.App) {
	t.Helper()
	for _, o := range []map[string]interface{}{
		order("BTCUSD", "BUY", "10.00", "6", 1),
		order("BTCUSD", "BUY", "10.00", "1", 2),
		order("BTCUSD", "BUY", "20.00", "5", 3),
		order("BTCUSD", "BUY", "5.00", "2", 4),
		order("BTCUSD", "SELL", "21.00", "1", 5),
	} {
		if resp := postJSON(t, app, "/orders", o); resp.StatusCode != fiber.StatusCreated {
			t.Fatalf("Seeding %v: expected 201, got: %d", o, resp.StatusCode)
		}
	}
}

func TestGetBestPrice(t *testing.T) {
	_, app := setupTestHandler()
	seedBook(t, app)

	var best models.BestPriceResponse
	get(t, app, "/orderbook/BTCUSD/buy/best", &best)
	if !best.Found || best.Price != "20.00" || best.Side != "BUY" {
		t.Errorf("Expected best bid 20.00, got: %+v", best)
	}

	best = models.BestPriceResponse{}
	get(t, app, "/orderbook/XRPUSD/SELL/best", &best)
	if best.Found || best.Price != "" {
		t.Errorf("Unknown instrument should have no best price, got: %+v", best)
	}

	if code := get(t, app, "/orderbook/BTCUSD/UP/best", nil); code != fiber.StatusBadRequest {
		t.Errorf("Invalid side: expected 400, got: %d", code)
	}
}

func TestGetOrdersAtLevel(t *testing.T) {
	_, app := setupTestHandler()
	seedBook(t, app)

	var level models.LevelOrdersResponse
	get(t, app, "/orderbook/BTCUSD/BUY/levels/10.009", &level)
	if level.Price != "10.00" || len(level.Orders) != 2 {
		t.Fatalf("Expected two orders at 10.00, got: %+v", level)
	}
	if level.Orders[0].Timestamp != 1 || level.Orders[1].Timestamp != 2 {
		t.Errorf("Orders should keep arrival order, got: %+v", level.Orders)
	}

	if code := get(t, app, "/orderbook/BTCUSD/BUY/levels/abc", nil); code != fiber.StatusBadRequest {
		t.Errorf("Invalid price: expected 400, got: %d", code)
	}
}

func TestGetOrdersUpToLevelDepth(t *testing.T) {
	_, app := setupTestHandler()
	seedBook(t, app)

	var depth models.DepthResponse
	get(t, app, "/orderbook/BTCUSD/BUY/levels", &depth)
	if depth.Depth != 2 || len(depth.Levels) != 2 {
		t.Fatalf("Expected default depth of 2 levels, got: %+v", depth)
	}
	if depth.Levels[0].Price != "20.00" || depth.Levels[1].Price != "10.00" {
		t.Errorf("Levels should be best first, got: %+v", depth.Levels)
	}

	depth = models.DepthResponse{}
	get(t, app, "/orderbook/BTCUSD/BUY/levels?depth=50", &depth)
	if depth.Depth != 3 || len(depth.Levels) != 3 {
		t.Errorf("Depth should be capped at 3, got: %+v", depth)
	}
}

func TestGetLevelStats(t *testing.T) {
	_, app := setupTestHandler()
	seedBook(t, app)

	var stats models.StatsResponse
	get(t, app, "/orderbook/BTCUSD/BUY/stats?depth=2", &stats)

	// (20*5 + 10*7) / 12 = 14.1666...
	if stats.AveragePrice != "14.16" {
		t.Errorf("Expected average price 14.16, got: %s", stats.AveragePrice)
	}
	if stats.TotalQuantity != "12.00" {
		t.Errorf("Expected total quantity 12.00, got: %s", stats.TotalQuantity)
	}
	if len(stats.Levels) != 2 || stats.Levels[1].Count != 2 || stats.Levels[1].Quantity != "7.00" {
		t.Errorf("Unexpected level summaries: %+v", stats.Levels)
	}
}

func TestGetFullOrderBook(t *testing.T) {
	_, app := setupTestHandler()
	seedBook(t, app)
	postJSON(t, app, "/orders", order("ETHUSD", "SELL", "100", "1", 9))
	postJSON(t, app, "/orders", order("ETHUSD", "SELL", "100", "0", 9))

	var full models.FullBookResponse
	get(t, app, "/orderbook", &full)
	if len(full.Books) != 1 {
		t.Fatalf("Expected only BTCUSD in the full book, got: %+v", full.Books)
	}
	book := full.Books["BTCUSD"]
	if len(book.Buy) != 3 || len(book.Sell) != 1 {
		t.Errorf("Expected 3 bid levels and 1 ask level, got: %+v", book)
	}
	if book.Buy[0].Price != "20.00" || book.Buy[2].Price != "5.00" {
		t.Errorf("Bids should be sorted descending, got: %+v", book.Buy)
	}
}
