package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"quote-book/src/config"
	"quote-book/src/engine"
	"quote-book/src/handlers"
	"quote-book/src/models"
)

func setupTestServer(cfg config.Config) (*fiber.App, *engine.OrderBookManager) {
	manager := engine.NewOrderBookManager(engine.NewRegistry(cfg.Book.RegistryShards), zerolog.Nop())
	orderHandler := handlers.NewOrderHandler(manager, cfg.Book, cfg.MetricsMaxLatencies)

	app := fiber.New()
	SetupRoutes(app, orderHandler, cfg)
	return app, manager
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.RateLimit.Disabled = true
	cfg.Middleware.RequestLoggingDisabled = true
	return cfg
}

func do(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" && strings.HasPrefix(body, "{") {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

func TestRoutesEndToEnd(t *testing.T) {
	app, manager := setupTestServer(testConfig())

	resp := do(t, app, http.MethodPost, "/api/v1/orders",
		`{"instrument":"BTCUSD","side":"BUY","price":"100.50","quantity":"2","timestamp":1}`)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("POST /api/v1/orders: expected 201, got: %d", resp.StatusCode)
	}
	resp = do(t, app, http.MethodPost, "/api/v1/orders/raw", "t=2|i=BTCUSD|p=101|q=1|s=s")
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("POST /api/v1/orders/raw: expected 201, got: %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("Expected a request id header")
	}

	paths := []string{
		"/api/v1/orderbook",
		"/api/v1/orderbook/BTCUSD/BUY/best",
		"/api/v1/orderbook/BTCUSD/BUY/levels",
		"/api/v1/orderbook/BTCUSD/BUY/levels/100.50",
		"/api/v1/orderbook/BTCUSD/SELL/stats",
		"/health",
		"/metrics",
	}
	for _, path := range paths {
		if resp := do(t, app, http.MethodGet, path, ""); resp.StatusCode != fiber.StatusOK {
			t.Errorf("GET %s: expected 200, got: %d", path, resp.StatusCode)
		}
	}

	var full models.FullBookResponse
	resp = do(t, app, http.MethodGet, "/api/v1/orderbook", "")
	if err := json.NewDecoder(resp.Body).Decode(&full); err != nil {
		t.Fatal(err)
	}
	if len(full.Books["BTCUSD"].Buy) != 1 || len(full.Books["BTCUSD"].Sell) != 1 {
		t.Errorf("Unexpected full book: %+v", full.Books)
	}

	if got := manager.Stats().Inserts; got != 2 {
		t.Errorf("Expected 2 inserts, got: %d", got)
	}
}

func TestRoutesRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimit{MaxRequests: 2, Window: time.Hour}
	app, _ := setupTestServer(cfg)

	limited := 0
	for i := 0; i < 3; i++ {
		if resp := do(t, app, http.MethodGet, "/api/v1/orderbook", ""); resp.StatusCode == fiber.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 1 {
		t.Errorf("Expected 1 rate limited request, got: %d", limited)
	}

	// health sits outside the rate limited group
	for i := 0; i < 3; i++ {
		if resp := do(t, app, http.MethodGet, "/health", ""); resp.StatusCode != fiber.StatusOK {
			t.Errorf("GET /health: expected 200, got: %d", resp.StatusCode)
		}
	}
}

func TestRoutesMaintenanceMode(t *testing.T) {
	cfg := testConfig()
	cfg.Middleware.MaintenanceMode = true
	app, _ := setupTestServer(cfg)

	if resp := do(t, app, http.MethodGet, "/api/v1/orderbook", ""); resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Errorf("Expected 503 in maintenance mode, got: %d", resp.StatusCode)
	}
	if resp := do(t, app, http.MethodGet, "/health", ""); resp.StatusCode != fiber.StatusOK {
		t.Errorf("GET /health: expected 200, got: %d", resp.StatusCode)
	}
}
