package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"quote-book/src/config"
	"quote-book/src/engine"
	"quote-book/src/feed"
	"quote-book/src/handlers"
	"quote-book/src/logger"
	"quote-book/src/routes"
)

func replayFeed(path string, manager *engine.OrderBookManager, log zerolog.Logger) {
	f, err := os.Open(path)
	if err != nil {
		log.Fatal().Err(err).Str("feed_file", path).Msg("Failed to open feed file")
	}
	defer f.Close()

	stats, err := feed.Replay(context.Background(), f, manager, log)
	if err != nil {
		log.Fatal().
			Err(err).
			Str("feed_file", path).
			Int("applied", stats.Applied).
			Msg("Feed replay aborted")
	}
}

func main() {
	cfg := config.Load("")
	log := logger.InitLogger(cfg.Log)

	log.Info().Msg("Initializing Order Book Service")

	registry := engine.NewRegistry(cfg.Book.RegistryShards)
	manager := engine.NewOrderBookManager(registry, log)

	if cfg.FeedFile != "" {
		replayFeed(cfg.FeedFile, manager, log)
	}

	orderHandler := handlers.NewOrderHandler(manager, cfg.Book, cfg.MetricsMaxLatencies)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}

			log.Error().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("status", code).
				Str("error", err.Error()).
				Msg("Request error")

			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	routes.SetupRoutes(app, orderHandler, cfg)

	port := cfg.Server.Port
	serverError := make(chan error, 1)

	go func() {
		if err := app.Listen(port); err != nil {
			serverError <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	log.Info().
		Str("port", port).
		Int("instruments", registry.Len()).
		Msg("Order Book Service started")
	log.Info().
		Strs("endpoints", routes.Endpoints).
		Msg("API endpoints registered")

	select {
	case err := <-serverError:
		log.Fatal().
			Err(err).
			Str("port", port).
			Str("hint", "Port may be already in use. Try: PORT=3000 go run main.go").
			Msg("Server failed to start")
	case <-quit:
		log.Info().Msg("Received shutdown signal, shutting down...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		// edge case: timeout during shutdown is acceptable
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().
				Dur("timeout", cfg.Server.ShutdownTimeout).
				Msg("Timeout exceeded, shutting down...")
		} else {
			log.Error().
				Err(err).
				Msg("Error during shutdown")
		}
	} else {
		log.Info().Msg("Shutdown complete")
	}

	logger.CloseLogger()
}
