package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"quote-book/src/config"
)

type clientWindow struct {
	window int64
	count  int
}

// RateLimiter admits at most maxRequests per client in each fixed window.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time

	mu      sync.Mutex
	clients map[string]*clientWindow
}

func NewRateLimiter(cfg config.RateLimit) *RateLimiter {
	window := cfg.Window
	if window <= 0 {
		window = time.Second
	}
	return &RateLimiter{
		maxRequests: cfg.MaxRequests,
		window:      window,
		now:         time.Now,
		clients:     make(map[string]*clientWindow),
	}
}

func clientID(c *fiber.Ctx) string {
	if ip := c.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := c.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return c.IP()
}

func (rl *RateLimiter) Allow(client string) bool {
	current := rl.now().UnixNano() / int64(rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	cw, ok := rl.clients[client]
	if !ok || cw.window != current {
		// edge case: a new window resets the client, and stale clients are dropped
		if !ok {
			rl.sweep(current)
		}
		rl.clients[client] = &clientWindow{window: current, count: 1}
		return true
	}
	if cw.count >= rl.maxRequests {
		return false
	}
	cw.count++
	return true
}

func (rl *RateLimiter) sweep(current int64) {
	for client, cw := range rl.clients {
		if cw.window != current {
			delete(rl.clients, client)
		}
	}
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		client := clientID(c)

		if !rl.Allow(client) {
			log.Warn().
				Str("client_ip", client).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("max_requests", rl.maxRequests).
				Msg("Rate limit exceeded")
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "Rate limit exceeded",
				"message": "Too many requests. Please try again later.",
			})
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.maxRequests))
		c.Set("X-RateLimit-Window", rl.window.String())
		return c.Next()
	}
}
