package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Server struct {
	Port            string
	ShutdownTimeout time.Duration
}

type Log struct {
	Level  string
	Format string // "pretty" enables the console writer
	File   string // empty, "none" or "disabled" keeps logs on stdout only
}

type Book struct {
	RegistryShards int
	DefaultDepth   int
	MaxDepth       int
}

type RateLimit struct {
	Disabled    bool
	MaxRequests int
	Window      time.Duration
}

type Middleware struct {
	RequestLoggingDisabled bool
	MaintenanceMode        bool
	MaxConcurrentRequests  int64
}

type Config struct {
	Server     Server
	Log        Log
	Book       Book
	RateLimit  RateLimit
	Middleware Middleware

	MetricsMaxLatencies int
	FeedFile            string
}

func Default() Config {
	return Config{
		Server: Server{
			Port:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: Log{
			Level: "info",
		},
		Book: Book{
			RegistryShards: 32,
			DefaultDepth:   10,
			MaxDepth:       1000,
		},
		RateLimit: RateLimit{
			MaxRequests: 100,
			Window:      time.Second,
		},
		MetricsMaxLatencies: 10000,
	}
}

// Load reads an optional .env file and then the process environment.
// Priority: ENV > .env file > defaults. Unparseable or non-positive values
// keep their defaults.
func Load(envPath string) Config {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from lookup, which is os.Getenv outside tests.
func FromEnv(lookup func(string) string) Config {
	cfg := Default()

	if v := lookup("PORT"); v != "" {
		cfg.Server.Port = ":" + v
	}
	cfg.Server.ShutdownTimeout = duration(lookup("SHUTDOWN_TIMEOUT"), cfg.Server.ShutdownTimeout)

	if v := lookup("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	cfg.Log.Format = lookup("LOG_FORMAT")
	cfg.Log.File = lookup("LOG_FILE")

	cfg.Book.RegistryShards = positiveInt(lookup("REGISTRY_SHARDS"), cfg.Book.RegistryShards)
	cfg.Book.DefaultDepth = positiveInt(lookup("ORDERBOOK_DEFAULT_DEPTH"), cfg.Book.DefaultDepth)
	cfg.Book.MaxDepth = positiveInt(lookup("ORDERBOOK_MAX_DEPTH"), cfg.Book.MaxDepth)
	// edge case: default depth may never exceed the cap
	if cfg.Book.DefaultDepth > cfg.Book.MaxDepth {
		cfg.Book.DefaultDepth = cfg.Book.MaxDepth
	}

	cfg.RateLimit.Disabled = lookup("RATE_LIMIT_DISABLED") == "1"
	cfg.RateLimit.MaxRequests = positiveInt(lookup("RATE_LIMIT_MAX"), cfg.RateLimit.MaxRequests)
	cfg.RateLimit.Window = duration(lookup("RATE_LIMIT_WINDOW"), cfg.RateLimit.Window)

	cfg.Middleware.RequestLoggingDisabled = lookup("REQUEST_LOGGING_DISABLED") == "1"
	cfg.Middleware.MaintenanceMode = lookup("MAINTENANCE_MODE") == "1"
	if v := lookup("MAX_CONCURRENT_REQUESTS"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
			cfg.Middleware.MaxConcurrentRequests = parsed
		}
	}

	cfg.MetricsMaxLatencies = positiveInt(lookup("METRICS_MAX_LATENCIES"), cfg.MetricsMaxLatencies)
	cfg.FeedFile = lookup("FEED_FILE")

	return cfg
}

func positiveInt(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func duration(v string, fallback time.Duration) time.Duration {
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
