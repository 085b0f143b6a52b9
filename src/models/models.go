package models

import "github.com/shopspring/decimal"

// Prices and quantities travel as decimal strings with two places.

type UpdateOrderRequest struct {
	Instrument string          `json:"instrument"`
	Side       string          `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Timestamp  int64           `json:"timestamp"` // unix timestamp in milliseconds
}

type UpdateOrderResponse struct {
	Applied bool   `json:"applied"`
	Action  string `json:"action"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type OrderInfo struct {
	Instrument string `json:"instrument"`
	Side       string `json:"side"`
	Price      string `json:"price"`
	Quantity   string `json:"quantity"`
	Timestamp  int64  `json:"timestamp"` // unix timestamp in milliseconds
}

type PriceLevelInfo struct {
	Price  string      `json:"price"`
	Orders []OrderInfo `json:"orders"`
}

type LevelSummaryInfo struct {
	Price    string `json:"price"`
	Count    int    `json:"count"`
	Quantity string `json:"quantity"` // aggregated quantity at this price
}

type BestPriceResponse struct {
	Instrument string `json:"instrument"`
	Side       string `json:"side"`
	Price      string `json:"price,omitempty"`
	Found      bool   `json:"found"`
}

type LevelOrdersResponse struct {
	Instrument string      `json:"instrument"`
	Side       string      `json:"side"`
	Price      string      `json:"price"`
	Orders     []OrderInfo `json:"orders"`
}

type DepthResponse struct {
	Instrument string           `json:"instrument"`
	Side       string           `json:"side"`
	Depth      int              `json:"depth"`
	Levels     []PriceLevelInfo `json:"levels"` // best price first
}

type StatsResponse struct {
	Instrument    string             `json:"instrument"`
	Side          string             `json:"side"`
	Depth         int                `json:"depth"`
	AveragePrice  string             `json:"average_price"`
	TotalQuantity string             `json:"total_quantity"`
	Levels        []LevelSummaryInfo `json:"levels"`
}

type BookInfo struct {
	Buy  []PriceLevelInfo `json:"buy"`  // sorted descending (highest first)
	Sell []PriceLevelInfo `json:"sell"` // sorted ascending (lowest first)
}

type FullBookResponse struct {
	Timestamp int64               `json:"timestamp"` // unix timestamp in milliseconds
	Books     map[string]BookInfo `json:"books"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Instruments   int    `json:"instruments"`
}

type MetricsResponse struct {
	UpdatesReceived         int64   `json:"updates_received"`
	UpdatesApplied          int64   `json:"updates_applied"`
	UpdatesRejected         int64   `json:"updates_rejected"`
	Inserts                 int64   `json:"inserts"`
	Replaces                int64   `json:"replaces"`
	Deletes                 int64   `json:"deletes"`
	NoOps                   int64   `json:"noops"`
	Ignores                 int64   `json:"ignores"`
	ConsistencyViolations   int64   `json:"consistency_violations"`
	Instruments             int     `json:"instruments"`
	LatencyP50Ms            float64 `json:"latency_p50_ms"`
	LatencyP99Ms            float64 `json:"latency_p99_ms"`
	LatencyP999Ms           float64 `json:"latency_p999_ms"`
	ThroughputUpdatesPerSec float64 `json:"throughput_updates_per_sec"`
}
