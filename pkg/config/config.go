// Package config loads runtime configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable the detector reads at startup.
type Config struct {
	DatabaseURL string

	// Venue endpoints and credentials.
	GammaBaseURL    string
	ClobBaseURL     string
	KalshiBaseURL   string
	KalshiWSURL     string
	KalshiAPIKey    string
	PolyrouterURL   string
	PolyrouterKey   string
	EnablePolyrouter bool

	// direct | router
	MarketDataSource string

	// Signal thresholds.
	MinEdge            float64
	SlippageK          float64
	MaxNotionalPerEvent float64
	DepthMultiplier    float64
	MinSecondsToStart  int

	// Fees in basis points per venue.
	FeePolyBps   float64
	FeeKalshiBps float64

	EnableNBA    bool
	EnableSoccer bool

	DiscoveryInterval   time.Duration
	SignalInterval      time.Duration
	WSBroadcastInterval time.Duration

	MarketDiscoveryLimit    int
	RequestTimeout          time.Duration
	PolyrouterPageLimit     int
	PolyrouterBatchSize     int
	PolyrouterReqPerMinute  int

	OverridesPath      string
	EnableDemoFallback bool

	HTTPAddr string
	LogLevel string
}

// Load reads .env if present, then the process environment, applying defaults.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DatabaseURL: envStr("DATABASE_URL", "sportsarb.db"),

		GammaBaseURL:     envStr("GAMMA_BASE_URL", "https://gamma-api.polymarket.com"),
		ClobBaseURL:      envStr("CLOB_BASE_URL", "https://clob.polymarket.com"),
		KalshiBaseURL:    envStr("KALSHI_BASE_URL", "https://api.elections.kalshi.com/trade-api/v2"),
		KalshiWSURL:      envStr("KALSHI_WS_URL", "wss://api.elections.kalshi.com/trade-api/ws/v2"),
		KalshiAPIKey:     envStr("KALSHI_API_KEY", ""),
		PolyrouterURL:    envStr("POLYROUTER_BASE_URL", "https://api.polyrouter.io/v1"),
		PolyrouterKey:    envStr("POLYROUTER_API_KEY", ""),
		EnablePolyrouter: envBool("ENABLE_POLYROUTER", false),

		MarketDataSource: envStr("MARKET_DATA_SOURCE", "direct"),

		MinEdge:             envFloat("MIN_EDGE", 0.008),
		SlippageK:           envFloat("SLIPPAGE_K", 0.20),
		MaxNotionalPerEvent: envFloat("MAX_NOTIONAL_PER_EVENT", 250),
		DepthMultiplier:     envFloat("DEPTH_MULTIPLIER", 1.5),
		MinSecondsToStart:   envInt("MIN_SECONDS_TO_START", 300),

		FeePolyBps:   envFloat("FEE_POLY_BPS", 40),
		FeeKalshiBps: envFloat("FEE_KALSHI_BPS", 35),

		EnableNBA:    envBool("ENABLE_NBA", true),
		EnableSoccer: envBool("ENABLE_SOCCER", true),

		DiscoveryInterval:   envDuration("DISCOVERY_INTERVAL_SEC", 180*time.Second),
		SignalInterval:      envDuration("SIGNAL_INTERVAL_SEC", 2*time.Second),
		WSBroadcastInterval: envDuration("WS_BROADCAST_INTERVAL_SEC", time.Second),

		MarketDiscoveryLimit:   envInt("MARKET_DISCOVERY_LIMIT", 500),
		RequestTimeout:         envDuration("REQUEST_TIMEOUT_SEC", 15*time.Second),
		PolyrouterPageLimit:    envInt("POLYROUTER_PAGE_LIMIT", 100),
		PolyrouterBatchSize:    envInt("POLYROUTER_ORDERBOOK_BATCH_SIZE", 10),
		PolyrouterReqPerMinute: envInt("POLYROUTER_REQ_PER_MINUTE", 60),

		OverridesPath:      envStr("OVERRIDES_PATH", ""),
		EnableDemoFallback: envBool("ENABLE_DEMO_FALLBACK", false),

		HTTPAddr: envStr("HTTP_ADDR", ":8000"),
		LogLevel: envStr("LOG_LEVEL", "info"),
	}
}

// ActiveDataSource resolves the configured source against router availability.
// The router is only usable when it is enabled and an API key is present.
func (c Config) ActiveDataSource() string {
	if c.MarketDataSource == "router" && c.EnablePolyrouter && c.PolyrouterKey != "" {
		return "router"
	}
	return "direct"
}

// FeeBps returns the venue fee schedule in basis points.
func (c Config) FeeBps(venue string) float64 {
	switch venue {
	case "KALSHI":
		return c.FeeKalshiBps
	default:
		return c.FeePolyBps
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// envDuration reads a duration expressed in seconds (fractions allowed).
func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return time.Duration(f * float64(time.Second))
		}
	}
	return def
}
