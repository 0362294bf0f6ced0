package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"indexpanic-sysv1/internal/analytics"
)

// Config holds process-wide immutable state, loaded once at startup from
// environment variables (spec §6/§9: "read once at startup and passed by
// value to each worker; no runtime reconfiguration").
type Config struct {
	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Event log
	EventLogBackend    string // "redis" or "memory"
	StreamMaxLen       int64
	ConsumerBlockMs    int
	PELReclaimInterval time.Duration
	PELMinIdle         time.Duration

	// Feed
	FeedURL             string
	SubscribeInstruments string
	ReconnectMinBackoff time.Duration
	ReconnectMaxBackoff time.Duration

	// Assembler
	AssemblerSweepInterval time.Duration

	// Orchestrator
	ShutdownGrace time.Duration
	MaxCrashes    int
	CrashWindow   time.Duration

	ScorerWeights      analytics.ScorerWeights
	DetectorThresholds analytics.DetectorThresholds
}

// Load reads configuration from environment variables with sensible
// defaults. FeedURL and, when running against the Redis backend,
// RedisAddr have no sane default — there is no placeholder broker feed or
// Redis instance to fall back to — so Load fails fast (spec §7's Fatal
// class: "configuration missing... abort process with non-zero exit")
// rather than starting the pipeline against a dead endpoint.
func Load() *Config {
	eventLogBackend := getEnv("EVENTLOG_BACKEND", "redis")

	var redisAddr string
	if eventLogBackend == "redis" {
		redisAddr = mustEnv("REDIS_ADDR")
	} else {
		redisAddr = getEnv("REDIS_ADDR", "")
	}

	return &Config{
		RedisAddr:     redisAddr,
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/pipeline.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		EventLogBackend:    eventLogBackend,
		StreamMaxLen:       getEnvInt64("STREAM_MAX_LEN", 100000),
		ConsumerBlockMs:    getEnvInt("CONSUMER_BLOCK_MS", 1000),
		PELReclaimInterval: getEnvDuration("PEL_RECLAIM_INTERVAL", 30*time.Second),
		PELMinIdle:         getEnvDuration("PEL_MIN_IDLE", 60*time.Second),

		FeedURL:              mustEnv("FEED_URL"),
		SubscribeInstruments: getEnv("SUBSCRIBE_INSTRUMENTS", "NSE_FO:NIFTY25JAN24000CE"),
		ReconnectMinBackoff:  getEnvDuration("RECONNECT_MIN_BACKOFF", 5*time.Second),
		ReconnectMaxBackoff:  getEnvDuration("RECONNECT_MAX_BACKOFF", 60*time.Second),

		AssemblerSweepInterval: getEnvDuration("ASSEMBLER_SWEEP_INTERVAL", 30*time.Second),

		ShutdownGrace: getEnvDuration("SHUTDOWN_GRACE", 10*time.Second),
		MaxCrashes:    getEnvInt("ORCHESTRATOR_MAX_CRASHES", 5),
		CrashWindow:   getEnvDuration("ORCHESTRATOR_CRASH_WINDOW", 60*time.Second),

		ScorerWeights:      loadScorerWeights(),
		DetectorThresholds: loadDetectorThresholds(),
	}
}

func loadScorerWeights() analytics.ScorerWeights {
	d := analytics.DefaultScorerWeights()
	return analytics.ScorerWeights{
		Volume:        getEnvFloat("SCORER_WEIGHT_VOLUME", d.Volume),
		OI:            getEnvFloat("SCORER_WEIGHT_OI", d.OI),
		OrderBook:     getEnvFloat("SCORER_WEIGHT_ORDERBOOK", d.OrderBook),
		Volatility:    getEnvFloat("SCORER_WEIGHT_VOLATILITY", d.Volatility),
		Greek:         getEnvFloat("SCORER_WEIGHT_GREEK", d.Greek),
		SpreadPenalty: getEnvFloat("SCORER_WEIGHT_SPREAD_PENALTY", d.SpreadPenalty),
	}
}

func loadDetectorThresholds() analytics.DetectorThresholds {
	d := analytics.DefaultDetectorThresholds()
	return analytics.DetectorThresholds{
		OIDecrease:     getEnvFloat("DETECTOR_OI_DECREASE", d.OIDecrease),
		PriceIncrease:  getEnvFloat("DETECTOR_PRICE_INCREASE", d.PriceIncrease),
		GammaSpike:     getEnvFloat("DETECTOR_GAMMA_SPIKE", d.GammaSpike),
		OrderBookPanic: getEnvFloat("DETECTOR_ORDERBOOK_PANIC", d.OrderBookPanic),
		Spread:         getEnvFloat("DETECTOR_SPREAD", d.Spread),
		VWAPDeviation:  getEnvFloat("DETECTOR_VWAP_DEVIATION", d.VWAPDeviation),
		PanicScoreBuy:  getEnvFloat("DETECTOR_PANIC_SCORE_BUY", d.PanicScoreBuy),
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("[config] invalid int64 for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s=%q, using default %v", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid duration for %s=%q, using default %v", key, v, fallback)
		return fallback
	}
	return d
}
