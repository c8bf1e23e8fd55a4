package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the full runtime configuration, loaded from the environment.
// The RUVECTOR_* and AGENT_* variables are required; everything prefixed
// EVALBENCH_ has a default.
type Config struct {
	ListenAddr string
	LogLevel   string

	// Decision store (the ruvector service).
	StoreURL    string
	StoreAPIKey string

	// Agent identity, stamped into logs at startup.
	AgentName   string
	AgentDomain string
	AgentPhase  string
	AgentLayer  string

	ProviderTimeoutSecs int
	KeyCacheTTLSecs     int

	CORSOrigins    []string // allowed CORS origins; empty = ["*"]
	RateLimitRPS   int      // requests per second per IP
	RateLimitBurst int      // burst capacity per IP

	PipelineBufferSize int
	FlushIntervalSecs  int
	DrainTimeoutSecs   int

	OTelEnabled  bool
	OTelEndpoint string
}

func LoadConfig() (Config, error) {
	cfg := Config{
		ListenAddr: getEnv("EVALBENCH_LISTEN_ADDR", ":8080"),
		LogLevel:   getEnv("EVALBENCH_LOG_LEVEL", "info"),

		StoreURL:    getEnv("RUVECTOR_SERVICE_URL", ""),
		StoreAPIKey: getEnv("RUVECTOR_API_KEY", ""),

		AgentName:   getEnv("AGENT_NAME", ""),
		AgentDomain: getEnv("AGENT_DOMAIN", ""),
		AgentPhase:  getEnv("AGENT_PHASE", ""),
		AgentLayer:  getEnv("AGENT_LAYER", ""),

		ProviderTimeoutSecs: getEnvInt("EVALBENCH_PROVIDER_TIMEOUT_SECS", 30),
		KeyCacheTTLSecs:     getEnvInt("EVALBENCH_KEY_CACHE_TTL_SECS", 300),

		CORSOrigins:    getEnvStringSlice("EVALBENCH_CORS_ORIGINS", nil),
		RateLimitRPS:   getEnvInt("EVALBENCH_RATE_LIMIT_RPS", 60),
		RateLimitBurst: getEnvInt("EVALBENCH_RATE_LIMIT_BURST", 120),

		PipelineBufferSize: getEnvInt("EVALBENCH_PIPELINE_BUFFER", 256),
		FlushIntervalSecs:  getEnvInt("EVALBENCH_FLUSH_INTERVAL_SECS", 5),
		DrainTimeoutSecs:   getEnvInt("EVALBENCH_DRAIN_TIMEOUT_SECS", 10),

		OTelEnabled:  getEnvBool("EVALBENCH_OTEL_ENABLED", false),
		OTelEndpoint: getEnv("EVALBENCH_OTEL_ENDPOINT", "localhost:4318"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks config values for missing or obviously invalid settings.
func (c Config) Validate() error {
	if c.StoreURL == "" {
		return fmt.Errorf("RUVECTOR_SERVICE_URL is required")
	}
	if c.StoreAPIKey == "" {
		return fmt.Errorf("RUVECTOR_API_KEY is required")
	}
	if c.AgentName == "" {
		return fmt.Errorf("AGENT_NAME is required")
	}
	if c.AgentDomain == "" {
		return fmt.Errorf("AGENT_DOMAIN is required")
	}
	if c.AgentPhase != "phase1" {
		return fmt.Errorf("AGENT_PHASE must be %q, got %q", "phase1", c.AgentPhase)
	}
	if c.AgentLayer != "layer1" {
		return fmt.Errorf("AGENT_LAYER must be %q, got %q", "layer1", c.AgentLayer)
	}
	if c.ProviderTimeoutSecs <= 0 {
		return fmt.Errorf("EVALBENCH_PROVIDER_TIMEOUT_SECS must be > 0, got %d", c.ProviderTimeoutSecs)
	}
	if c.KeyCacheTTLSecs <= 0 {
		return fmt.Errorf("EVALBENCH_KEY_CACHE_TTL_SECS must be > 0, got %d", c.KeyCacheTTLSecs)
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("EVALBENCH_RATE_LIMIT_RPS must be > 0, got %d", c.RateLimitRPS)
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("EVALBENCH_RATE_LIMIT_BURST must be > 0, got %d", c.RateLimitBurst)
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("EVALBENCH_PIPELINE_BUFFER must be > 0, got %d", c.PipelineBufferSize)
	}
	if c.FlushIntervalSecs <= 0 {
		return fmt.Errorf("EVALBENCH_FLUSH_INTERVAL_SECS must be > 0, got %d", c.FlushIntervalSecs)
	}
	if c.DrainTimeoutSecs <= 0 {
		return fmt.Errorf("EVALBENCH_DRAIN_TIMEOUT_SECS must be > 0, got %d", c.DrainTimeoutSecs)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvStringSlice(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				result = append(result, s)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return def
}
