package app

import (
	"strings"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RUVECTOR_SERVICE_URL", "http://store.local:9000")
	t.Setenv("RUVECTOR_API_KEY", "secret")
	t.Setenv("AGENT_NAME", "evalbench")
	t.Setenv("AGENT_DOMAIN", "llm-evaluation")
	t.Setenv("AGENT_PHASE", "phase1")
	t.Setenv("AGENT_LAYER", "layer1")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("ListenAddr: %q", cfg.ListenAddr)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel: %q", cfg.LogLevel)
	}
	if cfg.StoreURL != "http://store.local:9000" || cfg.StoreAPIKey != "secret" {
		t.Fatalf("store config: %q %q", cfg.StoreURL, cfg.StoreAPIKey)
	}
	if cfg.ProviderTimeoutSecs != 30 || cfg.KeyCacheTTLSecs != 300 {
		t.Fatalf("timeouts: %d %d", cfg.ProviderTimeoutSecs, cfg.KeyCacheTTLSecs)
	}
	if cfg.RateLimitRPS != 60 || cfg.RateLimitBurst != 120 {
		t.Fatalf("rate limits: %d %d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.PipelineBufferSize != 256 || cfg.FlushIntervalSecs != 5 || cfg.DrainTimeoutSecs != 10 {
		t.Fatalf("pipeline: %d %d %d", cfg.PipelineBufferSize, cfg.FlushIntervalSecs, cfg.DrainTimeoutSecs)
	}
	if cfg.OTelEnabled || cfg.OTelEndpoint != "localhost:4318" {
		t.Fatalf("otel: %v %q", cfg.OTelEnabled, cfg.OTelEndpoint)
	}
	if cfg.CORSOrigins != nil {
		t.Fatalf("cors: %v", cfg.CORSOrigins)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EVALBENCH_LISTEN_ADDR", "127.0.0.1:9999")
	t.Setenv("EVALBENCH_LOG_LEVEL", "debug")
	t.Setenv("EVALBENCH_PROVIDER_TIMEOUT_SECS", "90")
	t.Setenv("EVALBENCH_CORS_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("EVALBENCH_OTEL_ENABLED", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9999" || cfg.LogLevel != "debug" {
		t.Fatalf("overrides: %q %q", cfg.ListenAddr, cfg.LogLevel)
	}
	if cfg.ProviderTimeoutSecs != 90 {
		t.Fatalf("timeout: %d", cfg.ProviderTimeoutSecs)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[0] != "https://a.example" || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("cors: %v", cfg.CORSOrigins)
	}
	if !cfg.OTelEnabled {
		t.Fatal("otel should be enabled")
	}
}

func TestLoadConfigRequiredVars(t *testing.T) {
	cases := []struct {
		unset string
		want  string
	}{
		{"RUVECTOR_SERVICE_URL", "RUVECTOR_SERVICE_URL"},
		{"RUVECTOR_API_KEY", "RUVECTOR_API_KEY"},
		{"AGENT_NAME", "AGENT_NAME"},
		{"AGENT_DOMAIN", "AGENT_DOMAIN"},
		{"AGENT_PHASE", "AGENT_PHASE"},
		{"AGENT_LAYER", "AGENT_LAYER"},
	}
	for _, c := range cases {
		t.Run(c.unset, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(c.unset, "")
			_, err := LoadConfig()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), c.want) {
				t.Fatalf("error %q should name %s", err, c.want)
			}
		})
	}
}

func TestLoadConfigPhaseAndLayerPinned(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AGENT_PHASE", "phase2")
	if _, err := LoadConfig(); err == nil || !strings.Contains(err.Error(), "AGENT_PHASE") {
		t.Fatalf("phase error: %v", err)
	}

	t.Setenv("AGENT_PHASE", "phase1")
	t.Setenv("AGENT_LAYER", "layer9")
	if _, err := LoadConfig(); err == nil || !strings.Contains(err.Error(), "AGENT_LAYER") {
		t.Fatalf("layer error: %v", err)
	}
}

func TestLoadConfigRejectsNonPositiveNumbers(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{"EVALBENCH_PROVIDER_TIMEOUT_SECS", "EVALBENCH_PROVIDER_TIMEOUT_SECS"},
		{"EVALBENCH_KEY_CACHE_TTL_SECS", "EVALBENCH_KEY_CACHE_TTL_SECS"},
		{"EVALBENCH_RATE_LIMIT_RPS", "EVALBENCH_RATE_LIMIT_RPS"},
		{"EVALBENCH_RATE_LIMIT_BURST", "EVALBENCH_RATE_LIMIT_BURST"},
		{"EVALBENCH_PIPELINE_BUFFER", "EVALBENCH_PIPELINE_BUFFER"},
		{"EVALBENCH_FLUSH_INTERVAL_SECS", "EVALBENCH_FLUSH_INTERVAL_SECS"},
		{"EVALBENCH_DRAIN_TIMEOUT_SECS", "EVALBENCH_DRAIN_TIMEOUT_SECS"},
	}
	for _, c := range cases {
		t.Run(c.key, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(c.key, "0")
			_, err := LoadConfig()
			if err == nil || !strings.Contains(err.Error(), c.want) {
				t.Fatalf("error %v should name %s", err, c.want)
			}
		})
	}
}

func TestGetEnvIntIgnoresGarbage(t *testing.T) {
	t.Setenv("EVALBENCH_TEST_INT", "not-a-number")
	if got := getEnvInt("EVALBENCH_TEST_INT", 7); got != 7 {
		t.Fatalf("got %d", got)
	}
	t.Setenv("EVALBENCH_TEST_BOOL", "maybe")
	if got := getEnvBool("EVALBENCH_TEST_BOOL", true); !got {
		t.Fatal("garbage bool should keep default")
	}
}
