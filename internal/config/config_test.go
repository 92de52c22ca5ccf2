package config

import "testing"

func TestLoadDefaultsStreamingModeAndEmptyWebhookBaseURL(t *testing.T) {
	setCoreEnvEmpty(t)
	setRequiredEnv(t)
	t.Setenv("APP_BIND_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LLMStreamingMode != "streaming" {
		t.Fatalf("LLMStreamingMode = %q, want %q", cfg.LLMStreamingMode, "streaming")
	}
	if cfg.WebhookBaseURL != "" {
		t.Fatalf("WebhookBaseURL = %q, want empty default", cfg.WebhookBaseURL)
	}
}

func TestLoadUsesExplicitLLMBaseURL(t *testing.T) {
	setCoreEnvEmpty(t)
	setRequiredEnv(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("LLM_BASE_URL", "http://localhost:7777/custom")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLMBaseURL != "http://localhost:7777/custom" {
		t.Fatalf("LLMBaseURL = %q, want explicit value", cfg.LLMBaseURL)
	}
}

// setRequiredEnv sets the variables Load rejects when empty.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/salesagent_test")
	t.Setenv("LLM_BASE_URL", "http://localhost:9000")
	t.Setenv("TTS_BASE_URL", "http://localhost:9001")
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"DATABASE_URL",
		"LLM_BASE_URL",
		"LLM_API_KEY",
		"LLM_MODEL",
		"LLM_STREAMING_MODE",
		"TTS_BASE_URL",
		"TTS_API_KEY",
		"TTS_MODEL",
		"TTS_VOICE",
		"TTS_CACHE_DIR",
		"TTS_MEMORY_CACHE_SIZE",
		"CARRIER_NAME",
		"CARRIER_AUTH_TOKEN",
		"CARRIER_SIGNING_KEY",
		"WEBHOOK_BASE_URL",
		"SIGNATURE_VERIFICATION_ENABLED",
		"RESPONSE_CACHE_MAX_SIZE",
		"RESPONSE_CACHE_TTL_SECONDS",
		"QUALITY_BASELINE_SCORE",
		"QUALITY_ALERT_THRESHOLD",
		"CIRCUIT_BREAKER_FAILURE_THRESHOLD",
		"CIRCUIT_BREAKER_COOLDOWN_SECONDS",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
