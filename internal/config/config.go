package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the outbound sales voice agent.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	DatabaseURL string

	LLMBaseURL        string
	LLMAPIKey         string
	LLMModel          string
	LLMStreamingMode  string // "streaming" or "serial"
	LLMTimeoutS0toS4  time.Duration
	LLMTimeoutS5toS9  time.Duration
	LLMTimeoutS10toS12 time.Duration

	TTSBaseURL   string
	TTSAPIKey    string
	TTSModel     string
	TTSVoice     string
	TTSCacheDir  string
	TTSCacheSize int

	CarrierName         string
	CarrierAuthToken    string
	CarrierSigningKey   string
	WebhookBaseURL      string
	SignatureVerifyOn   bool

	ResponseCacheTTL       time.Duration
	ResponseCacheMaxSize   int
	QualityBaselineScore   float64
	QualityAlertThreshold  float64
	QualityWindowSize      int

	CircuitBreakerFailureThreshold int
	CircuitBreakerCooldown         time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "salesagent"),
		AllowAnyOrigin:   false,

		DatabaseURL: stringsTrimSpace("DATABASE_URL"),

		LLMBaseURL:       stringsTrimSpace("LLM_BASE_URL"),
		LLMAPIKey:        stringsTrimSpace("LLM_API_KEY"),
		LLMModel:         envOrDefault("LLM_MODEL", "default"),
		LLMStreamingMode: envOrDefault("LLM_STREAMING_MODE", "streaming"),

		TTSBaseURL:   stringsTrimSpace("TTS_BASE_URL"),
		TTSAPIKey:    stringsTrimSpace("TTS_API_KEY"),
		TTSModel:     envOrDefault("TTS_MODEL", "default"),
		TTSVoice:     envOrDefault("TTS_VOICE", "default"),
		TTSCacheDir:  envOrDefault("TTS_CACHE_DIR", ".cache/tts"),
		TTSCacheSize: 50,

		CarrierName:       envOrDefault("CARRIER_NAME", "twilio"),
		CarrierAuthToken:  stringsTrimSpace("CARRIER_AUTH_TOKEN"),
		CarrierSigningKey: stringsTrimSpace("CARRIER_SIGNING_KEY"),
		WebhookBaseURL:    stringsTrimSpace("WEBHOOK_BASE_URL"),
		SignatureVerifyOn: true,

		ResponseCacheTTL:      10 * time.Minute,
		ResponseCacheMaxSize:  2000,
		QualityBaselineScore:  75,
		QualityAlertThreshold: 10,
		QualityWindowSize:     50,

		ShutdownTimeout:    15 * time.Second,
		LLMTimeoutS0toS4:   4 * time.Second,
		LLMTimeoutS5toS9:   5 * time.Second,
		LLMTimeoutS10toS12: 6 * time.Second,

		CircuitBreakerFailureThreshold: 5,
		CircuitBreakerCooldown:         60 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.SignatureVerifyOn, err = boolFromEnv("SIGNATURE_VERIFICATION_ENABLED", cfg.SignatureVerifyOn)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSCacheSize, err = intFromEnv("TTS_MEMORY_CACHE_SIZE", cfg.TTSCacheSize)
	if err != nil {
		return Config{}, err
	}
	cfg.ResponseCacheMaxSize, err = intFromEnv("RESPONSE_CACHE_MAX_SIZE", cfg.ResponseCacheMaxSize)
	if err != nil {
		return Config{}, err
	}
	if ttlSeconds, err := intFromEnv("RESPONSE_CACHE_TTL_SECONDS", int(cfg.ResponseCacheTTL.Seconds())); err != nil {
		return Config{}, err
	} else {
		cfg.ResponseCacheTTL = time.Duration(ttlSeconds) * time.Second
	}
	cfg.QualityBaselineScore, err = floatFromEnv("QUALITY_BASELINE_SCORE", cfg.QualityBaselineScore)
	if err != nil {
		return Config{}, err
	}
	cfg.QualityAlertThreshold, err = floatFromEnv("QUALITY_ALERT_THRESHOLD", cfg.QualityAlertThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.CircuitBreakerFailureThreshold, err = intFromEnv("CIRCUIT_BREAKER_FAILURE_THRESHOLD", cfg.CircuitBreakerFailureThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.CircuitBreakerCooldown, err = durationFromEnv("CIRCUIT_BREAKER_COOLDOWN_SECONDS", cfg.CircuitBreakerCooldown)
	if err != nil {
		return Config{}, err
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.LLMBaseURL == "" {
		return Config{}, fmt.Errorf("LLM_BASE_URL is required")
	}
	if cfg.TTSBaseURL == "" {
		return Config{}, fmt.Errorf("TTS_BASE_URL is required")
	}
	if cfg.LLMStreamingMode != "streaming" && cfg.LLMStreamingMode != "serial" {
		return Config{}, fmt.Errorf("LLM_STREAMING_MODE must be streaming or serial")
	}
	if cfg.TTSCacheSize <= 0 {
		return Config{}, fmt.Errorf("TTS_MEMORY_CACHE_SIZE must be positive")
	}
	if cfg.ResponseCacheMaxSize <= 0 {
		return Config{}, fmt.Errorf("RESPONSE_CACHE_MAX_SIZE must be positive")
	}
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		return Config{}, fmt.Errorf("CIRCUIT_BREAKER_FAILURE_THRESHOLD must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
