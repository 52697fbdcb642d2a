package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voice turn-taking service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	SampleRate    int
	WindowSamples int
	GateThreshold float64
	QuietInterval time.Duration

	HistoryWindow    int
	GenerateAttempts int
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	FallbackReply    string

	LLMHTTPURL string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "veezy"),
		AllowAnyOrigin:   false,
		SampleRate:       16000,
		// 20ms windows at 16kHz.
		WindowSamples:            320,
		GateThreshold:            0.012,
		QuietInterval:            1800 * time.Millisecond,
		HistoryWindow:            10,
		GenerateAttempts:         3,
		BackoffBase:              250 * time.Millisecond,
		BackoffCap:               2 * time.Second,
		FallbackReply:            envOrDefault("APP_FALLBACK_REPLY", ""),
		LLMHTTPURL:               stringsTrimSpace("LLM_HTTP_URL"),
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.QuietInterval, err = durationFromEnv("VOICE_QUIET_INTERVAL", cfg.QuietInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.BackoffBase, err = durationFromEnv("VOICE_BACKOFF_BASE", cfg.BackoffBase)
	if err != nil {
		return Config{}, err
	}
	cfg.BackoffCap, err = durationFromEnv("VOICE_BACKOFF_CAP", cfg.BackoffCap)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	cfg.SampleRate, err = intFromEnv("VOICE_SAMPLE_RATE", cfg.SampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.WindowSamples, err = intFromEnv("VOICE_WINDOW_SAMPLES", cfg.WindowSamples)
	if err != nil {
		return Config{}, err
	}
	cfg.GateThreshold, err = floatFromEnv("VOICE_GATE_THRESHOLD", cfg.GateThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryWindow, err = intFromEnv("VOICE_HISTORY_WINDOW", cfg.HistoryWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.GenerateAttempts, err = intFromEnv("VOICE_GENERATE_ATTEMPTS", cfg.GenerateAttempts)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.SampleRate <= 0 {
		return Config{}, fmt.Errorf("VOICE_SAMPLE_RATE must be positive")
	}
	if cfg.WindowSamples <= 0 {
		return Config{}, fmt.Errorf("VOICE_WINDOW_SAMPLES must be positive")
	}
	if cfg.GateThreshold < 0 || cfg.GateThreshold >= 1 {
		return Config{}, fmt.Errorf("VOICE_GATE_THRESHOLD must be in [0, 1)")
	}
	if cfg.QuietInterval < 100*time.Millisecond {
		return Config{}, fmt.Errorf("VOICE_QUIET_INTERVAL must be at least 100ms")
	}
	if cfg.HistoryWindow < 0 {
		return Config{}, fmt.Errorf("VOICE_HISTORY_WINDOW must be >= 0")
	}
	if cfg.GenerateAttempts <= 0 {
		return Config{}, fmt.Errorf("VOICE_GENERATE_ATTEMPTS must be positive")
	}
	if cfg.BackoffBase <= 0 || cfg.BackoffCap < cfg.BackoffBase {
		return Config{}, fmt.Errorf("VOICE_BACKOFF_CAP must be >= VOICE_BACKOFF_BASE > 0")
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
