package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.SampleRate != 16000 || cfg.WindowSamples != 320 {
		t.Fatalf("audio defaults = %d/%d", cfg.SampleRate, cfg.WindowSamples)
	}
	if cfg.QuietInterval != 1800*time.Millisecond {
		t.Fatalf("QuietInterval = %v", cfg.QuietInterval)
	}
	if cfg.HistoryWindow != 10 || cfg.GenerateAttempts != 3 {
		t.Fatalf("pipeline defaults = %d/%d", cfg.HistoryWindow, cfg.GenerateAttempts)
	}
	if cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin default should be false")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_BIND_ADDR", ":9999")
	t.Setenv("VOICE_QUIET_INTERVAL", "2s")
	t.Setenv("VOICE_GATE_THRESHOLD", "0.05")
	t.Setenv("VOICE_GENERATE_ATTEMPTS", "5")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9999" {
		t.Fatalf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.QuietInterval != 2*time.Second {
		t.Fatalf("QuietInterval = %v", cfg.QuietInterval)
	}
	if cfg.GateThreshold != 0.05 {
		t.Fatalf("GateThreshold = %v", cfg.GateThreshold)
	}
	if cfg.GenerateAttempts != 5 {
		t.Fatalf("GenerateAttempts = %d", cfg.GenerateAttempts)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = false")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"VOICE_QUIET_INTERVAL":            "50ms",
		"VOICE_GATE_THRESHOLD":            "1.5",
		"VOICE_WINDOW_SAMPLES":            "-1",
		"VOICE_GENERATE_ATTEMPTS":         "0",
		"APP_SESSION_INACTIVITY_TIMEOUT":  "1s",
		"APP_ALLOW_ANY_ORIGIN":            "maybe",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, val)
			}
		})
	}
}

func TestLoadRejectsUnparsable(t *testing.T) {
	t.Setenv("VOICE_BACKOFF_BASE", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}
