package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.MetricsNamespace != "choir" {
		t.Fatalf("MetricsNamespace = %q, want %q", cfg.MetricsNamespace, "choir")
	}
	if cfg.ProviderTimeout != 60*time.Second {
		t.Fatalf("ProviderTimeout = %v, want %v", cfg.ProviderTimeout, 60*time.Second)
	}
	if cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = true, want false default")
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("CHOIR_BIND_ADDR", ":9191")
	t.Setenv("CHOIR_PROVIDER_TIMEOUT", "10s")
	t.Setenv("CHOIR_LOG_LEVEL", "debug")
	t.Setenv("ZAI_API_KEY", " sk-test ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9191")
	}
	if cfg.ProviderTimeout != 10*time.Second {
		t.Fatalf("ProviderTimeout = %v, want %v", cfg.ProviderTimeout, 10*time.Second)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
	if cfg.DefaultAPIKeys["zai"] != "sk-test" {
		t.Fatalf("DefaultAPIKeys[zai] = %q, want trimmed %q", cfg.DefaultAPIKeys["zai"], "sk-test")
	}
}

func TestLoadRejectsTinyProviderTimeout(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("CHOIR_PROVIDER_TIMEOUT", "100ms")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for sub-second provider timeout")
	}
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("CHOIR_LOG_LEVEL", "verbose")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for unknown log level")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"CHOIR_BIND_ADDR",
		"CHOIR_SHUTDOWN_TIMEOUT",
		"CHOIR_PROVIDER_TIMEOUT",
		"CHOIR_METRICS_NAMESPACE",
		"CHOIR_ALLOW_ANY_ORIGIN",
		"CHOIR_DATABASE_URL",
		"CHOIR_LOG_FILE",
		"CHOIR_LOG_LEVEL",
		"ZAI_API_KEY",
		"GEMINI_API_KEY",
		"MISTRAL_API_KEY",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}
