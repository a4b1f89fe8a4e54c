package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Config contains all runtime settings for the choir service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	// ProviderTimeout bounds a single upstream provider call. One slow
	// provider degrades into a per-provider error entry, never the cycle.
	ProviderTimeout time.Duration

	// DefaultAPIKeys supplies per-provider credentials when the request
	// body does not carry them. Key is the provider id.
	DefaultAPIKeys map[string]string

	DatabaseURL string

	LogFile  string
	LogLevel slog.Level
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("CHOIR_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("CHOIR_METRICS_NAMESPACE", "choir"),
		AllowAnyOrigin:   false,
		ShutdownTimeout:  15 * time.Second,
		ProviderTimeout:  60 * time.Second,
		DatabaseURL:      trimmedEnv("CHOIR_DATABASE_URL"),
		LogFile:          trimmedEnv("CHOIR_LOG_FILE"),
		DefaultAPIKeys: map[string]string{
			"zai":     trimmedEnv("ZAI_API_KEY"),
			"gemini":  trimmedEnv("GEMINI_API_KEY"),
			"mistral": trimmedEnv("MISTRAL_API_KEY"),
		},
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("CHOIR_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ProviderTimeout, err = durationFromEnv("CHOIR_PROVIDER_TIMEOUT", cfg.ProviderTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("CHOIR_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel, err = levelFromEnv("CHOIR_LOG_LEVEL", slog.LevelInfo)
	if err != nil {
		return Config{}, err
	}

	if cfg.ProviderTimeout < time.Second {
		return Config{}, fmt.Errorf("CHOIR_PROVIDER_TIMEOUT must be at least 1s")
	}
	if cfg.ShutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("CHOIR_SHUTDOWN_TIMEOUT must be positive")
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

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
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

func levelFromEnv(key string, fallback slog.Level) (slog.Level, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%s parse error: expected debug|info|warn|error", key)
	}
}
