package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"APP_NAME", "APP_ENV", "PORT", "LOG_LEVEL", "STORE_BACKEND", "DATABASE_URL", "DATABASE_MAX_CONNS",
		"REDIS_URL", "GATEWAY_CHARGES_URL", "GATEWAY_TIMEOUT", "GATEWAY_TIMEOUT_SECONDS", "GATEWAY_MIN_AMOUNT",
		shutdownSecondsEnvVar, shutdownDurationEnvVar,
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreBackend != StoreMemory {
		t.Fatalf("expected memory backend in development, got %s", cfg.StoreBackend)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
	if cfg.GatewayTimeout != 10*time.Second || cfg.ShutdownPeriod != 10*time.Second {
		t.Fatalf("unexpected timeouts: gateway=%s shutdown=%s", cfg.GatewayTimeout, cfg.ShutdownPeriod)
	}
	if !cfg.GatewayMinAmount.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("unexpected gateway floor %s", cfg.GatewayMinAmount)
	}
}

func TestLoad_ProductionRequiresDatabase(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatalf("expected DATABASE_URL to be required")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/wallet")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreBackend != StorePostgres {
		t.Fatalf("expected postgres backend, got %s", cfg.StoreBackend)
	}
}

func TestLoad_RedisBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "Redis")

	if _, err := Load(); err == nil {
		t.Fatalf("expected REDIS_URL to be required")
	}
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreBackend != StoreRedis {
		t.Fatalf("expected redis backend, got %s", cfg.StoreBackend)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"STORE_BACKEND":      "mongo",
		"GATEWAY_MIN_AMOUNT": "five",
		"GATEWAY_TIMEOUT":    "soon",
		"DATABASE_MAX_CONNS": "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected %s=%q to be rejected", key, value)
			}
		})
	}
}

func TestLoad_DurationOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GATEWAY_TIMEOUT", "1500ms")
	t.Setenv(shutdownSecondsEnvVar, "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GatewayTimeout != 1500*time.Millisecond {
		t.Fatalf("unexpected gateway timeout %s", cfg.GatewayTimeout)
	}
	if cfg.ShutdownPeriod != 3*time.Second {
		t.Fatalf("unexpected shutdown period %s", cfg.ShutdownPeriod)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("GATEWAY_MIN_AMOUNT=2.5\nAPP_NAME=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("APP_NAME", "from-env")

	// Present-but-empty variables are not overridden by the file.
	os.Unsetenv("GATEWAY_MIN_AMOUNT")
	if err := LoadEnvFile(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("load env file: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppName != "from-env" {
		t.Fatalf("environment must win over the file, got %q", cfg.AppName)
	}
	if !cfg.GatewayMinAmount.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("expected floor from file, got %s", cfg.GatewayMinAmount)
	}
}
