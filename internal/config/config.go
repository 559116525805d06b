package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	defaultAppName         = "CongoPay Wallet"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultGatewayTimeout  = 10 * time.Second
	defaultGatewayMin      = "5"
	defaultDBMaxConns      = 10
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// StoreBackend selects where wallets and transactions live.
type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"
	StorePostgres StoreBackend = "postgres"
	StoreRedis    StoreBackend = "redis"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	ShutdownPeriod time.Duration

	StoreBackend     StoreBackend
	DatabaseURL      string
	DatabaseMaxConns int32
	RedisURL         string

	// GatewayChargesURL empty means the in-process static gateway is used.
	GatewayChargesURL string
	GatewayTimeout    time.Duration
	GatewayMinAmount  decimal.Decimal
}

// LoadEnvFile populates the environment from .env style files. Missing files are ignored;
// variables already set in the environment win.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:           getEnv("APP_NAME", defaultAppName),
		AppEnv:            getEnv("APP_ENV", defaultAppEnv),
		Port:              getEnv("PORT", defaultPort),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DatabaseMaxConns:  defaultDBMaxConns,
		RedisURL:          os.Getenv("REDIS_URL"),
		GatewayChargesURL: os.Getenv("GATEWAY_CHARGES_URL"),
		ShutdownPeriod:    defaultShutdownDelay,
	}

	backend := defaultBackend(cfg.AppEnv)
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		backend = StoreBackend(strings.ToLower(v))
	}
	cfg.StoreBackend = backend

	var err error
	if cfg.ShutdownPeriod, err = durationEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.GatewayTimeout, err = durationEnv("GATEWAY_TIMEOUT_SECONDS", "GATEWAY_TIMEOUT", defaultGatewayTimeout); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("DATABASE_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid DATABASE_MAX_CONNS: %q", v)
		}
		cfg.DatabaseMaxConns = int32(n)
	}

	cfg.GatewayMinAmount, err = decimal.NewFromString(getEnv("GATEWAY_MIN_AMOUNT", defaultGatewayMin))
	if err != nil {
		return Config{}, fmt.Errorf("invalid GATEWAY_MIN_AMOUNT: %w", err)
	}
	if cfg.GatewayMinAmount.IsNegative() {
		return Config{}, fmt.Errorf("GATEWAY_MIN_AMOUNT must not be negative")
	}

	switch cfg.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
	case StoreRedis:
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func defaultBackend(appEnv string) StoreBackend {
	if appEnv == defaultAppEnv || appEnv == "test" {
		return StoreMemory
	}
	return StorePostgres
}

// durationEnv reads whole seconds from secondsKey, falling back to a Go duration in durationKey.
func durationEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
