package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName           = "WalletLedger"
	defaultAppEnv            = "development"
	defaultPort              = "8080"
	defaultLogLevel          = "info"
	defaultShutdownDelay     = 10 * time.Second
	defaultIdempotencyTTL    = 24 * time.Hour
	defaultAccessTokenTTL    = 15 * time.Minute
	defaultRefreshTokenTTL   = 7 * 24 * time.Hour
	defaultLockTimeout       = 5 * time.Second
	defaultTransferRateLimit = 60
	defaultKafkaTopic        = "ledger.events"
	defaultRelayInterval     = 2 * time.Second
	defaultRelayBatchSize    = 100
	devSecret                = "dev-only-secret"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	// DatabaseMaxConns caps the pgx pool. Zero keeps the driver default.
	DatabaseMaxConns int
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	JWTSecret       string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	LockTimeout       time.Duration
	StrictLedgerCheck bool
	SystemOverdraft   bool
	// TransferRateLimit is the number of transfers one actor may submit per
	// minute. Zero disables the limit.
	TransferRateLimit int

	KafkaBrokers   []string
	KafkaTopic     string
	RelayInterval  time.Duration
	RelayBatchSize int
}

// Load reads configuration values from the environment and populates a Config
// instance. A .env file in the working directory is applied first when present.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		AppName:       getEnv("APP_NAME", defaultAppName),
		AppEnv:        getEnv("APP_ENV", defaultAppEnv),
		Port:          getEnv("PORT", defaultPort),
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		RefreshSecret: os.Getenv("REFRESH_SECRET"),
		KafkaBrokers:  splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:    getEnv("KAFKA_TOPIC", defaultKafkaTopic),
	}

	var err error
	durations := []struct {
		name     string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", defaultShutdownDelay, &cfg.ShutdownPeriod},
		{"IDEMPOTENCY_TTL", defaultIdempotencyTTL, &cfg.IdempotencyTTL},
		{"ACCESS_TOKEN_TTL", defaultAccessTokenTTL, &cfg.AccessTokenTTL},
		{"REFRESH_TOKEN_TTL", defaultRefreshTokenTTL, &cfg.RefreshTokenTTL},
		{"LOCK_TIMEOUT", defaultLockTimeout, &cfg.LockTimeout},
		{"RELAY_INTERVAL", defaultRelayInterval, &cfg.RelayInterval},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.name, d.fallback); err != nil {
			return Config{}, err
		}
	}

	if cfg.StrictLedgerCheck, err = getBool("STRICT_LEDGER_CHECK", false); err != nil {
		return Config{}, err
	}
	if cfg.SystemOverdraft, err = getBool("SYSTEM_WALLET_OVERDRAFT", false); err != nil {
		return Config{}, err
	}
	if cfg.TransferRateLimit, err = getInt("TRANSFER_RATE_LIMIT", defaultTransferRateLimit); err != nil {
		return Config{}, err
	}
	if cfg.RelayBatchSize, err = getInt("RELAY_BATCH_SIZE", defaultRelayBatchSize); err != nil {
		return Config{}, err
	}
	if cfg.DatabaseMaxConns, err = getInt("DB_MAX_CONNS", 0); err != nil {
		return Config{}, err
	}

	if cfg.LockTimeout <= 0 {
		return Config{}, fmt.Errorf("LOCK_TIMEOUT must be positive")
	}

	if cfg.IsDevelopment() {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = devSecret
		}
		if cfg.RefreshSecret == "" {
			cfg.RefreshSecret = devSecret + "-refresh"
		}
		return cfg, nil
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}

	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}

	if cfg.JWTSecret == "" || cfg.RefreshSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET and REFRESH_SECRET must be set")
	}

	return cfg, nil
}

// IsDevelopment reports whether the service runs in a development environment.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "development", "dev", "local", "test":
		return true
	}
	return false
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getDuration reads NAME_SECONDS as whole seconds, falling back to NAME as a
// Go duration string.
func getDuration(name string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(name + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s_SECONDS: %w", name, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(name); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", name, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
