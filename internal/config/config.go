package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/spec-kit/lead-router/internal/domain"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Lease    LeaseConfig
	ERP      ERPConfig
	Dispatch DispatchConfig
	Phone    PhoneConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	EventsChannel string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines bearer token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	DefaultRole           domain.Role
}

// LeaseConfig controls operator leases.
type LeaseConfig struct {
	Minutes int
}

// ERPConfig points at the external order-management API.
type ERPConfig struct {
	BaseURL         string
	User            string
	Password        string
	TimeoutSeconds  int
	TokenTTLSeconds int
	RatePerSecond   float64
	RateBurst       int
}

// DispatchConfig controls the ERP dispatch outbox.
type DispatchConfig struct {
	Inline             bool
	WorkerEnabled      bool
	PollIntervalSecond int
	BatchSize          int
	MaxAttempts        int
	BackoffSeconds     int
	LockTimeoutSeconds int
	Queue              string
	Concurrency        int
}

// PhoneConfig controls customer phone normalisation.
type PhoneConfig struct {
	DefaultRegion string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	defaultRole, err := domain.ParseRole(strings.ToLower(getEnv("AUTH_DEFAULT_ROLE", string(domain.RoleOperator))))
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_DEFAULT_ROLE: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "lead-router"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:      os.Getenv("REDIS_PASSWORD"),
			DB:            redisDB,
			EventsChannel: getEnv("EVENTS_CHANNEL", "lead-router.events"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			DefaultRole:           defaultRole,
		},
		Lease: LeaseConfig{
			Minutes: getEnvAsInt("LEASE_MINUTES", 30),
		},
		ERP: ERPConfig{
			BaseURL:         strings.TrimRight(getEnv("ERP_BASE_URL", "http://localhost:9090/ApiRest"), "/"),
			User:            os.Getenv("ERP_USER"),
			Password:        os.Getenv("ERP_PASSWORD"),
			TimeoutSeconds:  getEnvAsInt("ERP_TIMEOUT_SECONDS", 15),
			TokenTTLSeconds: getEnvAsInt("ERP_TOKEN_TTL_SECONDS", 600),
			RatePerSecond:   getEnvAsFloat("ERP_RATE_PER_SECOND", 5),
			RateBurst:       getEnvAsInt("ERP_RATE_BURST", 5),
		},
		Dispatch: DispatchConfig{
			Inline:             getEnvAsBool("DISPATCH_INLINE", true),
			WorkerEnabled:      getEnvAsBool("DISPATCH_WORKER_ENABLED", true),
			PollIntervalSecond: getEnvAsInt("DISPATCH_POLL_INTERVAL_SECONDS", 5),
			BatchSize:          getEnvAsInt("DISPATCH_BATCH_SIZE", 50),
			MaxAttempts:        getEnvAsInt("DISPATCH_MAX_ATTEMPTS", 8),
			BackoffSeconds:     getEnvAsInt("DISPATCH_BACKOFF_SECONDS", 30),
			LockTimeoutSeconds: getEnvAsInt("DISPATCH_LOCK_TIMEOUT_SECONDS", 300),
			Queue:              getEnv("DISPATCH_QUEUE", "erp-dispatch"),
			Concurrency:        getEnvAsInt("DISPATCH_CONCURRENCY", 4),
		},
		Phone: PhoneConfig{
			DefaultRegion: strings.ToUpper(getEnv("PHONE_DEFAULT_REGION", "ES")),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Duration returns the lease length, falling back to the default for non-positive values.
func (l LeaseConfig) Duration() time.Duration {
	if l.Minutes <= 0 {
		return domain.DefaultLeaseDuration
	}
	return time.Duration(l.Minutes) * time.Minute
}

// Timeout returns the ERP HTTP timeout.
func (e ERPConfig) Timeout() time.Duration {
	if e.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// TokenTTL returns how long an ERP token is cached; zero disables caching.
func (e ERPConfig) TokenTTL() time.Duration {
	if e.TokenTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(e.TokenTTLSeconds) * time.Second
}

// PollInterval returns the outbox relay tick.
func (d DispatchConfig) PollInterval() time.Duration {
	if d.PollIntervalSecond <= 0 {
		return 5 * time.Second
	}
	return time.Duration(d.PollIntervalSecond) * time.Second
}

// Backoff returns the base retry delay for failed dispatches.
func (d DispatchConfig) Backoff() time.Duration {
	if d.BackoffSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(d.BackoffSeconds) * time.Second
}

// LockTimeout returns how long a processing job may stay claimed before it is reclaimed.
func (d DispatchConfig) LockTimeout() time.Duration {
	if d.LockTimeoutSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(d.LockTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
