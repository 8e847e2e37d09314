package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pagesmith/pagesmith/pkg/observability"
	"github.com/pagesmith/pagesmith/pkg/quota"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Billing configuration
	Billing BillingConfig

	// Renderer backend configuration
	Renderer RendererConfig

	// Public quota configuration
	Quota QuotaConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL         string
	ReplicaURLs string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
}

// RedisConfig holds Redis settings for the burst rate limiter
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// BillingConfig holds payment provider settings
type BillingConfig struct {
	// WebhookSecret is the shared secret webhook signatures are checked
	// against.
	WebhookSecret      string
	SignatureTolerance time.Duration

	// Provider API used for read-only checkout and customer lookups.
	ProviderBaseURL string
	ProviderAPIKey  string
	ProviderTimeout time.Duration

	// PlanCatalogPath points at the plan catalog YAML. Empty means the
	// built-in default catalog.
	PlanCatalogPath string
}

// RendererConfig holds rendering backend settings
type RendererConfig struct {
	BaseURL     string
	InternalKey string
	Timeout     time.Duration
}

// QuotaConfig holds anonymous-usage quota settings
type QuotaConfig struct {
	Limit  int
	Window time.Duration

	// Turnstile bot verification. Required toggles enforcement.
	TurnstileSecret   string
	TurnstileRequired bool
	TurnstileTimeout  time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Billing:       loadBillingConfig(),
		Renderer:      loadRendererConfig(),
		Quota:         loadQuotaConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("PAGESMITH_HOST", "0.0.0.0"),
		Port:            getEnv("PAGESMITH_PORT", "8080"),
		ReadTimeout:     getEnvDuration("PAGESMITH_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("PAGESMITH_WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:     getEnvDuration("PAGESMITH_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("PAGESMITH_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("PAGESMITH_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:         getEnv("PAGESMITH_POSTGRES_URL", ""),
		ReplicaURLs: getEnv("PAGESMITH_POSTGRES_REPLICA_URLS", ""),
		MaxConns:    getEnvInt("PAGESMITH_POSTGRES_MAX_CONNS", 25),
		MinConns:    getEnvInt("PAGESMITH_POSTGRES_MIN_CONNS", 5),
		Timeout:     getEnvDuration("PAGESMITH_POSTGRES_TIMEOUT", 30*time.Second),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("PAGESMITH_REDIS_URL", ""),
		Password: getEnv("PAGESMITH_REDIS_PASSWORD", ""),
		DB:       getEnvInt("PAGESMITH_REDIS_DB", 0),
		PoolSize: getEnvInt("PAGESMITH_REDIS_POOL_SIZE", 10),
	}
}

// loadBillingConfig loads billing configuration from environment
func loadBillingConfig() BillingConfig {
	return BillingConfig{
		WebhookSecret:      getEnv("PAGESMITH_BILLING_WEBHOOK_SECRET", ""),
		SignatureTolerance: getEnvDuration("PAGESMITH_BILLING_SIGNATURE_TOLERANCE", 5*time.Minute),
		ProviderBaseURL:    getEnv("PAGESMITH_BILLING_PROVIDER_URL", "https://api.stripe.com"),
		ProviderAPIKey:     getEnv("PAGESMITH_BILLING_PROVIDER_API_KEY", ""),
		ProviderTimeout:    getEnvDuration("PAGESMITH_BILLING_PROVIDER_TIMEOUT", 10*time.Second),
		PlanCatalogPath:    getEnv("PAGESMITH_PLAN_CATALOG_PATH", ""),
	}
}

// loadRendererConfig loads rendering backend configuration from environment
func loadRendererConfig() RendererConfig {
	return RendererConfig{
		BaseURL:     getEnv("PAGESMITH_RENDERER_URL", ""),
		InternalKey: getEnv("PAGESMITH_RENDERER_INTERNAL_KEY", ""),
		Timeout:     getEnvDuration("PAGESMITH_RENDERER_TIMEOUT", 30*time.Second),
	}
}

// loadQuotaConfig loads quota configuration from environment
func loadQuotaConfig() QuotaConfig {
	return QuotaConfig{
		Limit:             getEnvInt("PAGESMITH_QUOTA_LIMIT", quota.DefaultLimit),
		Window:            getEnvDuration("PAGESMITH_QUOTA_WINDOW", quota.DefaultWindow),
		TurnstileSecret:   getEnv("PAGESMITH_TURNSTILE_SECRET", ""),
		TurnstileRequired: getEnvBool("PAGESMITH_TURNSTILE_REQUIRED", false),
		TurnstileTimeout:  getEnvDuration("PAGESMITH_TURNSTILE_TIMEOUT", 10*time.Second),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("PAGESMITH_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("PAGESMITH_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Billing.WebhookSecret == "" {
		return fmt.Errorf("billing webhook secret is required")
	}

	if c.Renderer.BaseURL == "" {
		return fmt.Errorf("renderer URL is required")
	}
	if c.Renderer.InternalKey == "" {
		return fmt.Errorf("renderer internal key is required")
	}

	if c.Quota.Limit <= 0 {
		return fmt.Errorf("quota limit must be positive")
	}
	if c.Quota.Window <= 0 {
		return fmt.Errorf("quota window must be positive")
	}
	if c.Quota.TurnstileRequired && c.Quota.TurnstileSecret == "" {
		return fmt.Errorf("turnstile secret is required when verification is enforced")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
