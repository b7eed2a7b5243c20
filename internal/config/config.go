package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logger   LoggerConfig
	Checkout CheckoutConfig
	Payment  PaymentConfig
	Redis    RedisConfig
	Shipping ShippingConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxConnections  int
	MinConnections  int
	MaxConnLifetime int // seconds
}

// LoggerConfig holds logger-related configuration.
type LoggerConfig struct {
	Level  string
	Format string // "json" or "console"
}

// CheckoutConfig holds checkout-flow configuration. TaxRate is externally
// supplied so it can vary by deployment without a rebuild.
type CheckoutConfig struct {
	Currency    string
	TaxRate     decimal.Decimal
	TokenSecret string // signs the per-session checkout token
}

// PaymentConfig holds payment-gateway webhook configuration.
type PaymentConfig struct {
	WebhookSecret      string
	SignatureTolerance int // seconds
	DedupTTL           int // seconds an event id stays in the dedup cache
}

// RedisConfig holds the connection settings for the webhook dedup cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ShippingConfig holds the shipping-rate table source. When S3 is enabled the
// table is loaded from the bucket with a local file fallback.
type ShippingConfig struct {
	FilePath  string
	S3Enabled bool
	S3Bucket  string
	S3Region  string
	S3Key     string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	taxRate, err := decimal.NewFromString(getEnv("TAX_RATE", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid TAX_RATE: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "storefront"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MinConnections:  getEnvAsInt("DB_MIN_CONNECTIONS", 5),
			MaxConnLifetime: getEnvAsInt("DB_MAX_CONN_LIFETIME", 300),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Checkout: CheckoutConfig{
			Currency:    getEnv("CURRENCY", "EUR"),
			TaxRate:     taxRate,
			TokenSecret: getEnv("CHECKOUT_TOKEN_SECRET", ""),
		},
		Payment: PaymentConfig{
			WebhookSecret:      getEnv("PAYMENT_WEBHOOK_SECRET", ""),
			SignatureTolerance: getEnvAsInt("PAYMENT_SIGNATURE_TOLERANCE", 300),
			DedupTTL:           getEnvAsInt("WEBHOOK_DEDUP_TTL", 86400),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Shipping: ShippingConfig{
			FilePath:  getEnv("SHIPPING_RATES_FILE", "data/shipping/rates.json"),
			S3Enabled: getEnvAsBool("SHIPPING_S3_ENABLED", false),
			S3Bucket:  getEnv("SHIPPING_S3_BUCKET", ""),
			S3Region:  getEnv("SHIPPING_S3_REGION", "us-east-1"),
			S3Key:     getEnv("SHIPPING_S3_KEY", "shipping/rates.json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}

	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	if c.Database.MinConnections < 1 {
		return fmt.Errorf("database min connections must be at least 1")
	}

	if c.Database.MinConnections > c.Database.MaxConnections {
		return fmt.Errorf("database min connections cannot exceed max connections")
	}

	if c.Checkout.Currency == "" {
		return fmt.Errorf("currency is required")
	}

	if c.Checkout.TaxRate.IsNegative() {
		return fmt.Errorf("tax rate cannot be negative")
	}

	if c.Checkout.TokenSecret == "" {
		return fmt.Errorf("checkout token secret is required")
	}

	if c.Payment.WebhookSecret == "" {
		return fmt.Errorf("payment webhook secret is required")
	}

	if c.Payment.SignatureTolerance < 1 {
		return fmt.Errorf("payment signature tolerance must be at least 1 second")
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logger.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Logger.Format != "json" && c.Logger.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logger.Format)
	}

	if c.Shipping.S3Enabled {
		if c.Shipping.S3Bucket == "" {
			return fmt.Errorf("shipping S3 bucket is required when S3 is enabled")
		}
		if c.Shipping.S3Region == "" {
			return fmt.Errorf("shipping S3 region is required when S3 is enabled")
		}
	}

	return nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

// Address returns the server address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
