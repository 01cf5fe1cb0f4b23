package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Gateway  GatewayConfig
	Billing  BillingConfig
	Secrets  SecretsConfig
	Logger   LoggerConfig
}

// ServerConfig holds webhook/metrics HTTP server configuration
type ServerConfig struct {
	Host        string
	Port        int
	MetricsPort int
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	User     string
	Password string
	Database string
	SSLMode  string
	Port     int
	MaxConns int32
	MinConns int32
}

// GatewayConfig holds payment gateway configuration. SecretKey is used as-is
// when set; otherwise SecretPath is resolved through the configured secret
// manager backend at startup. No process-wide credential globals.
type GatewayConfig struct {
	BaseURL    string
	SecretKey  string
	SecretPath string
	Timeout    int // Request timeout in seconds (default: 30)
}

// BillingConfig holds billing policy defaults
type BillingConfig struct {
	Currency       string // Default charge/invoice currency (ISO code, lowercase)
	ProrateDefault bool   // Default proration behavior for plan changes
}

// SecretsConfig selects the secret manager backend
type SecretsConfig struct {
	Backend   string // env, aws, vault, local
	AWSRegion string
	VaultAddr string
	LocalPath string
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        getEnvAsInt("SERVER_PORT", 8080),
			MetricsPort: getEnvAsInt("METRICS_PORT", 9090),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "billing_service"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		},
		Gateway: GatewayConfig{
			BaseURL:    getEnv("GATEWAY_BASE_URL", "https://api.stripe.com/v1"),
			SecretKey:  getEnv("GATEWAY_SECRET_KEY", ""),
			SecretPath: getEnv("GATEWAY_SECRET_PATH", ""),
			Timeout:    getEnvAsInt("GATEWAY_TIMEOUT", 30),
		},
		Billing: BillingConfig{
			Currency:       getEnv("BILLING_CURRENCY", "usd"),
			ProrateDefault: getEnvAsBool("BILLING_PRORATE_DEFAULT", true),
		},
		Secrets: SecretsConfig{
			Backend:   getEnv("SECRETS_BACKEND", "env"),
			AWSRegion: getEnv("AWS_REGION", "us-east-1"),
			VaultAddr: getEnv("VAULT_ADDR", ""),
			LocalPath: getEnv("SECRETS_LOCAL_PATH", ".secrets"),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	// Validate required fields
	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.Gateway.SecretKey == "" && cfg.Gateway.SecretPath == "" {
		return nil, fmt.Errorf("GATEWAY_SECRET_KEY or GATEWAY_SECRET_PATH is required")
	}
	if cfg.Secrets.Backend == "vault" && cfg.Secrets.VaultAddr == "" {
		return nil, fmt.Errorf("VAULT_ADDR is required when SECRETS_BACKEND=vault")
	}

	return cfg, nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
