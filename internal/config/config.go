package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"blagajna/internal/logger"
)

const devJWTSecret = "default_super_secret_key"

// Config is the process configuration, read once from the environment.
type Config struct {
	// Authority
	AuthorityURL     string
	AuthorityTimeout time.Duration
	AuthorityCert    string   // Authority's signing certificate, verifies response tokens
	TrustAnchors     []string // pinned CA certificates for the Authority's TLS endpoint

	// Fiscal identity
	TaxNumber          string
	BusinessPremiseID  string
	ElectronicDeviceID string
	CertBundle         string
	CertPassword       string
	Timezone           string

	MaxConflictRetries int

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// HTTP
	Port        string
	JWTSecret   string
	GinMode     string
	CORSOrigins []string

	// Logging
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	timeout, err := time.ParseDuration(getEnv("AUTHORITY_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid AUTHORITY_TIMEOUT: %w", err)
	}

	retries, err := strconv.Atoi(getEnv("MAX_CONFLICT_RETRIES", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_CONFLICT_RETRIES: %w", err)
	}

	config := &Config{
		AuthorityURL:       strings.TrimRight(getEnv("AUTHORITY_URL", "https://blagajne-test.fu.gov.si:9002/v1/cash_registers"), "/"),
		AuthorityTimeout:   timeout,
		AuthorityCert:      getEnv("AUTHORITY_CERT", ""),
		TrustAnchors:       splitList(getEnv("TRUST_ANCHORS", "")),
		TaxNumber:          getEnv("TAX_NUMBER", ""),
		BusinessPremiseID:  getEnv("BUSINESS_PREMISE_ID", ""),
		ElectronicDeviceID: getEnv("ELECTRONIC_DEVICE_ID", ""),
		CertBundle:         getEnv("CERT_BUNDLE", ""),
		CertPassword:       getEnv("CERT_PASSWORD", ""),
		Timezone:           getEnv("TIMEZONE", "Europe/Ljubljana"),
		MaxConflictRetries: retries,
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnv("DB_PORT", "5432"),
		DBUser:             getEnv("DB_USER", "postgres"),
		DBPassword:         getEnv("DB_PASSWORD", "postgres"),
		DBName:             getEnv("DB_NAME", "postgres"),
		DBSSLMode:          getEnv("DB_SSLMODE", "disable"),
		Port:               getEnv("PORT", "8080"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		GinMode:            getEnv("GIN_MODE", "debug"),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:      getEnv("LOG_TIME_FORMAT", time.RFC3339),
		LogOutput:          getEnv("LOG_OUTPUT", "stdout"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if config.JWTSecret == "" {
		config.JWTSecret = devJWTSecret // development fallback only, release requires JWT_SECRET
	}

	return config, nil
}

func (c *Config) validate() error {
	if !strings.HasPrefix(c.AuthorityURL, "https://") {
		return fmt.Errorf("AUTHORITY_URL must be an https URL, got %q", c.AuthorityURL)
	}
	if c.AuthorityTimeout <= 0 {
		return fmt.Errorf("AUTHORITY_TIMEOUT must be positive, got %v", c.AuthorityTimeout)
	}
	if c.AuthorityCert == "" {
		return fmt.Errorf("AUTHORITY_CERT is required")
	}
	if len(c.TrustAnchors) == 0 {
		return fmt.Errorf("TRUST_ANCHORS is required")
	}
	if c.TaxNumber == "" {
		return fmt.Errorf("TAX_NUMBER is required")
	}
	if c.BusinessPremiseID == "" {
		return fmt.Errorf("BUSINESS_PREMISE_ID is required")
	}
	if c.CertBundle == "" {
		return fmt.Errorf("CERT_BUNDLE is required")
	}
	if c.MaxConflictRetries < 0 {
		return fmt.Errorf("MAX_CONFLICT_RETRIES must be non-negative, got %d", c.MaxConflictRetries)
	}
	if c.GinMode == "release" && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in release mode")
	}
	return nil
}

// DSN returns the postgres connection string.
func (c *Config) DSN() string {
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort + "/" + c.DBName + "?sslmode=" + c.DBSSLMode
}

// Location resolves the configured timezone used for invoice timestamps.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
