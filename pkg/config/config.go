package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingWebhookSecret is returned by Validate when no signing secret is configured
var ErrMissingWebhookSecret = errors.New("WEBHOOK_SECRET environment variable must be set")

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port           string
		Env            string
		RequestTimeout time.Duration
		MaxBodySize    int64
		GRPCHealthPort string
	}

	// Database configuration
	Database struct {
		URL            string
		MaxConns       int
		Timeout        time.Duration
		ConnectRetries int
		RetryDelay     time.Duration
	}

	// Webhook signing configuration
	Webhook struct {
		Secret          string
		SignatureHeader string
	}

	// Vault configuration for resolving the webhook secret
	Vault struct {
		Enabled     bool
		Address     string
		Token       string
		Namespace   string
		SecretsPath string
		SecretKey   string
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Audit sink configuration
	Audit struct {
		RedisURL     string
		Stream       string
		StreamMaxLen int64
	}

	// Observability configuration
	Observability struct {
		TracingEnabled    bool
		OpenAPIValidation bool
	}

	// Testing disables fail-fast checks that only make sense in a deployed process
	Testing bool
}

// Load reads configuration from the environment, loading a .env file first if one exists
func Load() *Config {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := &Config{}

	// Server config
	cfg.Server.Port = getEnvString("PORT", "8000")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", 5*time.Second)
	cfg.Server.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 1<<20) // 1MB
	cfg.Server.GRPCHealthPort = getEnvString("GRPC_HEALTH_PORT", "")

	// Database config
	cfg.Database.URL = getEnvString("DATABASE_URL", "sqlite:///data/app.db")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)
	cfg.Database.ConnectRetries = getEnvInt("DB_CONNECT_RETRIES", 5)
	cfg.Database.RetryDelay = getEnvDuration("DB_RETRY_DELAY", 2*time.Second)

	// Webhook config
	cfg.Webhook.Secret = getEnvString("WEBHOOK_SECRET", "")
	cfg.Webhook.SignatureHeader = getEnvString("SIGNATURE_HEADER", "X-Signature")

	// Vault config
	cfg.Vault.Enabled = getEnvBool("VAULT_ENABLED", false)
	cfg.Vault.Address = getEnvString("VAULT_ADDR", "")
	cfg.Vault.Token = getEnvString("VAULT_TOKEN", "")
	cfg.Vault.Namespace = getEnvString("VAULT_NAMESPACE", "")
	cfg.Vault.SecretsPath = getEnvString("VAULT_SECRETS_PATH", "webhook-ingest")
	cfg.Vault.SecretKey = getEnvString("VAULT_SECRET_KEY", "webhook_secret")

	// Security config
	cfg.Security.RateLimit = getEnvFloat("RATE_LIMIT", 50)
	cfg.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 100)

	// Logging config
	cfg.Logging.Level = strings.ToLower(getEnvString("LOG_LEVEL", "info"))
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")

	// Audit config
	cfg.Audit.RedisURL = getEnvString("REDIS_URL", "")
	cfg.Audit.Stream = getEnvString("AUDIT_STREAM", "webhook:audit")
	cfg.Audit.StreamMaxLen = getEnvInt64("AUDIT_STREAM_MAXLEN", 100000)

	// Observability config
	cfg.Observability.TracingEnabled = getEnvBool("TRACING_ENABLED", false)
	cfg.Observability.OpenAPIValidation = getEnvBool("OPENAPI_VALIDATION", false)

	cfg.Testing = getEnvBool("TESTING", false)

	return cfg
}

// Validate checks settings the process cannot run without.
// A missing webhook secret is tolerated in testing mode or when Vault supplies it.
func (c *Config) Validate() error {
	if c.Webhook.Secret == "" && !c.Vault.Enabled && !c.Testing {
		return ErrMissingWebhookSecret
	}
	return nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
