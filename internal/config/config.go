// Package config provides configuration structures and validation for the application.
// It handles environment-based configuration for all major components including
// the HTTP server, database connections, the LLM gateway, and upload limits.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration with settings for all components.
// Each field represents a major subsystem's configuration and is validated during
// application startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	LLM         LLMConfig
	Upload      UploadConfig
	Auth        AuthConfig
	CORS        CORSConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// LLMConfig contains settings for the hosted model gateway
type LLMConfig struct {
	APIKey        string
	Model         string
	MaxTokens     int64
	Timeout       time.Duration // Per-call request timeout
	BatchSize     int           // Rows per classification prompt
	MaxConcurrent int           // In-flight model calls across all uploads
	MaxRetries    int           // Bounded retries on transient errors
}

// UploadConfig contains statement upload limits and defaults
type UploadConfig struct {
	MaxFileSize       int64 // Bytes
	AllowedExtensions []string
	DefaultCurrency   string
	ResponseSample    int // Max transactions echoed in the upload response
}

// AuthConfig contains session token configuration
type AuthConfig struct {
	TokenTTL time.Duration
}

// CORSConfig contains allowed browser origins
type CORSConfig struct {
	AllowedOrigins []string
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MinPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MIN_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MaxConnIdleTime <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate LLM config
	if c.LLM.Model == "" {
		validationErrors = append(validationErrors, "LLM_MODEL is required")
	}
	if c.LLM.MaxTokens <= 0 {
		validationErrors = append(validationErrors, "LLM_MAX_TOKENS must be greater than 0")
	}
	if c.LLM.Timeout <= 0 {
		validationErrors = append(validationErrors, "LLM_TIMEOUT must be greater than 0")
	}
	if c.LLM.BatchSize <= 0 {
		validationErrors = append(validationErrors, "LLM_BATCH_SIZE must be greater than 0")
	}
	if c.LLM.MaxConcurrent <= 0 {
		validationErrors = append(validationErrors, "LLM_MAX_CONCURRENT must be greater than 0")
	}
	if c.LLM.MaxRetries < 0 {
		validationErrors = append(validationErrors, "LLM_MAX_RETRIES must not be negative")
	}

	// Validate upload config
	if c.Upload.MaxFileSize <= 0 {
		validationErrors = append(validationErrors, "UPLOAD_MAX_FILE_SIZE must be greater than 0")
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		validationErrors = append(validationErrors, "UPLOAD_ALLOWED_EXTENSIONS is required")
	}
	if len(c.Upload.DefaultCurrency) != 3 {
		validationErrors = append(validationErrors, "UPLOAD_DEFAULT_CURRENCY must be a 3-letter code")
	}
	if c.Upload.ResponseSample <= 0 {
		validationErrors = append(validationErrors, "UPLOAD_RESPONSE_SAMPLE must be greater than 0")
	}

	// Validate auth config
	if c.Auth.TokenTTL <= 0 {
		validationErrors = append(validationErrors, "AUTH_TOKEN_TTL must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
