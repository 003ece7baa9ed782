package config

import (
	"fmt"
	"strings"

	"smsinbox/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateWebhook(cfg.Webhook); err != nil {
		errors = append(errors, err)
	}

	if err := validateMessages(cfg.Messages); err != nil {
		errors = append(errors, err)
	}

	if cfg.Stats.CacheTTL < 0 {
		errors = append(errors, &ValidationError{
			Field:   "stats.cache_ttl",
			Message: "cache TTL must be non-negative",
		})
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	switch cfg.Mode {
	case "debug", "release", "test":
	default:
		return &ValidationError{
			Field:   "server.mode",
			Message: fmt.Sprintf("invalid mode: %s (valid: debug, release, test)", cfg.Mode),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if _, err := cfg.ResolveBackend(); err != nil {
		return &ValidationError{
			Field:   "database.url",
			Message: err.Error(),
		}
	}

	if cfg.Postgres.Host != "" {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	if cfg.Redis.Enabled() && (cfg.Redis.Port < 1 || cfg.Redis.Port > 65535) {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Redis.Port),
		}
	}

	if cfg.QueryTimeout < 0 {
		return &ValidationError{
			Field:   "database.query_timeout",
			Message: "query timeout must be non-negative",
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateWebhook(cfg WebhookConfig) error {
	if cfg.Secret == "" {
		return &ValidationError{
			Field:   "webhook.secret",
			Message: "WEBHOOK_SECRET is not set",
		}
	}

	if cfg.MaxBodyBytes <= 0 {
		return &ValidationError{
			Field:   "webhook.max_body_bytes",
			Message: "max body size must be positive",
		}
	}

	if cfg.RateLimit.Enabled && (cfg.RateLimit.RPS <= 0 || cfg.RateLimit.Burst <= 0) {
		return &ValidationError{
			Field:   "webhook.rate_limit",
			Message: "rps and burst must be positive when rate limiting is enabled",
		}
	}

	return nil
}

func validateMessages(cfg MessagesConfig) error {
	if cfg.MaxLimit < 1 || cfg.MaxLimit > constants.MaxLimit {
		return &ValidationError{
			Field:   "messages.max_limit",
			Message: fmt.Sprintf("max limit must be between 1 and %d, got %d", constants.MaxLimit, cfg.MaxLimit),
		}
	}

	if cfg.DefaultLimit < 1 || cfg.DefaultLimit > cfg.MaxLimit {
		return &ValidationError{
			Field:   "messages.default_limit",
			Message: fmt.Sprintf("default limit must be between 1 and %d, got %d", cfg.MaxLimit, cfg.DefaultLimit),
		}
	}

	return nil
}
