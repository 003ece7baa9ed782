package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"smsinbox/internal/constants"
)

// LoadConfig reads defaults, then the optional YAML file, then .env and the
// process environment. configFile may be empty.
func LoadConfig(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVariables(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	if configFile != "" {
		v.SetConfigType("yaml")
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 15)
	v.SetDefault("server.shutdown_timeout_seconds", 10)

	v.SetDefault("database.url", "")
	v.SetDefault("database.driver", "")
	v.SetDefault("database.run_migrations", true)
	v.SetDefault("database.query_timeout", "5s")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.postgres.host", "")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.sqlite.path", "")
	v.SetDefault("database.mongodb.uri", "")
	v.SetDefault("database.mongodb.database", "smsinbox")
	v.SetDefault("database.redis.host", "")
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("database.connect_retry.max_attempts", 5)
	v.SetDefault("database.connect_retry.initial_interval", "500ms")
	v.SetDefault("database.connect_retry.max_interval", "10s")
	v.SetDefault("database.connect_retry.multiplier", 2.0)
	v.SetDefault("database.connect_retry.max_elapsed_time", "1m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.max_body_bytes", 64*1024)
	v.SetDefault("webhook.rate_limit.enabled", false)
	v.SetDefault("webhook.rate_limit.rps", 50.0)
	v.SetDefault("webhook.rate_limit.burst", 100)
	v.SetDefault("webhook.rate_limit.cleanup_interval", "5m")
	v.SetDefault("webhook.rate_limit.max_age", "10m")

	v.SetDefault("messages.default_limit", constants.DefaultLimit)
	v.SetDefault("messages.max_limit", constants.MaxLimit)

	v.SetDefault("stats.cache_ttl", "0s")

	v.SetDefault("circuit_breaker.enabled", false)
	v.SetDefault("circuit_breaker.max_requests", 3)
	v.SetDefault("circuit_breaker.interval", "60s")
	v.SetDefault("circuit_breaker.timeout", "30s")
	v.SetDefault("circuit_breaker.failure_ratio", 0.5)
	v.SetDefault("circuit_breaker.min_requests", 5)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "inbox-service")
	v.SetDefault("tracing.otlp.endpoint", "localhost:4317")
	v.SetDefault("tracing.otlp.insecure", true)
	v.SetDefault("tracing.sampler.type", "parentbased_always_on")
	v.SetDefault("tracing.sampler.param", 1.0)
}

// bindEnvVariables maps the short variable names used by existing
// deployments onto config keys. Every other key is reachable through the
// "." -> "_" replacer, e.g. DATABASE_REDIS_HOST.
func bindEnvVariables(v *viper.Viper) error {
	binds := map[string][]string{
		"database.url":           {"DATABASE_URL"},
		"webhook.secret":         {"WEBHOOK_SECRET"},
		"logging.level":          {"LOGGING_LEVEL", "LOG_LEVEL"},
		"logging.format":         {"LOGGING_FORMAT", "LOG_FORMAT"},
		"messages.default_limit": {"MESSAGES_DEFAULT_LIMIT"},
		"messages.max_limit":     {"MESSAGES_MAX_LIMIT"},
		"server.port":            {"SERVER_PORT", "PORT"},
	}

	for key, envs := range binds {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return err
		}
	}
	return nil
}
