// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultClientTokenSecret = "your-secret-key-change-in-production"

// Session storage backends.
const (
	SessionBackendMemory   = "memory"
	SessionBackendRedis    = "redis"
	SessionBackendSQLite   = "sqlite"
	SessionBackendPostgres = "postgres"
)

// Rate limit backends.
const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Env                  string  `mapstructure:"APP_ENV"`
	Port                 string  `mapstructure:"PORT"`
	ClientTokenSecret    string  `mapstructure:"CLIENT_TOKEN_SECRET"`
	ClientTokenTTLHours  int     `mapstructure:"CLIENT_TOKEN_TTL_HOURS"`
	ClientIdleTTLMinutes int     `mapstructure:"CLIENT_IDLE_TTL_MINUTES"`
	SessionBackend       string  `mapstructure:"SESSION_BACKEND"`
	SessionKeyPrefix     string  `mapstructure:"SESSION_KEY_PREFIX"`
	RedisURL             string  `mapstructure:"REDIS_URL"`
	SQLitePath           string  `mapstructure:"SQLITE_PATH"`
	DatabaseDSN          string  `mapstructure:"DATABASE_DSN"`
	AuthLatencyMS        int     `mapstructure:"AUTH_LATENCY_MS"`
	FetchLatencyMS       int     `mapstructure:"FETCH_LATENCY_MS"`
	SeedFile             string  `mapstructure:"SEED_FILE"`
	MaxUploadSizeMB      int     `mapstructure:"MAX_UPLOAD_SIZE_MB"`
	AllowedOrigins       string  `mapstructure:"ALLOWED_ORIGINS"`
	TracingEnabled       bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter      string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint         string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio  float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
	RateLimitPerMinute   int     `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	RateLimitBackend     string  `mapstructure:"RATE_LIMIT_BACKEND"`
}

// LoadConfig loads application configuration from file and environment variables.
// A .env file in the working directory, when present, is loaded into the
// process environment first; variables already set take precedence.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("unable to read .env: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	v.AddConfigPath("../..")
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AutomaticEnv()

	// The base config file is optional.
	_ = v.ReadInConfig()

	env := v.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		v.SetConfigName("config." + env)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.SessionBackend = strings.ToLower(strings.TrimSpace(config.SessionBackend))
	config.RateLimitBackend = strings.ToLower(strings.TrimSpace(config.RateLimitBackend))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "8375")
	v.SetDefault("CLIENT_TOKEN_SECRET", defaultClientTokenSecret)
	v.SetDefault("CLIENT_TOKEN_TTL_HOURS", 24*30)
	v.SetDefault("CLIENT_IDLE_TTL_MINUTES", 30)
	v.SetDefault("SESSION_BACKEND", SessionBackendMemory)
	v.SetDefault("SESSION_KEY_PREFIX", "snapgram")
	v.SetDefault("REDIS_URL", "localhost:6379")
	v.SetDefault("SQLITE_PATH", "snapgram.db")
	v.SetDefault("DATABASE_DSN", "")
	v.SetDefault("AUTH_LATENCY_MS", 1000)
	v.SetDefault("FETCH_LATENCY_MS", 500)
	v.SetDefault("SEED_FILE", "")
	v.SetDefault("MAX_UPLOAD_SIZE_MB", 5)
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173")
	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_EXPORTER", "stdout")
	v.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	v.SetDefault("TRACING_SAMPLER_RATIO", 1.0)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 0)
	v.SetDefault("RATE_LIMIT_BACKEND", RateLimitBackendMemory)
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.ClientTokenSecret == "" {
		return errors.New("CLIENT_TOKEN_SECRET is required")
	}
	if c.AuthLatencyMS < 0 || c.FetchLatencyMS < 0 {
		return errors.New("AUTH_LATENCY_MS and FETCH_LATENCY_MS must not be negative")
	}
	if c.MaxUploadSizeMB <= 0 {
		return errors.New("MAX_UPLOAD_SIZE_MB must be positive")
	}

	if c.RateLimitPerMinute < 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	switch c.RateLimitBackend {
	case "", RateLimitBackendMemory:
	case RateLimitBackendRedis:
		if c.RateLimitPerMinute > 0 && c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis rate limit backend")
		}
	default:
		return fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimitBackend)
	}

	switch c.SessionBackend {
	case SessionBackendMemory, SessionBackendSQLite:
	case SessionBackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis session backend")
		}
	case SessionBackendPostgres:
		if c.DatabaseDSN == "" {
			return errors.New("DATABASE_DSN is required for the postgres session backend")
		}
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}

	if c.IsProduction() {
		if c.ClientTokenSecret == defaultClientTokenSecret {
			return errors.New("CLIENT_TOKEN_SECRET must be changed from the default value in production")
		}
		if len(c.ClientTokenSecret) < 32 {
			return errors.New("CLIENT_TOKEN_SECRET must be at least 32 characters in production")
		}
		if c.SessionBackend == SessionBackendMemory {
			log.Println("WARNING: SESSION_BACKEND is 'memory' in production. Sessions will not survive a restart.")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.ClientTokenSecret) < 32 {
		log.Println("WARNING: CLIENT_TOKEN_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}

// IsProduction reports whether the app runs with a production profile.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// AuthLatency is the simulated delay applied to login and signup.
func (c *Config) AuthLatency() time.Duration {
	return time.Duration(c.AuthLatencyMS) * time.Millisecond
}

// FetchLatency is the simulated delay applied to post refreshes.
func (c *Config) FetchLatency() time.Duration {
	return time.Duration(c.FetchLatencyMS) * time.Millisecond
}

// ClientTokenTTL is the lifetime of issued client tokens.
func (c *Config) ClientTokenTTL() time.Duration {
	return time.Duration(c.ClientTokenTTLHours) * time.Hour
}

// ClientIdleTTL is how long an unused client's state is kept in memory.
func (c *Config) ClientIdleTTL() time.Duration {
	return time.Duration(c.ClientIdleTTLMinutes) * time.Minute
}

// MaxUploadBytes is the post media size limit in bytes.
func (c *Config) MaxUploadBytes() int {
	return c.MaxUploadSizeMB * 1024 * 1024
}
