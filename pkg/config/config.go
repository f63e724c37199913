package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Supported values for enumerated settings.
var (
	supportedDatabaseTypes = map[string]bool{"postgres": true, "sqlserver": true}
	supportedProviders     = map[string]bool{"openai": true, "gemini": true, "anthropic": true}
)

// Config holds all configuration for the TravelGO chat engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Generator GeneratorConfig `yaml:"generator"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	// Enabled controls whether bearer tokens are validated. When false every
	// caller is anonymous.
	Enabled   bool   `yaml:"enabled" env:"AUTH_ENABLED" env-default:"true"`
	JWTSecret string `yaml:"-" env:"JWT_SECRET"` // Secret - not in YAML
}

// DatabaseConfig holds the travel database connection.
type DatabaseConfig struct {
	Type           string `yaml:"type" env:"DB_TYPE" env-default:"postgres"` // postgres or sqlserver
	Host           string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User           string `yaml:"user" env:"DB_USER" env-default:"travelgo"`
	Password       string `yaml:"-" env:"DB_PASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"DB_NAME" env-default:"travelgo"`
	SSLMode        string `yaml:"ssl_mode" env:"DB_SSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"DB_MAX_CONNECTIONS" env-default:"25"`
	// RunMigrations applies migrations/ at startup (PostgreSQL only).
	RunMigrations bool `yaml:"run_migrations" env:"DB_RUN_MIGRATIONS" env-default:"false"`
	// ConnectAttempts bounds the startup connection retries.
	ConnectAttempts int `yaml:"connect_attempts" env:"DB_CONNECT_ATTEMPTS" env-default:"5"`
}

// RedisConfig holds the proposal cache connection. An empty host disables
// the cache.
type RedisConfig struct {
	Host        string        `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port        int           `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	DB          int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	Password    string        `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	ProposalTTL time.Duration `yaml:"proposal_ttl" env:"REDIS_PROPOSAL_TTL" env-default:"10m"`
}

// GeneratorConfig selects and tunes the text generation provider.
type GeneratorConfig struct {
	Provider          string        `yaml:"provider" env:"GENERATOR_PROVIDER" env-default:"gemini"`
	Model             string        `yaml:"model" env:"GENERATOR_MODEL" env-default:"gemini-2.0-flash"`
	BaseURL           string        `yaml:"base_url" env:"GENERATOR_BASE_URL" env-default:""`
	APIKey            string        `yaml:"-" env:"GENERATOR_API_KEY"` // Secret - not in YAML
	MaxTokens         int           `yaml:"max_tokens" env:"GENERATOR_MAX_TOKENS" env-default:"2048"`
	Timeout           time.Duration `yaml:"timeout" env:"GENERATOR_TIMEOUT" env-default:"20s"`
	Temperature       float64       `yaml:"temperature" env:"GENERATOR_TEMPERATURE" env-default:"0.2"`
	MaxQueries        int           `yaml:"max_queries" env:"GENERATOR_MAX_QUERIES" env-default:"3"`
	HeuristicFallback bool          `yaml:"heuristic_fallback" env:"GENERATOR_HEURISTIC_FALLBACK" env-default:"true"`
	// BreakerThreshold consecutive failures open the circuit for BreakerReset.
	BreakerThreshold int           `yaml:"breaker_threshold" env:"GENERATOR_BREAKER_THRESHOLD" env-default:"5"`
	BreakerReset     time.Duration `yaml:"breaker_reset" env:"GENERATOR_BREAKER_RESET" env-default:"30s"`
}

// PipelineConfig bounds the work done for one chat message.
type PipelineConfig struct {
	StoreTimeout     time.Duration `yaml:"store_timeout" env:"PIPELINE_STORE_TIMEOUT" env-default:"3s"`
	QueryTimeout     time.Duration `yaml:"query_timeout" env:"PIPELINE_QUERY_TIMEOUT" env-default:"5s"`
	MaxRows          int           `yaml:"max_rows" env:"PIPELINE_MAX_ROWS" env-default:"50"`
	RecentBookings   int           `yaml:"recent_bookings" env:"PIPELINE_RECENT_BOOKINGS" env-default:"10"`
	QueryConcurrency int           `yaml:"query_concurrency" env:"PIPELINE_QUERY_CONCURRENCY" env-default:"4"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// Secrets (DB_PASSWORD, REDIS_PASSWORD, GENERATOR_API_KEY, JWT_SECRET) must come
// from environment variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.Database.Host = ResolveHostForDocker(cfg.Database.Host)
	cfg.Redis.Host = ResolveHostForDocker(cfg.Redis.Host)

	return cfg, nil
}

func (c *Config) validate() error {
	if !supportedDatabaseTypes[c.Database.Type] {
		return fmt.Errorf("unsupported database type %q", c.Database.Type)
	}
	if !supportedProviders[c.Generator.Provider] {
		return fmt.Errorf("unsupported generator provider %q", c.Generator.Provider)
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when auth is enabled")
	}
	if c.Pipeline.MaxRows < 1 {
		return fmt.Errorf("pipeline.max_rows must be positive")
	}
	if c.Pipeline.QueryConcurrency < 1 {
		return fmt.Errorf("pipeline.query_concurrency must be positive")
	}
	return nil
}

// IsDevelopment reports whether the server runs in a local environment.
func (c *Config) IsDevelopment() bool {
	return c.Env == "local" || c.Env == "dev"
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.BindAddr + ":" + c.Port
}

// RedisAddr returns host:port of the proposal cache.
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
