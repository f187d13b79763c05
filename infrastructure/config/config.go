// Package config loads and validates the service configuration from a
// YAML file with environment variable overrides, and watches the file for
// runtime changes.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// UnmarshalYAML parses duration fields from their string form ("30s").
func (c *ServerConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Address         string `yaml:"address"`
		ReadTimeout     string `yaml:"readTimeout"`
		WriteTimeout    string `yaml:"writeTimeout"`
		ShutdownTimeout string `yaml:"shutdownTimeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Address != "" {
		c.Address = raw.Address
	}
	return setDurations(map[string]*durationField{
		"readTimeout":     {raw.ReadTimeout, &c.ReadTimeout},
		"writeTimeout":    {raw.WriteTimeout, &c.WriteTimeout},
		"shutdownTimeout": {raw.ShutdownTimeout, &c.ShutdownTimeout},
	})
}

// AWSConfig holds the shared AWS client settings.
type AWSConfig struct {
	Region string `yaml:"region" validate:"required"`
	// Endpoint overrides the AWS endpoint, for local DynamoDB.
	Endpoint string `yaml:"endpoint"`
}

// CacheConfig selects and configures the store backend.
type CacheConfig struct {
	// Provider selects the store backend.
	Provider string `yaml:"provider" validate:"required,oneof=memory dynamodb"`
	// Table is the DynamoDB table name, required for the dynamodb provider.
	Table string `yaml:"table" validate:"required_if=Provider dynamodb"`
	// StrictAuthority rejects authoritative writes to keys owned by
	// another source instead of letting the last writer win.
	StrictAuthority bool `yaml:"strictAuthority"`
}

// RefreshConfig holds the scheduler settings.
type RefreshConfig struct {
	Interval      time.Duration `yaml:"interval" validate:"required,min=1s"`
	Jitter        time.Duration `yaml:"jitter"`
	Timeout       time.Duration `yaml:"timeout" validate:"required,min=1s"`
	MaxConcurrent int           `yaml:"maxConcurrent" validate:"min=1"`
}

// UnmarshalYAML parses duration fields from their string form ("2m").
func (c *RefreshConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Interval      string `yaml:"interval"`
		Jitter        string `yaml:"jitter"`
		Timeout       string `yaml:"timeout"`
		MaxConcurrent int    `yaml:"maxConcurrent"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.MaxConcurrent != 0 {
		c.MaxConcurrent = raw.MaxConcurrent
	}
	return setDurations(map[string]*durationField{
		"interval": {raw.Interval, &c.Interval},
		"jitter":   {raw.Jitter, &c.Jitter},
		"timeout":  {raw.Timeout, &c.Timeout},
	})
}

// AccountConfig declares one cloud account whose resources the agents
// cache. One cluster agent is built per account, and one security group
// agent per account region.
type AccountConfig struct {
	Name     string   `yaml:"name" validate:"required"`
	Provider string   `yaml:"provider" validate:"required"`
	Regions  []string `yaml:"regions" validate:"min=1"`
}

// SourceConfig points at the inventory gateway the agents fetch from.
type SourceConfig struct {
	BaseURL string        `yaml:"baseUrl" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout"`
}

// UnmarshalYAML parses the timeout from its string form ("10s").
func (c *SourceConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		BaseURL string `yaml:"baseUrl"`
		Timeout string `yaml:"timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.BaseURL != "" {
		c.BaseURL = raw.BaseURL
	}
	return setDurations(map[string]*durationField{
		"timeout": {raw.Timeout, &c.Timeout},
	})
}

// durationField pairs a raw YAML string with its destination.
type durationField struct {
	raw  string
	dest *time.Duration
}

func setDurations(fields map[string]*durationField) error {
	for name, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
		*f.dest = d
	}
	return nil
}

// EventsConfig holds the EventBridge publisher settings.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	BusName string `yaml:"busName" validate:"required_if=Enabled true"`
	Source  string `yaml:"source"`
}

// LoggingConfig holds the zap settings.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig holds the OTLP exporter settings.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sampleRate" validate:"min=0,max=1"`
}

// Config is the complete service configuration.
type Config struct {
	Environment string          `yaml:"environment" validate:"required,oneof=development staging production"`
	Server      ServerConfig    `yaml:"server"`
	AWS         AWSConfig       `yaml:"aws"`
	Cache       CacheConfig     `yaml:"cache"`
	Refresh     RefreshConfig   `yaml:"refresh"`
	Source      SourceConfig    `yaml:"source"`
	// Accounts lists the scopes the agent set covers. Empty is a read-only
	// deployment: no agents are built and the scheduler has nothing to run,
	// which is how the lambda serves the shared cache without refreshing it.
	Accounts    []AccountConfig `yaml:"accounts" validate:"dive"`
	Events      EventsConfig    `yaml:"events"`
	Logging     LoggingConfig   `yaml:"logging"`
	Metrics     MetricsConfig   `yaml:"metrics"`
	Tracing     TracingConfig   `yaml:"tracing"`
}

// Default returns the baseline configuration before file and environment
// overlays.
func Default() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		AWS: AWSConfig{
			Region: "us-west-2",
		},
		Cache: CacheConfig{
			Provider: "memory",
		},
		Refresh: RefreshConfig{
			Interval:      60 * time.Second,
			Jitter:        5 * time.Second,
			Timeout:       30 * time.Second,
			MaxConcurrent: 4,
		},
		Source: SourceConfig{
			BaseURL: "http://localhost:9090",
			Timeout: 10 * time.Second,
		},
		Events: EventsConfig{
			Source: "stratus.cache",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Endpoint:   "localhost:4317",
			SampleRate: 0.1,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then environment variable overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables on top of file values.
func (c *Config) applyEnv() {
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.Server.Address = getEnv("SERVER_ADDRESS", c.Server.Address)
	c.AWS.Region = getEnv("AWS_REGION", c.AWS.Region)
	c.AWS.Endpoint = getEnv("AWS_ENDPOINT", c.AWS.Endpoint)
	c.Cache.Provider = getEnv("CACHE_PROVIDER", c.Cache.Provider)
	c.Cache.Table = getEnv("CACHE_TABLE", c.Cache.Table)
	c.Cache.StrictAuthority = getEnvBool("CACHE_STRICT_AUTHORITY", c.Cache.StrictAuthority)
	c.Refresh.Interval = getEnvDuration("REFRESH_INTERVAL", c.Refresh.Interval)
	c.Refresh.Timeout = getEnvDuration("REFRESH_TIMEOUT", c.Refresh.Timeout)
	c.Refresh.MaxConcurrent = getEnvInt("REFRESH_MAX_CONCURRENT", c.Refresh.MaxConcurrent)
	c.Source.BaseURL = getEnv("SOURCE_BASE_URL", c.Source.BaseURL)
	c.Events.Enabled = getEnvBool("EVENTS_ENABLED", c.Events.Enabled)
	c.Events.BusName = getEnv("EVENT_BUS_NAME", c.Events.BusName)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Metrics.Enabled = getEnvBool("ENABLE_METRICS", c.Metrics.Enabled)
	c.Tracing.Enabled = getEnvBool("ENABLE_TRACING", c.Tracing.Enabled)
	c.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Tracing.Endpoint)
}

// Validate checks the configuration with the struct validation tags plus
// cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.IsProduction() && c.Cache.Provider == "memory" {
		return fmt.Errorf("invalid configuration: memory store is not allowed in production")
	}
	if c.Refresh.Jitter >= c.Refresh.Interval {
		return fmt.Errorf("invalid configuration: refresh jitter must be smaller than the interval")
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
