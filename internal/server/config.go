// Package server provides configuration helpers that define runtime defaults,
// validation, and environment/YAML loading for the chat service.
package server

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultHost             = "127.0.0.1"
	defaultPort             = 55555
	defaultMaxPending       = 5
	defaultMaxMessageSize   = 1024
	defaultWriteTimeout     = 5 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultHTTPAddr         = "127.0.0.1:8080"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// HTTPConfig controls the HTTP surface that hosts the WebSocket gateway.
type HTTPConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// JournalConfig selects the session journal backend. An empty driver
// disables the journal.
type JournalConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LoggingConfig holds log level (debug|info|warn|error) and format (text|json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config holds the server configuration settings.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// MaxPending bounds connections accepted but still waiting for a username.
	MaxPending int `yaml:"max_pending"`
	// MaxClients caps simultaneously open TCP connections; 0 means no cap.
	MaxClients       int             `yaml:"max_clients"`
	MaxMessageSize   int64           `yaml:"max_message_size"`
	WriteTimeout     time.Duration   `yaml:"write_timeout"`
	HandshakeTimeout time.Duration   `yaml:"handshake_timeout"`
	RateLimit        RateLimitConfig `yaml:"rate_limit"`
	HTTP             HTTPConfig      `yaml:"http"`
	Journal          JournalConfig   `yaml:"journal"`
	Logging          LoggingConfig   `yaml:"logging"`
}

func defaultConfig() Config {
	return Config{
		Host:             defaultHost,
		Port:             defaultPort,
		MaxPending:       defaultMaxPending,
		MaxMessageSize:   defaultMaxMessageSize,
		WriteTimeout:     defaultWriteTimeout,
		HandshakeTimeout: defaultHandshakeTimeout,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		HTTP: HTTPConfig{
			Addr: defaultHTTPAddr,
			AllowedOrigins: []string{
				"http://localhost:8080",
				"http://127.0.0.1:8080",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// at path and environment overrides, in that order.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	cfg = sanitizeConfig(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(&cfg)
	cfg = sanitizeConfig(cfg)
	return &cfg
}

// Address returns the host:port the chat listener binds to.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MaxPending <= 0 {
		return fmt.Errorf("max_pending must be positive, got %d", c.MaxPending)
	}
	if c.MaxClients < 0 {
		return fmt.Errorf("max_clients must not be negative, got %d", c.MaxClients)
	}
	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr cannot be empty when http is enabled")
	}
	switch strings.ToLower(c.Journal.Driver) {
	case "", "sqlite", "sqlite3", "mysql":
	default:
		return fmt.Errorf("unsupported journal driver %q", c.Journal.Driver)
	}
	return nil
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}

	if cfg.MaxPending <= 0 {
		cfg.MaxPending = defaultMaxPending
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	if cfg.HandshakeTimeout < 0 {
		cfg.HandshakeTimeout = 0
	}

	if cfg.RateLimit.Burst < 0 {
		cfg.RateLimit.Burst = 0
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = defaultHTTPAddr
	}

	cfg.HTTP.AllowedOrigins = append([]string(nil), cfg.HTTP.AllowedOrigins...)
	cfg.Journal.Driver = strings.ToLower(strings.TrimSpace(cfg.Journal.Driver))
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Host = host
	}

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = parseIntValue(port, cfg.Port)
	}

	if pending := os.Getenv("MAX_PENDING"); pending != "" {
		cfg.MaxPending = parseIntValue(pending, cfg.MaxPending)
	}

	if maxClients := os.Getenv("MAX_CLIENTS"); maxClients != "" {
		cfg.MaxClients = parseIntValue(maxClients, cfg.MaxClients)
	}

	if timeout := os.Getenv("HANDSHAKE_TIMEOUT"); timeout != "" {
		cfg.HandshakeTimeout = parseTimeout(timeout, cfg.HandshakeTimeout)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseRefillInterval(interval, cfg.RateLimit.RefillInterval)
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.HTTP.AllowedOrigins = parseOrigins(origins)
	}

	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		cfg.HTTP.Addr = addr
		cfg.HTTP.Enabled = true
	}

	if driver := os.Getenv("JOURNAL_DRIVER"); driver != "" {
		cfg.Journal.Driver = driver
	}

	if dsn := os.Getenv("JOURNAL_DSN"); dsn != "" {
		cfg.Journal.DSN = dsn
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
		return parsed
	}
	return defaultValue
}

func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

// parseTimeout accepts integer seconds or a duration string. Zero disables
// the timeout.
func parseTimeout(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return d
	}
	return defaultValue
}
