// ABOUTME: Configuration loading and parsing for coven-conversations
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when a value is not set.
const (
	DefaultGRPCAddr = "127.0.0.1:50061"
	DefaultDBDriver = "sqlite"
	DefaultDBPath   = "conversations.db"
	DefaultTokenTTL = 24 * time.Hour
)

// Config represents the complete coven-conversations configuration
type Config struct {
	AppID     string          `yaml:"app_id" toml:"app_id"`
	UserID    string          `yaml:"user_id" toml:"user_id"`
	Remote    RemoteConfig    `yaml:"remote" toml:"remote"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Reconcile ReconcileConfig `yaml:"reconcile" toml:"reconcile"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// RemoteConfig tells client commands where the tree server lives
type RemoteConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Token    string `yaml:"token" toml:"token"`
	Insecure bool   `yaml:"insecure" toml:"insecure"` // plaintext gRPC
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // "sqlite" (pure Go) or "sqlite3" (cgo)
	Path   string `yaml:"path" toml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" toml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"-" toml:"-"`

	TokenTTLRaw string `yaml:"token_ttl" toml:"token_ttl"`
}

// ReconcileConfig tunes the mark-read reconciler. Zero values select its defaults.
type ReconcileConfig struct {
	Timeout      time.Duration `yaml:"-" toml:"-"`
	DedupeWindow time.Duration `yaml:"-" toml:"-"`
	DedupeSize   int           `yaml:"dedupe_size" toml:"dedupe_size"`

	// Raw string values for unmarshaling
	TimeoutRaw      string `yaml:"timeout" toml:"timeout"`
	DedupeWindowRaw string `yaml:"dedupe_window" toml:"dedupe_window"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with only defaults applied, for running
// without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.GRPCAddr == "" {
		c.Server.GRPCAddr = DefaultGRPCAddr
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDBDriver
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDBPath
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = DefaultTokenTTL
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks the fields every command depends on.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be sqlite or sqlite3, got %q", c.Database.Driver)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Auth.TokenTTL < 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.Reconcile.DedupeSize < 0 {
		return fmt.Errorf("reconcile.dedupe_size must not be negative")
	}

	return nil
}

// ValidateClient checks the fields needed to mirror a user's conversations.
func (c *Config) ValidateClient() error {
	if c.AppID == "" {
		return fmt.Errorf("app_id is required")
	}
	if c.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if c.Remote.Addr == "" {
		return fmt.Errorf("remote.addr is required")
	}
	return nil
}

// ValidateServer checks the fields needed to serve the tree.
func (c *Config) ValidateServer() error {
	if c.Server.GRPCAddr == "" {
		return fmt.Errorf("server.grpc_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}

	if cfg.Reconcile.TimeoutRaw != "" {
		cfg.Reconcile.Timeout, err = time.ParseDuration(cfg.Reconcile.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing timeout %q: %w", cfg.Reconcile.TimeoutRaw, err)
		}
	}

	if cfg.Reconcile.DedupeWindowRaw != "" {
		cfg.Reconcile.DedupeWindow, err = time.ParseDuration(cfg.Reconcile.DedupeWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe_window %q: %w", cfg.Reconcile.DedupeWindowRaw, err)
		}
	}

	return nil
}

// DefaultPath resolves the config file location: $COVEN_CONVERSATIONS_CONFIG,
// then $XDG_CONFIG_HOME/coven/conversations.yaml, then ~/.config/coven/conversations.yaml.
func DefaultPath() string {
	if p := os.Getenv("COVEN_CONVERSATIONS_CONFIG"); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "coven", "conversations.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "conversations.yaml"
	}
	return filepath.Join(home, ".config", "coven", "conversations.yaml")
}
