// Package config loads the walletauth configuration from a TOML or YAML file chosen by
// APP_ENV, with ${VAR} expansion and APP_<SECTION>__<KEY> environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete walletauth configuration
type Config struct {
	App      AppConfig      `toml:"app" yaml:"app"`
	Database DatabaseConfig `toml:"database" yaml:"database"`
	Redis    RedisConfig    `toml:"redis" yaml:"redis"`
	Secrets  SecretsConfig  `toml:"secrets" yaml:"secrets"`
	Auth     AuthConfig     `toml:"auth" yaml:"auth"`
	Events   EventsConfig   `toml:"events" yaml:"events"`
	Logging  LoggingConfig  `toml:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `toml:"metrics" yaml:"metrics"`
}

// AppConfig holds the HTTP listener configuration
type AppConfig struct {
	Host string `toml:"host" yaml:"host"`
	Port int    `toml:"port" yaml:"port"`

	ShutdownTimeout    time.Duration `toml:"-" yaml:"-"`
	ShutdownTimeoutRaw string        `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Addr returns host:port.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// DatabaseConfig selects the nonce store
type DatabaseConfig struct {
	Driver  string `toml:"driver" yaml:"driver"` // memory, sqlite, postgres or redis
	URL     string `toml:"url" yaml:"url"`       // postgres connection string
	Path    string `toml:"path" yaml:"path"`     // sqlite file
	Migrate bool   `toml:"migrate" yaml:"migrate"`
}

// RedisConfig is shared by the redis nonce store and the redisstream event publisher
type RedisConfig struct {
	URL string `toml:"url" yaml:"url"`
}

// SecretsConfig holds the token signing key
type SecretsConfig struct {
	// KeyPair is the HMAC secret for HS256, or a base64 PKCS#8 / PEM private key for
	// EdDSA and ES256.
	KeyPair string `toml:"key_pair" yaml:"key_pair"`
}

// AuthConfig holds the authentication protocol settings
type AuthConfig struct {
	Algorithm       string       `toml:"algorithm" yaml:"algorithm"`
	SignatureScheme string       `toml:"signature_scheme" yaml:"signature_scheme"`
	Issuer          string       `toml:"issuer" yaml:"issuer"`
	ConsumeNonce    bool         `toml:"consume_nonce" yaml:"consume_nonce"`
	EIP712          EIP712Config `toml:"eip712" yaml:"eip712"`

	TokenTTL    time.Duration `toml:"-" yaml:"-"`
	NonceMaxAge time.Duration `toml:"-" yaml:"-"`

	// Raw string values for unmarshaling
	TokenTTLRaw    string `toml:"token_ttl" yaml:"token_ttl"`
	NonceMaxAgeRaw string `toml:"nonce_max_age" yaml:"nonce_max_age"`
}

// EIP712Config is the typed-data domain used by the eip712 signature scheme
type EIP712Config struct {
	Name              string `toml:"name" yaml:"name"`
	Version           string `toml:"version" yaml:"version"`
	ChainID           int64  `toml:"chain_id" yaml:"chain_id"`
	VerifyingContract string `toml:"verifying_contract" yaml:"verifying_contract"`
}

// EventsConfig holds login event publishing configuration
type EventsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Backend string `toml:"backend" yaml:"backend"` // redisstream or gochannel
	Topic   string `toml:"topic" yaml:"topic"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`
}

// Default returns the configuration used for every key a file leaves out.
func Default() Config {
	return Config{
		App: AppConfig{
			Host:               "0.0.0.0",
			Port:               8000,
			ShutdownTimeoutRaw: "10s",
		},
		Database: DatabaseConfig{
			Driver: "memory",
		},
		Auth: AuthConfig{
			Algorithm:       "EdDSA",
			SignatureScheme: "personal_sign",
			ConsumeNonce:    true,
			TokenTTLRaw:     "1h",
			NonceMaxAgeRaw:  "15m",
		},
		Events: EventsConfig{
			Backend: "redisstream",
			Topic:   "walletauth.login",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Environment returns APP_ENV, defaulting to "local".
func Environment() string {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env
	}
	return "local"
}

// Load reads <dir>/<APP_ENV>.toml, or <dir>/<APP_ENV>.yaml when no TOML file exists.
func Load(dir string) (*Config, error) {
	env := Environment()
	for _, ext := range []string{".toml", ".yaml", ".yml"} {
		path := filepath.Join(dir, env+ext)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("checking config file: %w", err)
		}
	}
	return nil, fmt.Errorf("no configuration for environment %q in %s", env, dir)
}

// LoadFile reads a configuration file, picking the decoder from its extension.
// Environment variables in the format ${VAR_NAME} are expanded before decoding.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}

	if err := applyEnvOverrides(&cfg, os.Environ()); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// Unset variables expand to an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"app.shutdown_timeout", cfg.App.ShutdownTimeoutRaw, &cfg.App.ShutdownTimeout},
		{"auth.token_ttl", cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL},
		{"auth.nonce_max_age", cfg.Auth.NonceMaxAgeRaw, &cfg.Auth.NonceMaxAge},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("app.port must be between 1 and 65535, got %d", c.App.Port)
	}

	switch c.Database.Driver {
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required for the redis driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not one of memory, sqlite, postgres, redis", c.Database.Driver)
	}

	switch c.Auth.Algorithm {
	case "HS256", "EdDSA", "ES256":
	default:
		return fmt.Errorf("auth.algorithm %q is not one of HS256, EdDSA, ES256", c.Auth.Algorithm)
	}

	if c.Secrets.KeyPair == "" {
		return fmt.Errorf("secrets.key_pair is required")
	}

	switch c.Auth.SignatureScheme {
	case "personal_sign":
	case "eip712":
		if c.Auth.EIP712.Name == "" || c.Auth.EIP712.Version == "" {
			return fmt.Errorf("auth.eip712.name and auth.eip712.version are required for the eip712 scheme")
		}
	default:
		return fmt.Errorf("auth.signature_scheme %q is not one of personal_sign, eip712", c.Auth.SignatureScheme)
	}

	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.Auth.NonceMaxAge < 0 {
		return fmt.Errorf("auth.nonce_max_age must not be negative")
	}

	if c.Events.Enabled {
		switch c.Events.Backend {
		case "gochannel":
		case "redisstream":
			if c.Redis.URL == "" {
				return fmt.Errorf("redis.url is required for the redisstream events backend")
			}
		default:
			return fmt.Errorf("events.backend %q is not one of redisstream, gochannel", c.Events.Backend)
		}
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format %q is not one of json, text", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	return nil
}
