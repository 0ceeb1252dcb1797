package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ErrInvalidConfig is returned when a value fails validation
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	ValidationIntrospection = "introspection"
	ValidationJWKS          = "jwks"

	// MaxIntrospectionTimeout keeps a token check well inside the HTTP
	// server's 30s write timeout, so a denial can still be written.
	MaxIntrospectionTimeout = 20 // seconds

	// MetadataPath is where the protected resource metadata document is served
	MetadataPath = "/.well-known/oauth-protected-resource"
)

// Config holds the server configuration. It is built once at startup and
// not modified afterwards.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Auth    AuthConfig    `toml:"auth"`
	Jokes   JokesConfig   `toml:"jokes"`
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig holds transport settings
type ServerConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

// AuthConfig holds authorization server settings
type AuthConfig struct {
	KeycloakURL          string `toml:"keycloak_url"`
	Realm                string `toml:"realm"`
	ClientID             string `toml:"client_id"`
	ClientSecret         string `toml:"client_secret"`
	ResourceServerURL    string `toml:"resource_server_url"`
	AllowBypass          bool   `toml:"allow_bypass"`
	Validation           string `toml:"validation"`
	IntrospectionTimeout int    `toml:"introspection_timeout"` // seconds
	MomJokeScope         string `toml:"mom_joke_scope"`
}

// JokesConfig holds joke provider settings
type JokesConfig struct {
	Seed *uint64 `toml:"seed"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns the configuration used when nothing is set
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:    "joke-server",
			Version: "0.1.0",
			Host:    "127.0.0.1",
			Port:    8000,
		},
		Auth: AuthConfig{
			KeycloakURL:          "http://localhost:8080",
			Realm:                "mcp",
			ClientID:             "mcp-joke-server",
			ResourceServerURL:    "http://localhost:8000",
			Validation:           ValidationIntrospection,
			IntrospectionTimeout: 5,
			MomJokeScope:         "tools:mom_jokes",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the configuration with priority defaults -> file -> env.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	getEnv := func(key string, target *string) {
		if v, ok := lookup(key); ok && v != "" {
			*target = v
		}
	}

	getEnv("KEYCLOAK_URL", &cfg.Auth.KeycloakURL)
	getEnv("KEYCLOAK_REALM", &cfg.Auth.Realm)
	getEnv("KEYCLOAK_CLIENT_ID", &cfg.Auth.ClientID)
	getEnv("KEYCLOAK_CLIENT_SECRET", &cfg.Auth.ClientSecret)
	getEnv("RESOURCE_SERVER_URL", &cfg.Auth.ResourceServerURL)
	getEnv("TOKEN_VALIDATION", &cfg.Auth.Validation)
	getEnv("HOST", &cfg.Server.Host)
	getEnv("LOG_LEVEL", &cfg.Logging.Level)
	getEnv("LOG_FORMAT", &cfg.Logging.Format)

	if v, ok := lookup("ALLOW_AUTH_BYPASS"); ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: ALLOW_AUTH_BYPASS=%q is not a boolean", ErrInvalidConfig, v)
		}
		cfg.Auth.AllowBypass = b
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PORT=%q is not a number", ErrInvalidConfig, v)
		}
		cfg.Server.Port = p
	}
	if v, ok := lookup("INTROSPECTION_TIMEOUT"); ok && v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: INTROSPECTION_TIMEOUT=%q is not a number", ErrInvalidConfig, v)
		}
		cfg.Auth.IntrospectionTimeout = secs
	}
	if v, ok := lookup("JOKES_SEED"); ok && v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: JOKES_SEED=%q is not an unsigned integer", ErrInvalidConfig, v)
		}
		cfg.Jokes.Seed = &seed
	}

	return nil
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	if c.Auth.Validation != ValidationIntrospection && c.Auth.Validation != ValidationJWKS {
		return fmt.Errorf("%w: token validation must be %q or %q, got %q",
			ErrInvalidConfig, ValidationIntrospection, ValidationJWKS, c.Auth.Validation)
	}
	if c.Auth.IntrospectionTimeout <= 0 {
		return fmt.Errorf("%w: introspection timeout must be positive", ErrInvalidConfig)
	}
	if c.Auth.IntrospectionTimeout > MaxIntrospectionTimeout {
		return fmt.Errorf("%w: introspection timeout %ds exceeds %ds",
			ErrInvalidConfig, c.Auth.IntrospectionTimeout, MaxIntrospectionTimeout)
	}
	if c.Auth.KeycloakURL == "" || c.Auth.Realm == "" {
		return fmt.Errorf("%w: KEYCLOAK_URL and KEYCLOAK_REALM are required", ErrInvalidConfig)
	}
	if c.Auth.ResourceServerURL == "" {
		return fmt.Errorf("%w: RESOURCE_SERVER_URL is required", ErrInvalidConfig)
	}
	if c.Auth.MomJokeScope == "" {
		return fmt.Errorf("%w: mom joke scope is required", ErrInvalidConfig)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	return nil
}

// IssuerURL is the realm URL advertised as the authorization server
func (a AuthConfig) IssuerURL() string {
	return strings.TrimRight(a.KeycloakURL, "/") + "/realms/" + a.Realm
}

// IntrospectionURL is the RFC 7662 token introspection endpoint
func (a AuthConfig) IntrospectionURL() string {
	return a.IssuerURL() + "/protocol/openid-connect/token/introspect"
}

// JWKSURL is the realm signing key set
func (a AuthConfig) JWKSURL() string {
	return a.IssuerURL() + "/protocol/openid-connect/certs"
}

// ResourceURL is this server's identity in discovery metadata
func (a AuthConfig) ResourceURL() string {
	return strings.TrimRight(a.ResourceServerURL, "/")
}

// MetadataURL is the absolute URL of the protected resource metadata document
func (a AuthConfig) MetadataURL() string {
	return a.ResourceURL() + MetadataPath
}

// Timeout returns the introspection timeout as a duration
func (a AuthConfig) Timeout() time.Duration {
	return time.Duration(a.IntrospectionTimeout) * time.Second
}

// Addr is the HTTP listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
