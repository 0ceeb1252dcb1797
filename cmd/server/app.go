package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iafnetworkspa/joke-mcp/internal/auth"
	"github.com/iafnetworkspa/joke-mcp/internal/config"
	"github.com/iafnetworkspa/joke-mcp/internal/jokes"
	"github.com/iafnetworkspa/joke-mcp/internal/mcp"
	"github.com/iafnetworkspa/joke-mcp/internal/tools"
)

// app holds the components shared by both transports
type app struct {
	cfg        *config.Config
	registry   *tools.Registry
	dispatcher *mcp.Server
}

// bootstrap loads configuration, sets up logging and wires the dispatcher.
// override, when set, is applied after loading and before validation.
func bootstrap(path string, override func(*config.Config)) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	if override != nil {
		override(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("error loading configuration: %w", err)
		}
	}

	logger, err := newLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return nil, err
	}
	log.Logger = logger

	return newApp(cfg)
}

func newApp(cfg *config.Config) (*app, error) {
	var opts []jokes.Option
	if cfg.Jokes.Seed != nil {
		opts = append(opts, jokes.WithSeed(*cfg.Jokes.Seed))
	}
	provider, err := jokes.NewProvider(opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating joke provider: %w", err)
	}

	registry := tools.NewRegistry()
	if err := tools.RegisterJokes(registry, provider, cfg.Auth.MomJokeScope); err != nil {
		return nil, fmt.Errorf("error registering tools: %w", err)
	}

	gate := auth.NewGate(auth.GateConfig{
		MetadataURL: cfg.Auth.MetadataURL(),
		AllowBypass: cfg.Auth.AllowBypass,
		Timeout:     cfg.Auth.Timeout(),
	}, newIntrospector(cfg.Auth))

	dispatcher := mcp.NewServer(registry, gate, mcpgo.Implementation{
		Name:    cfg.Server.Name,
		Version: cfg.Server.Version,
	})

	log.Info().
		Str("name", cfg.Server.Name).
		Str("version", cfg.Server.Version).
		Str("issuer", cfg.Auth.IssuerURL()).
		Str("validation", cfg.Auth.Validation).
		Bool("auth_bypass", cfg.Auth.AllowBypass).
		Int("tools", len(registry.List())).
		Msg("Server configured")

	return &app{cfg: cfg, registry: registry, dispatcher: dispatcher}, nil
}

// metadata builds the discovery document from the registered protected tools
func (a *app) metadata() auth.ProtectedResourceMetadata {
	return auth.NewMetadata(a.cfg.Auth.ResourceURL(), a.cfg.Auth.IssuerURL(), a.registry.Scopes())
}

func newIntrospector(cfg config.AuthConfig) auth.Introspector {
	if cfg.Validation == config.ValidationJWKS {
		return auth.NewJWKSVerifier(cfg.JWKSURL(), cfg.IssuerURL(), cfg.Timeout())
	}
	if cfg.ClientSecret == "" && !cfg.AllowBypass {
		log.Warn().Msg("KEYCLOAK_CLIENT_SECRET is empty - token introspection will likely fail")
	}
	return auth.NewKeycloakIntrospector(auth.IntrospectorConfig{
		URL:          cfg.IntrospectionURL(),
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Timeout:      cfg.Timeout(),
	})
}

// newLogger builds the global logger. Output never goes to stdout, which
// carries the stdio protocol stream.
func newLogger(cfg config.LoggingConfig, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.Logger{}, fmt.Errorf("%w: unknown log level %q", config.ErrInvalidConfig, cfg.Level)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	switch strings.ToLower(cfg.Format) {
	case "", "console":
		out = zerolog.ConsoleWriter{Out: out}
	case "json":
	default:
		return zerolog.Logger{}, fmt.Errorf("%w: unknown log format %q", config.ErrInvalidConfig, cfg.Format)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}
