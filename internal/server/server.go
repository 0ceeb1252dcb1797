package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iafnetworkspa/joke-mcp/internal/auth"
	"github.com/iafnetworkspa/joke-mcp/internal/config"
	"github.com/iafnetworkspa/joke-mcp/internal/mcp"
)

// maxBodyBytes caps a single JSON-RPC request body
const maxBodyBytes = 1 << 20

// Dispatcher handles one JSON-RPC message for a caller
type Dispatcher interface {
	Handle(ctx context.Context, raw []byte, ac auth.Context) *mcp.Response
}

// Server is the HTTP transport for the MCP dispatcher
type Server struct {
	config     config.ServerConfig
	dispatcher Dispatcher
	metadata   []byte
	identity   []byte
	router     *http.ServeMux
	server     *http.Server
}

// New creates a new HTTP server. The discovery document is encoded once here
// and served unchanged for the lifetime of the server.
func New(cfg config.ServerConfig, dispatcher Dispatcher, metadata auth.ProtectedResourceMetadata) (*Server, error) {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode resource metadata: %w", err)
	}

	identityJSON, err := json.Marshal(identity{
		Name:        cfg.Name,
		Version:     cfg.Version,
		Description: "MCP server providing dad and mom jokes, with OAuth protected tools",
		Transport:   "http",
		Endpoints: map[string]string{
			"mcp":      "/mcp",
			"health":   "/health",
			"metadata": config.MetadataPath,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode server identity: %w", err)
	}

	s := &Server{
		config:     cfg,
		dispatcher: dispatcher,
		metadata:   metadataJSON,
		identity:   identityJSON,
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.withMiddleware(s.router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s, nil
}

// Start listens and serves until Shutdown is called
func (s *Server) Start() error {
	log.Info().
		Str("address", s.server.Addr).
		Str("url", fmt.Sprintf("http://%s", s.server.Addr)).
		Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info().Msg("HTTP server stopped")
	return nil
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

type identity struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Description string            `json:"description"`
	Transport   string            `json:"transport"`
	Endpoints   map[string]string `json:"endpoints"`
}
