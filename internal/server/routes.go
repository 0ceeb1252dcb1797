package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog/log"

	"github.com/iafnetworkspa/joke-mcp/internal/auth"
	"github.com/iafnetworkspa/joke-mcp/internal/config"
	"github.com/iafnetworkspa/joke-mcp/internal/mcp"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIdentity)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /mcp", s.handleMCP)
	mux.HandleFunc("GET "+config.MetadataPath, s.handleMetadata)

	return mux
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	writeRaw(w, http.StatusOK, s.identity)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeRaw(w, http.StatusOK, []byte(`{"status":"ok"}`))
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	writeRaw(w, http.StatusOK, s.metadata)
}

// handleMCP carries one JSON-RPC message per request. Auth failures become
// 401 with a Bearer challenge; every other JSON-RPC error stays in a 200 body.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn().Int64("limit", tooLarge.Limit).Msg("Request body too large")
			writeJSON(w, http.StatusRequestEntityTooLarge, rpcError(mcpgo.INVALID_REQUEST, "Invalid Request", "request body too large"))
			return
		}
		log.Error().Err(err).Msg("Failed to read request body")
		writeJSON(w, http.StatusBadRequest, rpcError(mcpgo.INVALID_REQUEST, "Invalid Request", "failed to read request body"))
		return
	}

	ac := auth.FromAuthorizationHeader(r.Header.Get("Authorization"))
	resp := s.dispatcher.Handle(r.Context(), body, ac)

	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if data, ok := mcp.AuthError(resp); ok {
		w.Header().Set("WWW-Authenticate", data.Challenge().String())
		writeJSON(w, http.StatusUnauthorized, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func rpcError(code int, message, data string) *mcp.Response {
	return &mcp.Response{
		JSONRPC: mcpgo.JSONRPC_VERSION,
		ID:      json.RawMessage("null"),
		Error:   &mcp.Error{Code: code, Message: message, Data: data},
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, data)
}

func writeRaw(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
