package mcp

import (
	"encoding/json"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/iafnetworkspa/joke-mcp/internal/auth"
	"github.com/iafnetworkspa/joke-mcp/internal/tools"
)

// ProtocolVersion is the MCP revision this server speaks
const ProtocolVersion = "2024-11-05"

// CodeUnauthorized is returned when a protected tool is called without
// sufficient credentials
const CodeUnauthorized = -32001

// JSON-RPC types

// Request is an inbound JSON-RPC message. ID is nil when the member is
// absent and the literal null when it was sent as null.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the message carried no id member
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response carries exactly one of Result or Error
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// AuthErrorData is the data member of a CodeUnauthorized error
type AuthErrorData struct {
	MetadataURL   string `json:"metadata_url"`
	RequiredScope string `json:"required_scope"`
	Reason        string `json:"reason,omitempty"`

	challenge auth.Challenge
}

// Challenge returns the WWW-Authenticate challenge for this error
func (d *AuthErrorData) Challenge() auth.Challenge {
	return d.challenge
}

// MCP Protocol types

type InitializeResult struct {
	ProtocolVersion string               `json:"protocolVersion"`
	Capabilities    ServerCapabilities   `json:"capabilities"`
	ServerInfo      mcpgo.Implementation `json:"serverInfo"`
}

type ServerCapabilities struct {
	Tools ToolCapabilities `json:"tools"`
}

// ToolCapabilities is advertised as an empty object
type ToolCapabilities struct{}

type Tool struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	InputSchema tools.Schema `json:"inputSchema"`
}

type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}

type ToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// requestMeta is the subset of params._meta read by the stdio adapter
type requestMeta struct {
	Params struct {
		Meta struct {
			Authorization struct {
				Token string `json:"token"`
			} `json:"authorization"`
		} `json:"_meta"`
	} `json:"params"`
}
