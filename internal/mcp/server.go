package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog/log"

	"github.com/iafnetworkspa/joke-mcp/internal/auth"
	"github.com/iafnetworkspa/joke-mcp/internal/tools"
)

var nullID = json.RawMessage("null")

// Authorizer decides whether a caller may invoke a tool
type Authorizer interface {
	Authorize(ctx context.Context, d tools.Descriptor, ac auth.Context) auth.Decision
}

// Server dispatches JSON-RPC messages to the tool registry. It holds no
// per-request state and is shared by every transport.
type Server struct {
	registry *tools.Registry
	gate     Authorizer
	info     mcpgo.Implementation
}

// NewServer creates a new MCP dispatcher
func NewServer(registry *tools.Registry, gate Authorizer, info mcpgo.Implementation) *Server {
	return &Server{
		registry: registry,
		gate:     gate,
		info:     info,
	}
}

// Handle processes one raw JSON-RPC message. It returns nil only for
// notifications, which get no response.
func (s *Server) Handle(ctx context.Context, raw []byte, ac auth.Context) (resp *Response) {
	var request Request
	if err := json.Unmarshal(raw, &request); err != nil {
		log.Debug().Err(err).Msg("Failed to parse JSON-RPC message")
		return errorResponse(recoverID(err, request.ID), mcpgo.INVALID_REQUEST, "Invalid Request", err.Error())
	}

	id := request.ID
	if !validID(id) {
		return errorResponse(nullID, mcpgo.INVALID_REQUEST, "Invalid Request", "id must be a string, number or null")
	}
	if request.IsNotification() {
		id = nullID
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("method", request.Method).Msg("Recovered from panic in dispatcher")
			resp = errorResponse(id, mcpgo.INTERNAL_ERROR, "Internal error", nil)
		}
	}()

	if request.JSONRPC != mcpgo.JSONRPC_VERSION {
		return errorResponse(id, mcpgo.INVALID_REQUEST, "Invalid Request", "jsonrpc must be '2.0'")
	}
	if request.Method == "" {
		return errorResponse(id, mcpgo.INVALID_REQUEST, "Invalid Request", "method is required")
	}

	if request.IsNotification() && strings.HasPrefix(request.Method, "notifications/") {
		log.Debug().Str("method", request.Method).Msg("Notification received")
		return nil
	}

	log.Debug().Str("method", request.Method).Msg("Handling request")

	switch mcpgo.MCPMethod(request.Method) {
	case mcpgo.MethodInitialize:
		return s.handleInitialize(id)
	case mcpgo.MethodPing:
		return success(id, struct{}{})
	case mcpgo.MethodToolsList:
		return s.handleToolsList(id)
	case mcpgo.MethodToolsCall:
		return s.handleToolCall(ctx, id, request.Params, ac)
	default:
		return errorResponse(id, mcpgo.METHOD_NOT_FOUND, "Method not found", request.Method)
	}
}

// handleInitialize handles the initialize request
func (s *Server) handleInitialize(id json.RawMessage) *Response {
	return success(id, InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ServerCapabilities{Tools: ToolCapabilities{}},
		ServerInfo:      s.info,
	})
}

// handleToolsList returns every registered tool. Listing is never gated.
func (s *Server) handleToolsList(id json.RawMessage) *Response {
	descriptors := s.registry.List()
	list := make([]Tool, 0, len(descriptors))
	for _, d := range descriptors {
		list = append(list, Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		})
	}
	return success(id, ToolsListResult{Tools: list})
}

// handleToolCall resolves, authorizes and executes a tool call
func (s *Server) handleToolCall(ctx context.Context, id json.RawMessage, rawParams json.RawMessage, ac auth.Context) *Response {
	var params ToolCallParams
	if len(rawParams) > 0 {
		if err := json.Unmarshal(rawParams, &params); err != nil {
			return errorResponse(id, mcpgo.INVALID_PARAMS, "Invalid params", err.Error())
		}
	}
	if params.Name == "" {
		return errorResponse(id, mcpgo.INVALID_PARAMS, "Invalid params", "tool name is required")
	}

	descriptor, err := s.registry.Resolve(params.Name)
	if err != nil {
		log.Debug().Str("tool", params.Name).Msg("Unknown tool requested")
		return errorResponse(id, mcpgo.INVALID_PARAMS, "Invalid params", err.Error())
	}

	decision := s.gate.Authorize(ctx, descriptor, ac)
	log.Debug().
		Str("tool", descriptor.Name).
		Str("decision", decision.Outcome.String()).
		Str("reason", string(decision.Reason)).
		Msg("Authorization decided")

	if decision.Outcome != auth.Allowed {
		return authErrorResponse(id, decision)
	}

	args := params.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}

	text, err := descriptor.Handler.Call(ctx, args)
	if err != nil {
		log.Error().Err(err).Str("tool", descriptor.Name).Msg("Tool execution failed")
		return errorResponse(id, mcpgo.INTERNAL_ERROR, "Internal error", fmt.Sprintf("tool %s failed", descriptor.Name))
	}

	log.Info().Str("tool", descriptor.Name).Str("subject", decision.Caller.Subject).Msg("Tool executed")

	return success(id, &mcpgo.CallToolResult{
		Content: []mcpgo.Content{mcpgo.NewTextContent(text)},
	})
}

func authErrorResponse(id json.RawMessage, d auth.Decision) *Response {
	message := "Unauthorized"
	if d.Outcome == auth.Denied && d.Reason == auth.ReasonInsufficientScope {
		message = "Forbidden"
	}
	return errorResponse(id, CodeUnauthorized, message, &AuthErrorData{
		MetadataURL:   d.MetadataURL,
		RequiredScope: d.RequiredScope,
		Reason:        string(d.Reason),
		challenge:     auth.ChallengeFor(d),
	})
}

func success(id json.RawMessage, result interface{}) *Response {
	return &Response{
		JSONRPC: mcpgo.JSONRPC_VERSION,
		ID:      id,
		Result:  result,
	}
}

func errorResponse(id json.RawMessage, code int, message string, data interface{}) *Response {
	return &Response{
		JSONRPC: mcpgo.JSONRPC_VERSION,
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// AuthError returns the auth data of a CodeUnauthorized response
func AuthError(resp *Response) (*AuthErrorData, bool) {
	if resp == nil || resp.Error == nil || resp.Error.Code != CodeUnauthorized {
		return nil, false
	}
	data, ok := resp.Error.Data.(*AuthErrorData)
	return data, ok
}

// recoverID keeps the request id when decoding failed only on a mistyped
// member; the decoder still fills the members it could read.
func recoverID(err error, id json.RawMessage) json.RawMessage {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && len(id) > 0 && validID(id) {
		return id
	}
	return nullID
}

// validID accepts an absent id, null, a string or a number
func validID(id json.RawMessage) bool {
	if len(id) == 0 {
		return true
	}
	var v interface{}
	if err := json.Unmarshal(id, &v); err != nil {
		return false
	}
	switch v.(type) {
	case nil, string, float64:
		return true
	default:
		return false
	}
}
