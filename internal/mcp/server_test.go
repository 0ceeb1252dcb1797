package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iafnetworkspa/joke-mcp/internal/auth"
	"github.com/iafnetworkspa/joke-mcp/internal/jokes"
	"github.com/iafnetworkspa/joke-mcp/internal/tools"
)

const testMetadataURL = "http://localhost:8000/.well-known/oauth-protected-resource"

type stubIntrospector map[string]*auth.Introspection

func (s stubIntrospector) Introspect(_ context.Context, token string) (*auth.Introspection, error) {
	info, ok := s[token]
	if !ok {
		return nil, auth.ErrTokenInactive
	}
	return info, nil
}

var testTokens = stubIntrospector{
	"scoped":   {Active: true, Scope: "openid tools:mom_jokes", Subject: "alice"},
	"unscoped": {Active: true, Scope: "openid", Subject: "bob"},
}

func newTestServer(t *testing.T, bypass bool) (*Server, *jokes.Provider) {
	t.Helper()
	provider, err := jokes.NewProvider(jokes.WithSeed(7))
	require.NoError(t, err)

	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterJokes(registry, provider, tools.MomJokeScope))

	gate := auth.NewGate(auth.GateConfig{MetadataURL: testMetadataURL, AllowBypass: bypass, Timeout: time.Second}, testTokens)
	return NewServer(registry, gate, mcpgo.Implementation{Name: "joke-server", Version: "0.1.0"}), provider
}

// roundTrip handles raw and decodes the encoded response into a generic map
func roundTrip(t *testing.T, s *Server, raw string, ac auth.Context) map[string]interface{} {
	t.Helper()
	resp := s.Handle(context.Background(), []byte(raw), ac)
	require.NotNil(t, resp)
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func callTool(name string) string {
	return `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"` + name + `","arguments":{}}}`
}

func TestServer_handleInitialize(t *testing.T) {
	s, _ := newTestServer(t, false)

	out := roundTrip(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`, auth.Context{})

	result := out["result"].(map[string]interface{})
	assert.Equal(t, "2024-11-05", result["protocolVersion"])
	assert.Equal(t, map[string]interface{}{"tools": map[string]interface{}{}}, result["capabilities"])
	info := result["serverInfo"].(map[string]interface{})
	assert.Equal(t, "joke-server", info["name"])
	assert.Equal(t, "0.1.0", info["version"])
	assert.NotContains(t, out, "error")
}

func TestServer_handleToolsList(t *testing.T) {
	s, _ := newTestServer(t, false)

	for _, ac := range []auth.Context{{}, {BearerToken: "scoped"}, {BearerToken: "garbage"}} {
		out := roundTrip(t, s, `{"jsonrpc":"2.0","id":"a","method":"tools/list"}`, ac)

		assert.Equal(t, "a", out["id"])
		list := out["result"].(map[string]interface{})["tools"].([]interface{})
		require.Len(t, list, 2)

		first := list[0].(map[string]interface{})
		second := list[1].(map[string]interface{})
		assert.Equal(t, tools.DadJokeTool, first["name"])
		assert.Equal(t, tools.MomJokeTool, second["name"])
		assert.NotEmpty(t, first["description"])
		assert.Equal(t, map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
			"required":   []interface{}{},
		}, first["inputSchema"])
	}
}

func TestServer_handleToolCall_PublicTool(t *testing.T) {
	s, provider := newTestServer(t, false)

	out := roundTrip(t, s, callTool(tools.DadJokeTool), auth.Context{})

	assert.Equal(t, float64(1), out["id"])
	content := out["result"].(map[string]interface{})["content"].([]interface{})
	require.Len(t, content, 1)
	item := content[0].(map[string]interface{})
	assert.Equal(t, "text", item["type"])
	text := item["text"].(string)
	assert.NotEmpty(t, text)
	assert.True(t, provider.Contains(jokes.Dad, text))
}

func TestServer_handleToolCall_ProtectedTool(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		message string
		reason  string
	}{
		{"no token", "", "Unauthorized", ""},
		{"invalid token", "revoked", "Unauthorized", "invalid_token"},
		{"insufficient scope", "unscoped", "Forbidden", "insufficient_scope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, false)

			resp := s.Handle(context.Background(), []byte(callTool(tools.MomJokeTool)), auth.Context{BearerToken: tt.token})
			require.NotNil(t, resp)
			require.NotNil(t, resp.Error)
			assert.Nil(t, resp.Result)
			assert.Equal(t, CodeUnauthorized, resp.Error.Code)
			assert.Equal(t, tt.message, resp.Error.Message)

			data, ok := AuthError(resp)
			require.True(t, ok)
			assert.Equal(t, testMetadataURL, data.MetadataURL)
			assert.Equal(t, tools.MomJokeScope, data.RequiredScope)
			assert.Equal(t, tt.reason, data.Reason)
			assert.Contains(t, data.Challenge().String(), `resource_metadata="`+testMetadataURL+`"`)
		})
	}
}

func TestServer_handleToolCall_ProtectedToolAllowed(t *testing.T) {
	s, provider := newTestServer(t, false)

	out := roundTrip(t, s, callTool(tools.MomJokeTool), auth.Context{BearerToken: "scoped"})

	content := out["result"].(map[string]interface{})["content"].([]interface{})
	text := content[0].(map[string]interface{})["text"].(string)
	assert.True(t, provider.Contains(jokes.Mom, text))
}

func TestServer_handleToolCall_Bypass(t *testing.T) {
	s, _ := newTestServer(t, true)

	resp := s.Handle(context.Background(), []byte(callTool(tools.MomJokeTool)), auth.Context{})

	require.NotNil(t, resp)
	assert.Nil(t, resp.Error)
	assert.NotNil(t, resp.Result)
}

func TestServer_handleToolCall_InvalidParams(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown tool", callTool("get_cat_joke")},
		{"missing name", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"arguments":{}}}`},
		{"missing params", `{"jsonrpc":"2.0","id":1,"method":"tools/call"}`},
		{"params not an object", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":[1,2]}`},
		{"arguments not an object", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_dad_joke","arguments":"x"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, false)

			resp := s.Handle(context.Background(), []byte(tt.raw), auth.Context{})

			require.NotNil(t, resp.Error)
			assert.Equal(t, mcpgo.INVALID_PARAMS, resp.Error.Code)
			assert.Equal(t, "Invalid params", resp.Error.Message)
			assert.Equal(t, json.RawMessage("1"), resp.ID)
		})
	}
}

func TestServer_handleToolCall_HandlerError(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.Descriptor{
		Name: "broken",
		Handler: tools.HandlerFunc(func(context.Context, map[string]interface{}) (string, error) {
			return "", errors.New("boom")
		}),
	}))
	s := NewServer(registry, auth.NewGate(auth.GateConfig{}, nil), mcpgo.Implementation{Name: "t"})

	resp := s.Handle(context.Background(), []byte(callTool("broken")), auth.Context{})

	require.NotNil(t, resp.Error)
	assert.Equal(t, mcpgo.INTERNAL_ERROR, resp.Error.Code)
	assert.NotContains(t, resp.Error.Data, "boom")
}

func TestServer_handleToolCall_HandlerPanic(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.Descriptor{
		Name: "panics",
		Handler: tools.HandlerFunc(func(context.Context, map[string]interface{}) (string, error) {
			panic("unexpected")
		}),
	}))
	s := NewServer(registry, auth.NewGate(auth.GateConfig{}, nil), mcpgo.Implementation{Name: "t"})

	var resp *Response
	require.NotPanics(t, func() {
		resp = s.Handle(context.Background(), []byte(callTool("panics")), auth.Context{})
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcpgo.INTERNAL_ERROR, resp.Error.Code)
	assert.Equal(t, json.RawMessage("1"), resp.ID)
}

func TestServer_InvalidRequest(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		wantID string
	}{
		{"malformed json", `{"jsonrpc":"2.0","id":1,`, "null"},
		{"not an object", `[1,2,3]`, "null"},
		{"missing jsonrpc", `{"id":5,"method":"tools/list"}`, "5"},
		{"wrong jsonrpc", `{"jsonrpc":"1.0","id":5,"method":"tools/list"}`, "5"},
		{"missing method", `{"jsonrpc":"2.0","id":"x"}`, `"x"`},
		{"object id", `{"jsonrpc":"2.0","id":{"a":1},"method":"ping"}`, "null"},
		{"missing method and id", `{"jsonrpc":"2.0"}`, "null"},
		{"numeric jsonrpc keeps id", `{"jsonrpc":2,"id":7,"method":"ping"}`, "7"},
		{"numeric method keeps id", `{"jsonrpc":"2.0","id":7,"method":42}`, "7"},
		{"mistyped member with object id", `{"jsonrpc":2,"id":{"a":1},"method":"ping"}`, "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, false)

			resp := s.Handle(context.Background(), []byte(tt.raw), auth.Context{})

			require.NotNil(t, resp)
			require.NotNil(t, resp.Error)
			assert.Equal(t, mcpgo.INVALID_REQUEST, resp.Error.Code)
			assert.Equal(t, "Invalid Request", resp.Error.Message)
			assert.Equal(t, tt.wantID, string(resp.ID))
		})
	}
}

func TestServer_MethodNotFound(t *testing.T) {
	s, _ := newTestServer(t, false)

	resp := s.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":3,"method":"resources/list"}`), auth.Context{})

	require.NotNil(t, resp.Error)
	assert.Equal(t, mcpgo.METHOD_NOT_FOUND, resp.Error.Code)
	assert.Equal(t, "Method not found", resp.Error.Message)
}

func TestServer_Ping(t *testing.T) {
	s, _ := newTestServer(t, false)

	resp := s.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":9,"method":"ping"}`), auth.Context{})

	require.NotNil(t, resp)
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":9,"result":{}}`, string(data))
}

func TestServer_Notifications(t *testing.T) {
	s, _ := newTestServer(t, false)

	resp := s.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`), auth.Context{})
	assert.Nil(t, resp)

	// only the notifications/ namespace is silent
	resp = s.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list"}`), auth.Context{})
	require.NotNil(t, resp)
	assert.Equal(t, "null", string(resp.ID))
}

func TestResponse_ResultAndErrorExclusive(t *testing.T) {
	s, _ := newTestServer(t, false)

	for _, raw := range []string{
		callTool(tools.DadJokeTool),
		callTool(tools.MomJokeTool),
		callTool("nope"),
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`not json`,
	} {
		out := roundTrip(t, s, raw, auth.Context{})
		_, hasResult := out["result"]
		_, hasError := out["error"]
		assert.NotEqual(t, hasResult, hasError, raw)
		assert.Equal(t, "2.0", out["jsonrpc"])
	}
}

func TestServeStdio(t *testing.T) {
	s, _ := newTestServer(t, false)

	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"get_mom_joke","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"get_mom_joke","arguments":{},"_meta":{"authorization":{"token":"scoped"}}}}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/list"}`,
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, s.ServeStdio(context.Background(), strings.NewReader(in), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)

	var responses []map[string]interface{}
	for _, line := range lines {
		var r map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &r))
		responses = append(responses, r)
	}

	assert.Equal(t, float64(1), responses[0]["id"])
	assert.Contains(t, responses[0], "result")

	assert.Equal(t, float64(2), responses[1]["id"])
	errObj := responses[1]["error"].(map[string]interface{})
	assert.Equal(t, float64(CodeUnauthorized), errObj["code"])
	assert.Equal(t, testMetadataURL, errObj["data"].(map[string]interface{})["metadata_url"])

	assert.Equal(t, float64(3), responses[2]["id"])
	assert.Contains(t, responses[2], "result")

	assert.Equal(t, float64(4), responses[3]["id"])
}

func TestServeStdio_MalformedLineKeepsServing(t *testing.T) {
	s, _ := newTestServer(t, false)

	in := "{broken\n" + `{"jsonrpc":"2.0","id":2,"method":"ping"}` + "\n"

	var out bytes.Buffer
	require.NoError(t, s.ServeStdio(context.Background(), strings.NewReader(in), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"code":-32600`)
	assert.Contains(t, lines[1], `"id":2`)
}

func TestServeStdio_CancelledContext(t *testing.T) {
	s, _ := newTestServer(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	require.NoError(t, s.ServeStdio(ctx, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n"), &out))
	assert.Empty(t, out.String())
}
