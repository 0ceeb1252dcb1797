package tools

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrDuplicateTool = errors.New("tool already registered")
	ErrUnknownTool   = errors.New("unknown tool")
	ErrInvalidTool   = errors.New("invalid tool descriptor")
)

// Handler executes a tool call and returns its text output
type Handler interface {
	Call(ctx context.Context, args map[string]interface{}) (string, error)
}

// HandlerFunc adapts a plain function to Handler
type HandlerFunc func(ctx context.Context, args map[string]interface{}) (string, error)

// Call implements Handler
func (f HandlerFunc) Call(ctx context.Context, args map[string]interface{}) (string, error) {
	return f(ctx, args)
}

// Schema is the JSON-schema-like description of a tool's arguments
type Schema struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required"`
}

// ObjectSchema returns an object schema with no properties
func ObjectSchema() Schema {
	return Schema{
		Type:       "object",
		Properties: map[string]interface{}{},
		Required:   []string{},
	}
}

// Descriptor describes a registered tool. Protected tools require a bearer
// token carrying Scope.
type Descriptor struct {
	Name        string
	Description string
	InputSchema Schema
	Protected   bool
	Scope       string
	Handler     Handler
}

// Registry maps tool names to descriptors in registration order.
// Register is meant for startup; once built the registry is only read and
// may be shared across goroutines without locking.
type Registry struct {
	tools []Descriptor
	index map[string]int
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds a descriptor
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTool)
	}
	if d.Handler == nil {
		return fmt.Errorf("%w: %s has no handler", ErrInvalidTool, d.Name)
	}
	if d.Protected && d.Scope == "" {
		return fmt.Errorf("%w: protected tool %s has no scope", ErrInvalidTool, d.Name)
	}
	if _, exists := r.index[d.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, d.Name)
	}
	if d.InputSchema.Type == "" {
		d.InputSchema = ObjectSchema()
	}

	r.index[d.Name] = len(r.tools)
	r.tools = append(r.tools, d)
	return nil
}

// List returns the descriptors in registration order
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, len(r.tools))
	copy(out, r.tools)
	return out
}

// Resolve looks up a descriptor by name
func (r *Registry) Resolve(name string) (Descriptor, error) {
	i, ok := r.index[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return r.tools[i], nil
}

// Scopes returns the distinct scopes required by protected tools, in
// registration order.
func (r *Registry) Scopes() []string {
	seen := make(map[string]bool)
	scopes := []string{}
	for _, d := range r.tools {
		if !d.Protected || seen[d.Scope] {
			continue
		}
		seen[d.Scope] = true
		scopes = append(scopes, d.Scope)
	}
	return scopes
}
