package auth

import (
	"fmt"
	"strings"
)

// ProtectedResourceMetadata is the RFC 9728 discovery document
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	ScopesSupported        []string `json:"scopes_supported"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
	ResourceName           string   `json:"resource_name"`
	ResourceDescription    string   `json:"resource_description,omitempty"`
}

// NewMetadata builds the discovery document. Bearer tokens are accepted only
// in the Authorization header.
func NewMetadata(resource, authorizationServer string, scopes []string) ProtectedResourceMetadata {
	if scopes == nil {
		scopes = []string{}
	}
	return ProtectedResourceMetadata{
		Resource:               resource,
		AuthorizationServers:   []string{authorizationServer},
		ScopesSupported:        scopes,
		BearerMethodsSupported: []string{"header"},
		ResourceName:           "MCP Joke Server",
		ResourceDescription:    "MCP server providing joke generation tools with selective authorization",
	}
}

// Challenge is a Bearer WWW-Authenticate challenge
type Challenge struct {
	ResourceMetadataURL string
	Error               string
	ErrorDescription    string
	Scope               string
}

// ChallengeFor builds the challenge matching a non-allowed decision. A
// missing token gets only the metadata pointer; denied tokens also carry the
// RFC 6750 error code.
func ChallengeFor(d Decision) Challenge {
	c := Challenge{ResourceMetadataURL: d.MetadataURL}
	if d.Outcome != Denied {
		return c
	}
	c.Error = string(d.Reason)
	switch d.Reason {
	case ReasonInsufficientScope:
		c.ErrorDescription = "The access token lacks the required scope"
		c.Scope = d.RequiredScope
	default:
		c.ErrorDescription = "The access token is invalid or expired"
	}
	return c
}

// String renders the header value, e.g.
//
//	Bearer resource_metadata="https://example.com/.well-known/oauth-protected-resource"
func (c Challenge) String() string {
	var b strings.Builder
	b.WriteString("Bearer")

	params := []struct{ key, value string }{
		{"resource_metadata", c.ResourceMetadataURL},
		{"error", c.Error},
		{"error_description", c.ErrorDescription},
		{"scope", c.Scope},
	}
	sep := " "
	for _, p := range params {
		if p.value == "" {
			continue
		}
		fmt.Fprintf(&b, `%s%s="%s"`, sep, p.key, strings.ReplaceAll(p.value, `"`, `\"`))
		sep = ", "
	}
	return b.String()
}
