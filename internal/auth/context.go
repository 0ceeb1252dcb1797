package auth

import "strings"

// Context carries the caller's credentials for a single inbound message.
// Scopes and Subject are filled in only after a successful authorization.
type Context struct {
	BearerToken string
	Scopes      []string
	Subject     string
}

// HasToken reports whether a bearer token was presented
func (c Context) HasToken() bool {
	return c.BearerToken != ""
}

// HasScope reports whether scope is among the validated scopes
func (c Context) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// FromAuthorizationHeader builds a Context from an HTTP Authorization header
// value. Anything other than a non-empty Bearer credential yields an empty
// Context.
func FromAuthorizationHeader(header string) Context {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return Context{}
	}
	return Context{BearerToken: strings.TrimSpace(token)}
}
