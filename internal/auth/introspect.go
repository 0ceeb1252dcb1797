package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrIntrospection covers transport, status and decoding failures
	ErrIntrospection = errors.New("token introspection failed")
	// ErrTokenInactive is returned for expired, revoked or unknown tokens
	ErrTokenInactive = errors.New("token is not active")
)

// DefaultIntrospectionTimeout bounds an introspection round trip when the
// config leaves it unset
const DefaultIntrospectionTimeout = 5 * time.Second

// Introspection is what the authorization server reports about a token
type Introspection struct {
	Active   bool   `json:"active"`
	Scope    string `json:"scope"`
	Subject  string `json:"sub,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Username string `json:"username,omitempty"`
	Exp      int64  `json:"exp,omitempty"`
}

// Scopes splits the space-delimited scope string
func (i *Introspection) Scopes() []string {
	return strings.Fields(i.Scope)
}

// Introspector validates a bearer token with an authorization authority.
// Implementations return an error for anything other than an active token.
type Introspector interface {
	Introspect(ctx context.Context, token string) (*Introspection, error)
}

// IntrospectorConfig configures a KeycloakIntrospector
type IntrospectorConfig struct {
	URL          string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// KeycloakIntrospector calls an RFC 7662 introspection endpoint using client
// credentials
type KeycloakIntrospector struct {
	config     IntrospectorConfig
	httpClient *http.Client
}

// NewKeycloakIntrospector creates an introspection client
func NewKeycloakIntrospector(cfg IntrospectorConfig) *KeycloakIntrospector {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultIntrospectionTimeout
	}
	return &KeycloakIntrospector{
		config: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Introspect posts the token to the introspection endpoint
func (k *KeycloakIntrospector) Introspect(ctx context.Context, token string) (*Introspection, error) {
	log.Debug().
		Str("introspection_url", k.config.URL).
		Str("client_id", k.config.ClientID).
		Int("token_length", len(token)).
		Msg("Preparing token introspection request")

	data := url.Values{}
	data.Set("token", token)
	data.Set("token_type_hint", "access_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.config.URL, bytes.NewBufferString(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrIntrospection, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(k.config.ClientID, k.config.ClientSecret)

	resp, err := k.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("Introspection request failed")
		return nil, fmt.Errorf("%w: %v", ErrIntrospection, err)
	}
	defer resp.Body.Close()

	log.Debug().Int("status_code", resp.StatusCode).Msg("Received introspection response")

	if resp.StatusCode != http.StatusOK {
		log.Error().
			Int("status_code", resp.StatusCode).
			Str("status", resp.Status).
			Msg("Introspection request failed with non-OK status")
		return nil, fmt.Errorf("%w: status %d", ErrIntrospection, resp.StatusCode)
	}

	var info Introspection
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		log.Error().Err(err).Msg("Failed to decode introspection response")
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrIntrospection, err)
	}

	if !info.Active {
		return nil, ErrTokenInactive
	}

	return &info, nil
}
