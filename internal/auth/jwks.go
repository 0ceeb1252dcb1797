package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// ErrNoMatchingKey is returned when the token's kid is not in the realm JWKS
var ErrNoMatchingKey = errors.New("no matching key in JWKS")

// maxJWKSBytes caps the key set document
const maxJWKSBytes = 1 << 20

// JWKSVerifier validates RS256 access tokens locally against the realm's
// published signing keys. A token is accepted only if its signature, issuer
// and expiry check out. The key set is fetched on every call.
type JWKSVerifier struct {
	jwksURL    string
	issuer     string
	httpClient *http.Client
}

// NewJWKSVerifier creates a verifier for tokens issued by issuer
func NewJWKSVerifier(jwksURL, issuer string, timeout time.Duration) *JWKSVerifier {
	if timeout == 0 {
		timeout = DefaultIntrospectionTimeout
	}
	return &JWKSVerifier{
		jwksURL:    jwksURL,
		issuer:     issuer,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Introspect implements Introspector
func (v *JWKSVerifier) Introspect(ctx context.Context, token string) (*Introspection, error) {
	keys, err := v.fetchKeys(ctx)
	if err != nil {
		return nil, err
	}

	parsed, err := jwt.Parse(token, keys.Keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %v", ErrTokenInactive, err)
		case errors.Is(err, jwkset.ErrKeyNotFound):
			return nil, fmt.Errorf("%w: %w: %v", ErrIntrospection, ErrNoMatchingKey, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrIntrospection, err)
		}
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrIntrospection
	}

	scope, _ := claims["scope"].(string)
	sub, _ := claims.GetSubject()

	return &Introspection{Active: true, Scope: scope, Subject: sub}, nil
}

func (v *JWKSVerifier) fetchKeys(ctx context.Context) (keyfunc.Keyfunc, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create JWKS request: %v", ErrIntrospection, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("jwks_url", v.jwksURL).Msg("Error fetching JWKS")
		return nil, fmt.Errorf("%w: %v", ErrIntrospection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Error().Int("status_code", resp.StatusCode).Msg("JWKS request failed with non-OK status")
		return nil, fmt.Errorf("%w: JWKS status %d", ErrIntrospection, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read JWKS: %v", ErrIntrospection, err)
	}

	keys, err := keyfunc.NewJWKSetJSON(body)
	if err != nil {
		log.Error().Err(err).Msg("Failed to parse JWKS")
		return nil, fmt.Errorf("%w: failed to parse JWKS: %v", ErrIntrospection, err)
	}
	return keys, nil
}
