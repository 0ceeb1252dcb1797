package auth

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iafnetworkspa/joke-mcp/internal/tools"
)

// Outcome is the kind of authorization decision
type Outcome int

const (
	Allowed Outcome = iota
	Challenged
	Denied
)

func (o Outcome) String() string {
	switch o {
	case Allowed:
		return "allowed"
	case Challenged:
		return "challenged"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// DenyReason explains a Denied decision using RFC 6750 error codes
type DenyReason string

const (
	ReasonInvalidToken      DenyReason = "invalid_token"
	ReasonInsufficientScope DenyReason = "insufficient_scope"
)

// Decision is the result of authorizing one tool call. MetadataURL and
// RequiredScope are set for Challenged and Denied, Reason only for Denied and
// Caller only for Allowed.
type Decision struct {
	Outcome       Outcome
	MetadataURL   string
	RequiredScope string
	Reason        DenyReason
	Caller        Context
}

// bypassSubject is reported as the caller when the development bypass is on
const bypassSubject = "dev-user"

// GateConfig configures a Gate
type GateConfig struct {
	// MetadataURL is the protected resource metadata document clients are
	// pointed to when challenged.
	MetadataURL string
	// AllowBypass allows every call without looking at tokens. Development only.
	AllowBypass bool
	// Timeout bounds a single introspection call. Zero means no extra bound
	// beyond the introspector's own.
	Timeout time.Duration
}

// Gate decides whether a caller may invoke a tool. It keeps no state between
// calls and makes at most one introspection attempt per call.
type Gate struct {
	config       GateConfig
	introspector Introspector
}

// NewGate creates a gate. A nil introspector denies every token.
func NewGate(cfg GateConfig, introspector Introspector) *Gate {
	if cfg.AllowBypass {
		log.Warn().Msg("Auth bypass enabled - protected tools are open to every caller")
	}
	return &Gate{config: cfg, introspector: introspector}
}

// Authorize decides whether ac may call the tool described by d
func (g *Gate) Authorize(ctx context.Context, d tools.Descriptor, ac Context) Decision {
	if !d.Protected {
		return Decision{Outcome: Allowed, Caller: ac}
	}

	if g.config.AllowBypass {
		log.Warn().Str("tool", d.Name).Msg("Auth bypass enabled - allowing access")
		return Decision{
			Outcome: Allowed,
			Caller: Context{
				BearerToken: ac.BearerToken,
				Scopes:      []string{d.Scope},
				Subject:     bypassSubject,
			},
		}
	}

	if !ac.HasToken() {
		log.Debug().Str("tool", d.Name).Msg("No bearer token for protected tool")
		return Decision{
			Outcome:       Challenged,
			MetadataURL:   g.config.MetadataURL,
			RequiredScope: d.Scope,
		}
	}

	info, err := g.introspect(ctx, ac.BearerToken)
	if err != nil || info == nil || !info.Active {
		log.Warn().Err(err).Str("tool", d.Name).Int("token_length", len(ac.BearerToken)).Msg("Token validation failed")
		return g.deny(d, ReasonInvalidToken)
	}

	scopes := info.Scopes()
	caller := Context{BearerToken: ac.BearerToken, Scopes: scopes, Subject: info.Subject}
	if !caller.HasScope(d.Scope) {
		log.Warn().
			Str("tool", d.Name).
			Str("required_scope", d.Scope).
			Strs("scopes", scopes).
			Msg("Token missing required scope")
		return g.deny(d, ReasonInsufficientScope)
	}

	log.Info().Str("tool", d.Name).Str("subject", info.Subject).Msg("Token validated")
	return Decision{Outcome: Allowed, Caller: caller}
}

func (g *Gate) introspect(ctx context.Context, token string) (*Introspection, error) {
	if g.introspector == nil {
		return nil, ErrIntrospection
	}
	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}
	return g.introspector.Introspect(ctx, token)
}

func (g *Gate) deny(d tools.Descriptor, reason DenyReason) Decision {
	return Decision{
		Outcome:       Denied,
		MetadataURL:   g.config.MetadataURL,
		RequiredScope: d.Scope,
		Reason:        reason,
	}
}
