package tools

import (
	"context"

	"github.com/iafnetworkspa/joke-mcp/internal/jokes"
)

const (
	DadJokeTool = "get_dad_joke"
	MomJokeTool = "get_mom_joke"

	// MomJokeScope is the scope a token must carry to call get_mom_joke
	MomJokeScope = "tools:mom_jokes"
)

// RegisterJokes registers the dad joke tool (public) and the mom joke tool
// (protected by scope).
func RegisterJokes(r *Registry, p *jokes.Provider, scope string) error {
	if scope == "" {
		scope = MomJokeScope
	}

	if err := r.Register(Descriptor{
		Name: DadJokeTool,
		Description: "Get a random dad joke. Dad jokes are known for being cheesy, " +
			"corny, and often involving puns or wordplay. Perfect for groans and eye rolls!",
		InputSchema: ObjectSchema(),
		Handler:     jokeHandler(p, jokes.Dad),
	}); err != nil {
		return err
	}

	return r.Register(Descriptor{
		Name: MomJokeTool,
		Description: "Get a random mom joke. These are classic sayings and phrases " +
			"that mothers often use. Nostalgic and relatable! Requires authorization.",
		InputSchema: ObjectSchema(),
		Protected:   true,
		Scope:       scope,
		Handler:     jokeHandler(p, jokes.Mom),
	})
}

func jokeHandler(p *jokes.Provider, category jokes.Category) Handler {
	return HandlerFunc(func(_ context.Context, _ map[string]interface{}) (string, error) {
		return p.Next(category)
	})
}
