package jokes

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
)

// Category identifies a joke collection
type Category string

const (
	Dad Category = "dad"
	Mom Category = "mom"
)

var (
	ErrEmptyCategory   = errors.New("joke category is empty")
	ErrUnknownCategory = errors.New("unknown joke category")
)

// DadJokes is the curated dad joke collection
var DadJokes = []string{
	"Why don't scientists trust atoms? Because they make up everything!",
	"I'm reading a book about anti-gravity. It's impossible to put down!",
	"Why did the scarecrow win an award? He was outstanding in his field!",
	"I used to hate facial hair, but then it grew on me.",
	"Why don't eggs tell jokes? They'd crack each other up!",
	"I'm afraid for the calendar. Its days are numbered.",
	"What do you call a fake noodle? An impasta!",
	"Why did the bicycle fall over? Because it was two-tired!",
	"I only know 25 letters of the alphabet. I don't know y.",
	"What did the ocean say to the beach? Nothing, it just waved.",
}

// MomJokes is the curated mom joke collection
var MomJokes = []string{
	"I brought you into this world, and I can take you out of it!",
	"Because I said so, that's why!",
	"If your friends jumped off a bridge, would you do it too?",
	"I'm not just talking to hear myself speak!",
	"Money doesn't grow on trees, you know!",
	"Don't make me turn this car around!",
	"You'll understand when you're older.",
	"I'm not your maid! Clean up after yourself!",
	"Close the door! Were you raised in a barn?",
	"If you can't say something nice, don't say anything at all.",
}

// Provider picks jokes uniformly at random from fixed per-category lists.
// It is safe for concurrent use.
type Provider struct {
	collections map[Category][]string

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Provider
type Option func(*Provider)

// WithSeed makes selection deterministic: two providers built with the same
// seed return the same sequence for the same sequence of calls.
func WithSeed(seed uint64) Option {
	return func(p *Provider) {
		p.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// WithCollection adds or replaces a category
func WithCollection(category Category, jokes []string) Option {
	return func(p *Provider) {
		p.collections[category] = jokes
	}
}

// NewProvider creates a provider with the dad and mom collections plus any
// collections given as options. Every collection must be non-empty.
func NewProvider(opts ...Option) (*Provider, error) {
	p := &Provider{
		collections: map[Category][]string{
			Dad: DadJokes,
			Mom: MomJokes,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	for category, list := range p.collections {
		if len(list) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptyCategory, category)
		}
		// Copy so callers cannot mutate the list after construction
		p.collections[category] = append([]string(nil), list...)
	}

	return p, nil
}

// Next returns a random joke from the given category
func (p *Provider) Next(category Category) (string, error) {
	list, ok := p.collections[category]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	p.mu.Lock()
	i := p.rng.IntN(len(list))
	p.mu.Unlock()

	return list[i], nil
}

// Contains reports whether joke belongs to the category
func (p *Provider) Contains(category Category, joke string) bool {
	for _, j := range p.collections[category] {
		if j == joke {
			return true
		}
	}
	return false
}
