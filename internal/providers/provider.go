package providers

import (
	"context"
	"log"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/guarzo/pkmprices/internal/clock"
	"github.com/guarzo/pkmprices/internal/model"
	"github.com/guarzo/pkmprices/internal/upstream"
)

// Provider is one upstream pricing source.
//
// FetchQuotes returns an empty slice and a nil error when the source simply has
// no data for the card. Errors are reserved for transport, auth and malformed
// responses and are always *upstream.Error values. Adapters never retry.
type Provider interface {
	// Name identifies the provider; quotes it returns carry it as Source.
	Name() model.Source

	// Available returns true if the provider is configured and worth calling.
	Available() bool

	// FetchQuotes retrieves every quote the source has for a card.
	FetchQuotes(ctx context.Context, card model.CardKey) ([]model.PriceQuote, error)
}

// Config holds configuration for the pricing providers.
type Config struct {
	PokemonTCGAPIKey string `yaml:"pokemontcg_api_key"`
	PokemonTCGURL    string `yaml:"pokemontcg_url"`

	PriceTrackerAPIKey string `yaml:"tracker_api_key"`
	PriceTrackerURL    string `yaml:"tracker_url"`

	JustTCGAPIKey string `yaml:"justtcg_api_key"`
	JustTCGURL    string `yaml:"justtcg_url"`

	// CardmarketURL enables the marketplace page adapter when set.
	CardmarketURL string `yaml:"cardmarket_url"`

	RequestTimeout  time.Duration `yaml:"request_timeout"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`

	// Order lists provider names by priority. Unknown names are skipped.
	Order []string `yaml:"order"`
}

// DefaultOrder is the priority used when Config.Order is empty.
var DefaultOrder = []string{
	string(model.SourcePokemonTCG),
	string(model.SourceTracker),
	string(model.SourceJustTCG),
	string(model.SourceCardmarket),
}

const defaultRateLimitPerMin = 60

// New builds the configured providers in priority order.
func New(cfg Config, client *upstream.Client, clk clock.Clock) []Provider {
	if client == nil {
		client = upstream.NewClient(cfg.RequestTimeout)
	}
	if clk == nil {
		clk = clock.Real{}
	}
	order := cfg.Order
	if len(order) == 0 {
		order = DefaultOrder
	}

	var out []Provider
	for _, name := range order {
		switch model.Source(strings.ToLower(strings.TrimSpace(name))) {
		case model.SourcePokemonTCG:
			out = append(out, NewPokeTCGIO(cfg, client, clk))
		case model.SourceTracker:
			out = append(out, NewPriceTracker(cfg, client, clk))
		case model.SourceJustTCG:
			out = append(out, NewJustTCG(cfg, client, clk))
		case model.SourceCardmarket:
			out = append(out, NewCardmarket(cfg, client, clk))
		default:
			log.Printf("Providers: unknown provider %q in order, skipping", name)
		}
	}
	return out
}

// NewLimiter spreads perMinute requests evenly with a small burst.
func NewLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		perMinute = defaultRateLimitPerMin
	}
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
}

func wait(ctx context.Context, l *rate.Limiter, provider model.Source) error {
	if l == nil {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		return upstream.NewError(string(provider), upstream.KindUnavailable, err)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
