// Package pricing resolves card prices: cache first, then providers in
// priority order, then the synthetic generator.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/guarzo/pkmprices/internal/cache"
	"github.com/guarzo/pkmprices/internal/clock"
	"github.com/guarzo/pkmprices/internal/model"
	"github.com/guarzo/pkmprices/internal/providers"
	"github.com/guarzo/pkmprices/internal/selector"
	"github.com/guarzo/pkmprices/internal/synthetic"
	"github.com/guarzo/pkmprices/internal/upstream"
)

// ErrInvalidRequest is returned for requests that can never be priced.
var ErrInvalidRequest = errors.New("invalid price request")

// DefaultProviderTimeout bounds a single provider attempt.
const DefaultProviderTimeout = 8 * time.Second

// Mode selects how many quotes per language Resolve returns.
type Mode string

const (
	// ModeBest returns one representative quote per language.
	ModeBest Mode = "best"
	// ModeAll returns every condition the winning source priced.
	ModeAll Mode = "all"
)

// ParseMode accepts "best", "all" or empty (best).
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeBest:
		return ModeBest, true
	case ModeAll:
		return ModeAll, true
	}
	return "", false
}

// Generator produces fallback quotes for every supported language and condition.
type Generator interface {
	Generate(cardName, setName string) []model.PriceQuote
}

// RetryConfig controls retries of transient provider failures.
type RetryConfig struct {
	MaxTries        uint          `yaml:"max_tries"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// BatchConfig controls BatchResolve chunking. A zero Delay means
// DefaultBatchDelay; a negative one means no pause between chunks.
type BatchConfig struct {
	Size        int
	Delay       time.Duration
	Concurrency int
}

// Options wires a Service. Zero values get defaults.
type Options struct {
	Providers       []providers.Provider
	Cache           *cache.PriceCache
	Generator       Generator
	Clock           clock.Clock
	Retry           RetryConfig
	ProviderTimeout time.Duration
	Batch           BatchConfig

	// Sleep waits between batch chunks; it must return early when ctx ends.
	Sleep func(ctx context.Context, d time.Duration) error
}

// ResolveRequest names the card to price. SetName, Language and UpstreamID
// are optional; UpstreamID lets providers look the card up directly.
type ResolveRequest struct {
	Name       string
	SetName    string
	UpstreamID string
	Language   string
	Mode       Mode
}

// Service is the price resolution orchestrator. It is safe for concurrent use.
type Service struct {
	providers []providers.Provider
	cache     *cache.PriceCache
	generator Generator
	clock     clock.Clock
	retry     RetryConfig
	timeout   time.Duration
	batch     BatchConfig
	sleep     func(ctx context.Context, d time.Duration) error
	metrics   *metrics
}

// New builds a Service. Providers that report unavailable are dropped here
// once, with a log line, instead of on every request.
func New(opts Options) *Service {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	c := opts.Cache
	if c == nil {
		c = cache.New(cache.DefaultTTL, clk)
	}
	gen := opts.Generator
	if gen == nil {
		gen = synthetic.New(synthetic.WithClock(clk))
	}
	timeout := opts.ProviderTimeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var active []providers.Provider
	for _, p := range opts.Providers {
		if !p.Available() {
			log.Printf("Pricing: provider %s not configured (missing credentials or base URL), skipping", p.Name())
			continue
		}
		active = append(active, p)
	}

	return &Service{
		providers: active,
		cache:     c,
		generator: gen,
		clock:     clk,
		retry:     withRetryDefaults(opts.Retry),
		timeout:   timeout,
		batch:     withBatchDefaults(opts.Batch),
		sleep:     sleep,
		metrics:   newMetrics(),
	}
}

func withRetryDefaults(r RetryConfig) RetryConfig {
	if r.MaxTries == 0 {
		r.MaxTries = 2
	}
	if r.InitialInterval <= 0 {
		r.InitialInterval = 500 * time.Millisecond
	}
	if r.MaxInterval <= 0 {
		r.MaxInterval = 5 * time.Second
	}
	return r
}

// Providers returns the names of the active providers in priority order.
func (s *Service) Providers() []model.Source {
	out := make([]model.Source, len(s.providers))
	for i, p := range s.providers {
		out[i] = p.Name()
	}
	return out
}

// Resolve prices a card. With a Language only that language is returned and
// a language the winning source does not cover yields an empty list. The
// error is non-nil only for invalid requests.
func (s *Service) Resolve(ctx context.Context, req ResolveRequest) ([]model.PriceQuote, error) {
	key, langs, mode, err := parseRequest(req)
	if err != nil {
		return nil, err
	}

	groups := s.groups(ctx, key, langs)

	var all []model.PriceQuote
	for _, lang := range langs {
		all = append(all, groups[lang]...)
	}
	if mode == ModeAll {
		return all, nil
	}
	return selector.BestPerLanguage(all), nil
}

// ResolveByLanguage returns the best quote for every supported language that has one.
func (s *Service) ResolveByLanguage(ctx context.Context, name, setName string) (map[model.Language]model.PriceQuote, error) {
	quotes, err := s.Resolve(ctx, ResolveRequest{Name: name, SetName: setName, Mode: ModeBest})
	if err != nil {
		return nil, err
	}
	out := make(map[model.Language]model.PriceQuote, len(quotes))
	for _, q := range quotes {
		out[q.Language] = q
	}
	return out, nil
}

// Validate reports the error Resolve would return for req, without resolving.
func (req ResolveRequest) Validate() error {
	_, _, _, err := parseRequest(req)
	return err
}

func parseRequest(req ResolveRequest) (model.CardKey, []model.Language, Mode, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return model.CardKey{}, nil, "", fmt.Errorf("%w: card name is required", ErrInvalidRequest)
	}
	key := model.CardKey{
		Name:       name,
		SetName:    strings.TrimSpace(req.SetName),
		UpstreamID: strings.TrimSpace(req.UpstreamID),
	}

	langs := model.SupportedLanguages()
	if strings.TrimSpace(req.Language) != "" {
		lang, ok := model.ParseLanguage(req.Language)
		if !ok {
			return model.CardKey{}, nil, "", fmt.Errorf("%w: unsupported language %q", ErrInvalidRequest, req.Language)
		}
		langs = []model.Language{lang}
	}

	mode, ok := ParseMode(string(req.Mode))
	if !ok {
		return model.CardKey{}, nil, "", fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, req.Mode)
	}
	return key, langs, mode, nil
}

// groups returns the full quote group for each requested language, going to
// the network only when at least one bucket is missing or stale.
func (s *Service) groups(ctx context.Context, key model.CardKey, langs []model.Language) map[model.Language][]model.PriceQuote {
	out := make(map[model.Language][]model.PriceQuote, len(langs))
	var missing []model.Language
	for _, lang := range langs {
		if e, ok := s.cache.Get(key, lang); ok {
			s.metrics.cacheHit(ctx, lang)
			out[lang] = e.Quotes
			continue
		}
		s.metrics.cacheMiss(ctx, lang)
		missing = append(missing, lang)
	}
	if len(missing) == 0 {
		return out
	}

	quotes, cacheable := s.fetch(ctx, key)
	fetched := selector.GroupByLanguage(quotes)
	byLang := make(map[model.Language][]model.PriceQuote, len(fetched))
	for _, g := range fetched {
		byLang[g.Language] = g.Quotes
	}

	if !cacheable {
		for _, lang := range missing {
			out[lang] = byLang[lang]
		}
		return out
	}

	// Requested buckets are written even when empty so a language the source
	// lacks is not refetched until the entry expires.
	for _, lang := range missing {
		out[lang] = byLang[lang]
		s.cache.Put(key, lang, byLang[lang])
		delete(byLang, lang)
	}
	// Other languages the source returned fill the cache without replacing fresh entries.
	for lang, quotes := range byLang {
		if _, fresh := s.cache.Get(key, lang); !fresh {
			s.cache.Put(key, lang, quotes)
		}
	}
	return out
}

// fetch walks the providers in order and returns the first non-empty result,
// or synthetic quotes when every provider comes back empty or fails.
// The flag is false when ctx ended before every provider could answer; those
// synthetic quotes are served once but never stored.
func (s *Service) fetch(ctx context.Context, key model.CardKey) ([]model.PriceQuote, bool) {
	for _, p := range s.providers {
		if ctx.Err() != nil {
			log.Printf("Pricing: request for %s cancelled before %s, using synthetic prices", key, p.Name())
			break
		}

		quotes, err := s.call(ctx, p, key)
		if err != nil {
			s.logFailure(p.Name(), key, err)
			s.metrics.providerCall(ctx, p.Name(), upstream.KindOf(err).String())
			continue
		}

		valid := usable(p.Name(), key, quotes)
		if len(valid) == 0 {
			s.metrics.providerCall(ctx, p.Name(), "empty")
			continue
		}
		s.metrics.providerCall(ctx, p.Name(), "ok")

		if cur := selector.Currencies(valid); len(cur) > 1 {
			log.Printf("Pricing: WARN %s returned mixed currencies %v for %s; amounts kept unconverted", p.Name(), cur, key)
		}
		return valid, true
	}

	cacheable := ctx.Err() == nil
	s.metrics.syntheticFallback(ctx)
	generated := s.generator.Generate(key.Name, key.SetName)
	if len(generated) == 0 {
		log.Printf("Pricing: ERROR invariant violated: synthetic generator returned no quotes for %s", key)
		return nil, cacheable
	}
	out := make([]model.PriceQuote, len(generated))
	for i, q := range generated {
		out[i] = q.WithCardKey(key)
	}
	return out, cacheable
}

// call runs one provider with a per-attempt timeout, retrying only transient errors.
func (s *Service) call(ctx context.Context, p providers.Provider, key model.CardKey) ([]model.PriceQuote, error) {
	op := func() ([]model.PriceQuote, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		quotes, err := p.FetchQuotes(attemptCtx, key)
		if err != nil && !upstream.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return quotes, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retry.InitialInterval
	b.MaxInterval = s.retry.MaxInterval

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.retry.MaxTries),
	)
}

func (s *Service) logFailure(provider model.Source, key model.CardKey, err error) {
	switch upstream.KindOf(err) {
	case upstream.KindAuth:
		log.Printf("Pricing: AUTH provider %s rejected credentials for %s, check its API key: %v", provider, key, err)
	case upstream.KindMalformed:
		log.Printf("Pricing: WARN provider %s sent an unreadable response for %s: %v", provider, key, err)
	default:
		log.Printf("Pricing: WARN provider %s failed for %s: %v", provider, key, err)
	}
}

// usable drops quotes that fail validation; the rest of the provider's quotes survive.
func usable(provider model.Source, key model.CardKey, quotes []model.PriceQuote) []model.PriceQuote {
	valid := make([]model.PriceQuote, 0, len(quotes))
	for _, q := range quotes {
		if err := q.Validate(); err != nil {
			log.Printf("Pricing: dropping %s quote for %s: %v", provider, key, err)
			continue
		}
		valid = append(valid, q)
	}
	return valid
}

// CacheStats reports the cache population.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// ClearExpiredCache removes stale entries and returns how many went.
func (s *Service) ClearExpiredCache() int {
	n := s.cache.SweepExpired()
	if n > 0 {
		log.Printf("Pricing: swept %d expired cache entries", n)
	}
	return n
}

// Invalidate drops every cached language for a card.
func (s *Service) Invalidate(name, setName string) int {
	return s.cache.InvalidateCard(model.CardKey{
		Name:    strings.TrimSpace(name),
		SetName: strings.TrimSpace(setName),
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
