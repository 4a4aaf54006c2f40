// Package synthetic fabricates plausible per-language, per-condition prices
// for cards no provider has data for. Every quote it emits is tagged
// model.SourceSynthetic.
package synthetic

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guarzo/pkmprices/internal/clock"
	"github.com/guarzo/pkmprices/internal/model"
)

// Band is a uniform price range [Min, Max) in the reference currency.
type Band struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (b Band) draw(r *rand.Rand) float64 {
	return b.Min + r.Float64()*(b.Max-b.Min)
}

// Bands are the base price ranges picked by name heuristics.
type Bands struct {
	High   Band `yaml:"high"`
	Medium Band `yaml:"medium"`
	Low    Band `yaml:"low"`
}

// DefaultBands returns the stock ranges.
func DefaultBands() Bands {
	return Bands{
		High:   Band{Min: 20, Max: 70},
		Medium: Band{Min: 10, Max: 40},
		Low:    Band{Min: 0.5, Max: 10.5},
	}
}

var (
	iconicTokens  = []string{"charizard", "pikachu", "mewtwo", "mew"}
	rarityTokens  = []string{"ex", "gx", "vmax"}
	vintageTokens = []string{"base", "jungle", "fossil"}
)

// VintageMultiplier applies to sets matching a vintage fragment.
const VintageMultiplier = 3.0

var languageMultipliers = map[model.Language]float64{
	model.LangIT: 1.2,
	model.LangDE: 0.9,
	model.LangFR: 1.1,
	model.LangES: 0.8,
}

// Conditions lists the conditions a synthetic quote is produced for, with
// their multiplier on the language-adjusted base.
var Conditions = []struct {
	Condition  model.Condition
	Multiplier float64
}{
	{model.CondNM, 1.0},
	{model.CondEX, 0.85},
	{model.CondLP, 0.7},
	{model.CondGD, 0.5},
}

const maxQuantity = 20

// Generator produces synthetic quotes. Safe for concurrent use.
type Generator struct {
	bands Bands
	clock clock.Clock

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Generator.
type Option func(*Generator)

// WithRand injects the random source, e.g. rand.New(rand.NewSource(42)) in tests.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.rng = r }
}

// WithBands overrides the base price ranges.
func WithBands(b Bands) Option {
	return func(g *Generator) { g.bands = b }
}

// WithClock overrides the timestamp source.
func WithClock(c clock.Clock) Option {
	return func(g *Generator) { g.clock = c }
}

// New creates a Generator seeded from the wall clock unless WithRand is given.
func New(opts ...Option) *Generator {
	g := &Generator{
		bands: DefaultBands(),
		clock: clock.Real{},
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return g
}

// Generate returns one quote per supported language and condition. It never
// returns an empty slice.
func (g *Generator) Generate(cardName, setName string) []model.PriceQuote {
	g.mu.Lock()
	defer g.mu.Unlock()

	base := g.bandFor(cardName).draw(g.rng)
	if IsVintage(setName) {
		base *= VintageMultiplier
	}

	key := model.CardKey{Name: cardName, SetName: setName}
	now := g.clock.Now()
	langs := model.SupportedLanguages()
	quotes := make([]model.PriceQuote, 0, len(langs)*len(Conditions))

	for _, lang := range langs {
		adjusted := base * LanguageMultiplier(lang)
		for _, c := range Conditions {
			final := decimal.NewFromFloat(adjusted * c.Multiplier)
			quotes = append(quotes, model.PriceQuote{
				CardKey:           key,
				Language:          lang,
				Condition:         c.Condition,
				MinPrice:          final.Mul(decimal.NewFromFloat(0.8)).Round(2),
				AvgPrice:          final.Round(2),
				TrendPrice:        final.Mul(decimal.NewFromFloat(1.1)).Round(2),
				Currency:          model.ReferenceCurrency,
				AvailableQuantity: g.rng.Intn(maxQuantity) + 1,
				Source:            model.SourceSynthetic,
				LastUpdated:       now,
			})
		}
	}
	return quotes
}

func (g *Generator) bandFor(cardName string) Band {
	switch {
	case containsAny(cardName, iconicTokens):
		return g.bands.High
	case containsAny(cardName, rarityTokens):
		return g.bands.Medium
	default:
		return g.bands.Low
	}
}

// LanguageMultiplier returns the price factor for lang, 1.0 when none is set.
func LanguageMultiplier(lang model.Language) float64 {
	if m, ok := languageMultipliers[lang]; ok {
		return m
	}
	return 1.0
}

// IsVintage reports whether setName looks like one of the early sets.
func IsVintage(setName string) bool {
	return setName != "" && containsAny(setName, vintageTokens)
}

func containsAny(s string, tokens []string) bool {
	s = strings.ToLower(s)
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
