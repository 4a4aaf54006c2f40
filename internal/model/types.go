package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Language is the printed language of a card.
type Language string

const (
	LangEN Language = "EN"
	LangIT Language = "IT"
	LangFR Language = "FR"
	LangDE Language = "DE"
	LangES Language = "ES"
	LangPT Language = "PT"
)

var supportedLanguages = []Language{LangEN, LangIT, LangFR, LangDE, LangES, LangPT}

// SupportedLanguages returns the languages we price, in display order.
func SupportedLanguages() []Language {
	out := make([]Language, len(supportedLanguages))
	copy(out, supportedLanguages)
	return out
}

// Supported reports whether l is one of the priced languages.
func (l Language) Supported() bool {
	for _, s := range supportedLanguages {
		if l == s {
			return true
		}
	}
	return false
}

var languageNames = map[string]Language{
	"english":    LangEN,
	"italian":    LangIT,
	"french":     LangFR,
	"german":     LangDE,
	"spanish":    LangES,
	"portuguese": LangPT,
	"dutch":      "NL",
	"japanese":   "JA",
}

// ParseLanguage maps an upstream language tag or name onto a Language.
// Unknown tags come back upper-cased with ok=false so callers can drop them.
func ParseLanguage(s string) (Language, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if l, found := languageNames[strings.ToLower(s)]; found {
		return l, l.Supported()
	}
	l := Language(strings.ToUpper(s))
	return l, l.Supported()
}

// Condition is the graded physical state of a card, NM best.
type Condition string

const (
	CondNM Condition = "NM"
	CondEX Condition = "EX"
	CondLP Condition = "LP"
	CondGD Condition = "GD"
	CondPL Condition = "PL"
	CondPO Condition = "PO"
)

// UnknownConditionRank sorts unrecognized conditions after every known one.
const UnknownConditionRank = 99

var conditionRanks = map[Condition]int{
	CondNM: 1,
	CondEX: 2,
	CondLP: 3,
	CondGD: 4,
	CondPL: 5,
	CondPO: 6,
}

// Rank returns the priority of the condition, 1 for Near Mint.
func (c Condition) Rank() int {
	if r, ok := conditionRanks[c]; ok {
		return r
	}
	return UnknownConditionRank
}

var conditionNames = map[string]Condition{
	"nm":           CondNM,
	"mt":           CondNM,
	"mint":         CondNM,
	"near mint":    CondNM,
	"ex":           CondEX,
	"excellent":    CondEX,
	"lp":           CondLP,
	"light played": CondLP,
	"gd":           CondGD,
	"good":         CondGD,
	"pl":           CondPL,
	"played":       CondPL,
	"po":           CondPO,
	"poor":         CondPO,
}

// ParseCondition maps an upstream condition label. Anything unrecognized is NM.
func ParseCondition(s string) Condition {
	if c, ok := conditionNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return c
	}
	return CondNM
}

// Source tags where a quote came from.
type Source string

const (
	SourcePokemonTCG Source = "pokemontcg"
	SourceTracker    Source = "tracker"
	SourceJustTCG    Source = "justtcg"
	SourceCardmarket Source = "cardmarket"
	SourceSynthetic  Source = "synthetic"
	SourceManual     Source = "manual"
)

// Currencies seen from providers. Amounts are never converted between them.
const (
	CurrencyEUR = "EUR"
	CurrencyUSD = "USD"

	// ReferenceCurrency is what synthetic and manual quotes are priced in.
	ReferenceCurrency = CurrencyEUR
)

// CardKey is enough to look a card up again.
type CardKey struct {
	Name       string `json:"name"`
	SetName    string `json:"setName,omitempty"`
	UpstreamID string `json:"upstreamId,omitempty"`
}

func (k CardKey) String() string {
	s := k.Name
	if k.SetName != "" {
		s += " (" + k.SetName + ")"
	}
	if k.UpstreamID != "" {
		s += " [" + k.UpstreamID + "]"
	}
	return s
}

// PriceQuote is one priced observation for a card in a language and condition.
// Treat it as immutable: copy, don't modify.
type PriceQuote struct {
	CardKey           CardKey         `json:"cardKey"`
	Language          Language        `json:"language"`
	Condition         Condition       `json:"condition"`
	MinPrice          decimal.Decimal `json:"minPrice"`
	AvgPrice          decimal.Decimal `json:"avgPrice"`
	TrendPrice        decimal.Decimal `json:"trendPrice"`
	Currency          string          `json:"currency"`
	AvailableQuantity int             `json:"availableQuantity"`
	Source            Source          `json:"source"`
	LastUpdated       time.Time       `json:"lastUpdated"`
}

// WithLanguage returns a copy of q priced for another language.
func (q PriceQuote) WithLanguage(l Language) PriceQuote {
	q.Language = l
	return q
}

// WithCardKey returns a copy of q attached to k.
func (q PriceQuote) WithCardKey(k CardKey) PriceQuote {
	q.CardKey = k
	return q
}

// Validate checks the enumerations and price signs. It does not enforce
// min <= avg <= trend; providers break that often enough.
func (q PriceQuote) Validate() error {
	if !q.Language.Supported() {
		return fmt.Errorf("unsupported language %q", q.Language)
	}
	if q.Condition.Rank() == UnknownConditionRank {
		return fmt.Errorf("unknown condition %q", q.Condition)
	}
	if q.MinPrice.IsNegative() || q.AvgPrice.IsNegative() || q.TrendPrice.IsNegative() {
		return fmt.Errorf("negative price")
	}
	if q.AvailableQuantity < 0 {
		return fmt.Errorf("negative quantity")
	}
	if q.Currency == "" {
		return fmt.Errorf("missing currency")
	}
	return nil
}

// Set is a card expansion.
type Set struct {
	ID   string
	Name string
}

// Card is the catalog record the pricing core reads from and writes prices back to.
type Card struct {
	ID         int64
	UpstreamID string
	Name       string
	SetID      string
	SetName    string
	Number     string
	Rarity     string
	Prices     []PriceQuote
	UpdatedAt  time.Time
}

// Key returns the lookup key for c.
func (c Card) Key() CardKey {
	return CardKey{Name: c.Name, SetName: c.SetName, UpstreamID: c.UpstreamID}
}
