// Package selector picks representative quotes out of a card's price list.
package selector

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/guarzo/pkmprices/internal/model"
)

// SelectBest returns the best quote of a single (card, language) group:
// best condition first, then highest available quantity, then input order.
// It returns nil for an empty group and never reorders the caller's slice.
func SelectBest(quotes []model.PriceQuote) *model.PriceQuote {
	if len(quotes) == 0 {
		return nil
	}

	sorted := make([]model.PriceQuote, len(quotes))
	copy(sorted, quotes)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := sorted[i].Condition.Rank(), sorted[j].Condition.Rank()
		if ri != rj {
			return ri < rj
		}
		return quantity(sorted[i]) > quantity(sorted[j])
	})

	best := sorted[0]
	return &best
}

func quantity(q model.PriceQuote) int {
	if q.AvailableQuantity < 0 {
		return 0
	}
	return q.AvailableQuantity
}

// Group is the quotes of one language, in input order.
type Group struct {
	Language model.Language
	Quotes   []model.PriceQuote
}

// GroupByLanguage splits quotes per language, keeping first-seen language order.
func GroupByLanguage(quotes []model.PriceQuote) []Group {
	var groups []Group
	index := make(map[model.Language]int)
	for _, q := range quotes {
		i, ok := index[q.Language]
		if !ok {
			i = len(groups)
			index[q.Language] = i
			groups = append(groups, Group{Language: q.Language})
		}
		groups[i].Quotes = append(groups[i].Quotes, q)
	}
	return groups
}

// BestPerLanguage returns one quote per language present, ordered as
// model.SupportedLanguages. Unsupported languages are left out.
func BestPerLanguage(quotes []model.PriceQuote) []model.PriceQuote {
	groups := make(map[model.Language][]model.PriceQuote)
	for _, g := range GroupByLanguage(quotes) {
		groups[g.Language] = g.Quotes
	}

	var out []model.PriceQuote
	for _, lang := range model.SupportedLanguages() {
		if best := SelectBest(groups[lang]); best != nil {
			out = append(out, *best)
		}
	}
	return out
}

// MinPrice is the list-view summary: the lowest minPrice among quotes in the
// currency of the first quote. Other currencies are ignored, not converted.
func MinPrice(quotes []model.PriceQuote) (decimal.Decimal, string, bool) {
	if len(quotes) == 0 {
		return decimal.Zero, "", false
	}
	currency := quotes[0].Currency
	min := quotes[0].MinPrice
	for _, q := range quotes[1:] {
		if q.Currency == currency && q.MinPrice.LessThan(min) {
			min = q.MinPrice
		}
	}
	return min, currency, true
}

// Currencies lists the distinct currencies in quotes, in first-seen order.
func Currencies(quotes []model.PriceQuote) []string {
	var out []string
	seen := make(map[string]bool)
	for _, q := range quotes {
		if !seen[q.Currency] {
			seen[q.Currency] = true
			out = append(out, q.Currency)
		}
	}
	return out
}
