// Package normalize maps provider payloads onto model.PriceQuote.
package normalize

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guarzo/pkmprices/internal/model"
)

// TCGPlayerVariantOrder is the order variant blocks are tried in; the first
// block with a usable price wins and the rest are ignored.
var TCGPlayerVariantOrder = []string{
	"normal",
	"holofoil",
	"reverseHolofoil",
	"1stEditionHolofoil",
	"1stEdition",
	"unlimitedHolofoil",
}

// Quote converts a single-quote payload. It returns nil when the payload has
// no usable numeric field. TrackerPayload yields several quotes; use Quotes.
func Quote(raw model.RawPayload, key model.CardKey, now time.Time) *model.PriceQuote {
	switch p := raw.(type) {
	case model.TCGPlayerPayload:
		return fromTCGPlayer(p, key, now)
	case *model.TCGPlayerPayload:
		if p == nil {
			return nil
		}
		return fromTCGPlayer(*p, key, now)
	case model.CardmarketPayload:
		return fromCardmarket(p, key, now)
	case *model.CardmarketPayload:
		if p == nil {
			return nil
		}
		return fromCardmarket(*p, key, now)
	case model.JustTCGPayload:
		return fromJustTCG(p, key, now)
	case model.ListingPayload:
		return fromListing(p, key, now)
	case model.TrackerPayload:
		qs := Quotes(p, key, now)
		if len(qs) == 0 {
			return nil
		}
		return &qs[0]
	default:
		return nil
	}
}

// Quotes converts any payload into zero or more quotes. Malformed pieces are
// skipped without affecting the others.
func Quotes(raw model.RawPayload, key model.CardKey, now time.Time) []model.PriceQuote {
	if p, ok := raw.(model.TrackerPayload); ok {
		return PriceBlocks(p.Cardmarket, p.TCGPlayer, key, now)
	}
	if q := Quote(raw, key, now); q != nil {
		return []model.PriceQuote{*q}
	}
	return nil
}

// PriceBlocks converts the cardmarket and tcgplayer blocks a card record
// carries. Both come out as EN/NM, so the EUR quote goes first and wins the
// input-order tie in the selector.
func PriceBlocks(cm *model.CardmarketPayload, tcg *model.TCGPlayerPayload, key model.CardKey, now time.Time) []model.PriceQuote {
	var out []model.PriceQuote
	if q := Quote(cm, key, now); q != nil {
		out = append(out, *q)
	}
	if q := Quote(tcg, key, now); q != nil {
		out = append(out, *q)
	}
	return out
}

func fromTCGPlayer(p model.TCGPlayerPayload, key model.CardKey, now time.Time) *model.PriceQuote {
	for _, variant := range TCGPlayerVariantOrder {
		block, ok := p.Prices[variant]
		if !ok {
			continue
		}
		if q := build(key, block.Low, block.Mid, block.Market, model.CurrencyUSD, model.SourcePokemonTCG, now); q != nil {
			return q
		}
	}
	return nil
}

func fromCardmarket(p model.CardmarketPayload, key model.CardKey, now time.Time) *model.PriceQuote {
	return build(key, p.Prices.LowPrice, p.Prices.AverageSellPrice, p.Prices.TrendPrice, model.CurrencyEUR, model.SourceCardmarket, now)
}

func fromJustTCG(p model.JustTCGPayload, key model.CardKey, now time.Time) *model.PriceQuote {
	trend := p.Trend
	if usable(trend) == nil {
		trend = p.Market
	}
	stamp := now
	if !p.UpdatedAt.IsZero() {
		stamp = p.UpdatedAt
	}
	return build(key, p.Low, p.Average, trend, model.CurrencyUSD, model.SourceJustTCG, stamp)
}

func fromListing(p model.ListingPayload, key model.CardKey, now time.Time) *model.PriceQuote {
	lang, ok := model.ParseLanguage(p.Language)
	if !ok {
		return nil
	}
	price, ok := ParsePriceText(p.PriceText)
	if !ok {
		return nil
	}
	q := build(key, &price, &price, &price, model.CurrencyEUR, model.SourceCardmarket, now)
	if q == nil {
		return nil
	}
	q.Language = lang
	q.Condition = model.ParseCondition(p.Condition)
	if p.Quantity > 0 {
		q.AvailableQuantity = p.Quantity
	}
	return q
}

// build assembles a NM/EN quote. Missing fields borrow from the populated
// ones so a quote never reports zero for a price nobody supplied.
func build(key model.CardKey, min, avg, trend *float64, currency string, source model.Source, now time.Time) *model.PriceQuote {
	lo, mid, tr := usable(min), usable(avg), usable(trend)
	if lo == nil && mid == nil && tr == nil {
		return nil
	}

	if mid == nil {
		mid = firstOf(tr, lo)
	}
	if lo == nil {
		lo = mid
	}
	if tr == nil {
		tr = mid
	}

	return &model.PriceQuote{
		CardKey:     key,
		Language:    model.LangEN,
		Condition:   model.CondNM,
		MinPrice:    Round(*lo),
		AvgPrice:    Round(*mid),
		TrendPrice:  Round(*tr),
		Currency:    currency,
		Source:      source,
		LastUpdated: now,
	}
}

func usable(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
		return nil
	}
	return v
}

func firstOf(vs ...*float64) *float64 {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}

// Round converts to a two-decimal amount.
func Round(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

var priceJunk = regexp.MustCompile(`[^\d.,]`)

// ParsePriceText reads marketplace price text such as "1.234,50 €" or "$12.99".
// "N/A", dashes and empty strings are not prices.
func ParsePriceText(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(s, "N/A") || strings.HasPrefix(s, "-") {
		return 0, false
	}
	clean := priceJunk.ReplaceAllString(s, "")
	if clean == "" {
		return 0, false
	}

	// Comma is the decimal separator when it comes last.
	lastComma := strings.LastIndex(clean, ",")
	lastDot := strings.LastIndex(clean, ".")
	if lastComma > lastDot {
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.Replace(clean, ",", ".", 1)
	} else {
		clean = strings.ReplaceAll(clean, ",", "")
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

// Tag returns copies of quotes attributed to source.
func Tag(quotes []model.PriceQuote, source model.Source) []model.PriceQuote {
	out := make([]model.PriceQuote, len(quotes))
	for i, q := range quotes {
		q.Source = source
		out[i] = q
	}
	return out
}
