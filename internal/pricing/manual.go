package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/guarzo/pkmprices/internal/model"
)

// ManualPrice is an operator-entered price. Missing amounts borrow from the
// ones given; Currency defaults to the reference currency.
type ManualPrice struct {
	Language  string          `json:"language"`
	Condition string          `json:"condition"`
	Min       decimal.Decimal `json:"minPrice"`
	Avg       decimal.Decimal `json:"avgPrice"`
	Trend     decimal.Decimal `json:"trendPrice"`
	Currency  string          `json:"currency"`
	Quantity  int             `json:"availableQuantity"`
}

// ManualQuote builds a quote tagged with the manual source.
func (s *Service) ManualQuote(key model.CardKey, mp ManualPrice) (model.PriceQuote, error) {
	if strings.TrimSpace(key.Name) == "" {
		return model.PriceQuote{}, fmt.Errorf("%w: card name is required", ErrInvalidRequest)
	}
	lang := model.LangEN
	if mp.Language != "" {
		l, ok := model.ParseLanguage(mp.Language)
		if !ok {
			return model.PriceQuote{}, fmt.Errorf("%w: unsupported language %q", ErrInvalidRequest, mp.Language)
		}
		lang = l
	}

	avg := firstPositive(mp.Avg, mp.Min, mp.Trend)
	if avg.IsZero() {
		return model.PriceQuote{}, fmt.Errorf("%w: manual price needs at least one amount", ErrInvalidRequest)
	}
	currency := strings.ToUpper(strings.TrimSpace(mp.Currency))
	if currency == "" {
		currency = model.ReferenceCurrency
	}

	q := model.PriceQuote{
		CardKey:           key,
		Language:          lang,
		Condition:         model.ParseCondition(mp.Condition),
		MinPrice:          firstPositive(mp.Min, avg).Round(2),
		AvgPrice:          avg.Round(2),
		TrendPrice:        firstPositive(mp.Trend, avg).Round(2),
		Currency:          currency,
		AvailableQuantity: mp.Quantity,
		Source:            model.SourceManual,
		LastUpdated:       s.clock.Now(),
	}
	if err := q.Validate(); err != nil {
		return model.PriceQuote{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return q, nil
}

// SetManual caches a manual quote as the only quote for its language until the
// entry expires or the card is invalidated.
func (s *Service) SetManual(key model.CardKey, mp ManualPrice) (model.PriceQuote, error) {
	key.Name = strings.TrimSpace(key.Name)
	key.SetName = strings.TrimSpace(key.SetName)
	q, err := s.ManualQuote(key, mp)
	if err != nil {
		return model.PriceQuote{}, err
	}
	s.cache.Put(key, q.Language, []model.PriceQuote{q})
	return q, nil
}

func firstPositive(vals ...decimal.Decimal) decimal.Decimal {
	for _, v := range vals {
		if v.IsPositive() {
			return v
		}
	}
	return decimal.Zero
}
