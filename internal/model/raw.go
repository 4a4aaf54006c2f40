package model

import "time"

// RawPayload is the closed set of provider price shapes the normalizer knows.
// Adapters decode into one of these at their boundary.
type RawPayload interface {
	rawPayload()
}

// TCGPlayerPrices is one variant block (normal, holofoil, ...) of TCGPlayer prices, USD.
type TCGPlayerPrices struct {
	Low       *float64 `json:"low,omitempty"`
	Mid       *float64 `json:"mid,omitempty"`
	High      *float64 `json:"high,omitempty"`
	Market    *float64 `json:"market,omitempty"`
	DirectLow *float64 `json:"directLow,omitempty"`
}

// TCGPlayerPayload is the tcgplayer block shared by pokemontcg.io and the tracker.
type TCGPlayerPayload struct {
	URL     string                     `json:"url,omitempty"`
	Updated string                     `json:"updatedAt,omitempty"`
	Prices  map[string]TCGPlayerPrices `json:"prices,omitempty"`
}

func (TCGPlayerPayload) rawPayload() {}

// CardmarketPayload is the cardmarket block, EUR.
type CardmarketPayload struct {
	URL     string `json:"url,omitempty"`
	Updated string `json:"updatedAt,omitempty"`
	Prices  struct {
		AverageSellPrice *float64 `json:"averageSellPrice,omitempty"`
		LowPrice         *float64 `json:"lowPrice,omitempty"`
		TrendPrice       *float64 `json:"trendPrice,omitempty"`
		GermanProLow     *float64 `json:"germanProLow,omitempty"`
		SuggestedPrice   *float64 `json:"suggestedPrice,omitempty"`
		ReverseHoloSell  *float64 `json:"reverseHoloSell,omitempty"`
		ReverseHoloLow   *float64 `json:"reverseHoloLow,omitempty"`
		ReverseHoloTrend *float64 `json:"reverseHoloTrend,omitempty"`
		LowPriceExPlus   *float64 `json:"lowPriceExPlus,omitempty"`
		Avg1             *float64 `json:"avg1,omitempty"`
		Avg7             *float64 `json:"avg7,omitempty"`
		Avg30            *float64 `json:"avg30,omitempty"`
	} `json:"prices"`
}

func (CardmarketPayload) rawPayload() {}

// TrackerPayload is one record of the price tracker service.
type TrackerPayload struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	SetID      string             `json:"setId"`
	Number     string             `json:"number"`
	TCGPlayer  *TCGPlayerPayload  `json:"tcgplayer,omitempty"`
	Cardmarket *CardmarketPayload `json:"cardmarket,omitempty"`
}

func (TrackerPayload) rawPayload() {}

// JustTCGPayload is the price block of a JustTCG search hit, USD.
type JustTCGPayload struct {
	Low       *float64  `json:"low,omitempty"`
	Average   *float64  `json:"average,omitempty"`
	High      *float64  `json:"high,omitempty"`
	Trend     *float64  `json:"trend,omitempty"`
	Market    *float64  `json:"market,omitempty"`
	UpdatedAt time.Time `json:"-"`
}

func (JustTCGPayload) rawPayload() {}

// ListingPayload is one marketplace offer row as scraped from a product page.
type ListingPayload struct {
	Language  string
	Condition string
	PriceText string
	Quantity  int
}

func (ListingPayload) rawPayload() {}
