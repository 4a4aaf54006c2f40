package providers

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/guarzo/pkmprices/internal/clock"
	"github.com/guarzo/pkmprices/internal/model"
	"github.com/guarzo/pkmprices/internal/normalize"
	"github.com/guarzo/pkmprices/internal/upstream"
)

// Cardmarket reads the offers table of a marketplace product page and turns
// each offer row into a per-language, per-condition quote. It is only enabled
// when a base URL is configured and sends ordinary requests.
type Cardmarket struct {
	baseURL string
	client  *upstream.Client
	limiter *rate.Limiter
	clock   clock.Clock
}

func NewCardmarket(cfg Config, client *upstream.Client, clk clock.Clock) *Cardmarket {
	return &Cardmarket{
		baseURL: strings.TrimRight(cfg.CardmarketURL, "/"),
		client:  client,
		limiter: NewLimiter(cfg.RateLimitPerMin),
		clock:   clk,
	}
}

func (c *Cardmarket) Name() model.Source { return model.SourceCardmarket }

func (c *Cardmarket) Available() bool { return c.baseURL != "" }

func (c *Cardmarket) FetchQuotes(ctx context.Context, card model.CardKey) ([]model.PriceQuote, error) {
	if !c.Available() {
		return nil, nil
	}
	if err := wait(ctx, c.limiter, c.Name()); err != nil {
		return nil, err
	}

	body, err := c.client.GetBody(ctx, string(c.Name()), c.productURL(card), map[string]string{
		"Accept":          "text/html,application/xhtml+xml",
		"Accept-Language": "en-US,en;q=0.9",
	})
	if upstream.IsKind(err, upstream.KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := ParseOffers(body)
	if err != nil {
		return nil, upstream.NewError(string(c.Name()), upstream.KindMalformed, err)
	}

	now := c.clock.Now()
	var quotes []model.PriceQuote
	for _, row := range rows {
		// Rows in unsupported languages or without a price are dropped.
		if q := normalize.Quote(row, card, now); q != nil {
			quotes = append(quotes, *q)
		}
	}
	return normalize.Tag(quotes, c.Name()), nil
}

// productURL follows the marketplace's /Products/Singles/{set}/{card} layout.
func (c *Cardmarket) productURL(card model.CardKey) string {
	set := slug(card.SetName)
	if set == "" {
		set = "Unknown-Set"
	}
	return fmt.Sprintf("%s/en/Pokemon/Products/Singles/%s/%s", c.baseURL, set, slug(card.Name))
}

var slugJunk = regexp.MustCompile(`[^A-Za-z0-9]+`)

func slug(s string) string {
	return strings.Trim(slugJunk.ReplaceAllString(s, "-"), "-")
}

// ParseOffers extracts offer rows from a product page. Expected markup per row:
//
//	<div class="article-row">
//	  <span class="product-attributes"><span class="icon" data-original-title="Italian"></span></span>
//	  <span class="article-condition" title="Near Mint">NM</span>
//	  <span class="price-container">12,50 €</span>
//	  <span class="item-count">3</span>
//	</div>
func ParseOffers(html []byte) ([]model.ListingPayload, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var rows []model.ListingPayload
	doc.Find("div.article-row").Each(func(i int, s *goquery.Selection) {
		lang, _ := s.Find(".product-attributes [data-original-title]").First().Attr("data-original-title")
		cond := strings.TrimSpace(s.Find(".article-condition").First().Text())
		price := strings.TrimSpace(s.Find(".price-container").First().Text())
		qty, _ := strconv.Atoi(strings.TrimSpace(s.Find(".item-count").First().Text()))

		rows = append(rows, model.ListingPayload{
			Language:  lang,
			Condition: cond,
			PriceText: price,
			Quantity:  qty,
		})
	})
	return rows, nil
}
