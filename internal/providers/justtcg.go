package providers

import (
	"context"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/guarzo/pkmprices/internal/clock"
	"github.com/guarzo/pkmprices/internal/model"
	"github.com/guarzo/pkmprices/internal/normalize"
	"github.com/guarzo/pkmprices/internal/upstream"
)

const defaultJustTCGURL = "https://api.justtcg.com/v1"

// JustTCG is the paid search API. Without a key it reports unavailable and
// the orchestrator skips it.
type JustTCG struct {
	apiKey  string
	baseURL string
	client  *upstream.Client
	limiter *rate.Limiter
	clock   clock.Clock
}

type justTCGResponse struct {
	Prices    *model.JustTCGPayload `json:"prices"`
	UpdatedAt string                `json:"updated_at"`
}

func NewJustTCG(cfg Config, client *upstream.Client, clk clock.Clock) *JustTCG {
	return &JustTCG{
		apiKey:  cfg.JustTCGAPIKey,
		baseURL: strings.TrimRight(firstNonEmpty(cfg.JustTCGURL, defaultJustTCGURL), "/"),
		client:  client,
		limiter: NewLimiter(cfg.RateLimitPerMin),
		clock:   clk,
	}
}

func (p *JustTCG) Name() model.Source { return model.SourceJustTCG }

func (p *JustTCG) Available() bool { return p.apiKey != "" }

func (p *JustTCG) FetchQuotes(ctx context.Context, card model.CardKey) ([]model.PriceQuote, error) {
	if !p.Available() {
		return nil, nil
	}
	if err := wait(ctx, p.limiter, p.Name()); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Add("name", card.Name)
	params.Add("set", card.SetName)
	headers := map[string]string{
		"Authorization": "Bearer " + p.apiKey,
		"Content-Type":  "application/json",
	}

	var resp justTCGResponse
	err := p.client.GetJSON(ctx, string(p.Name()), p.baseURL+"/pokemon/cards/search?"+params.Encode(), headers, &resp)
	if upstream.IsKind(err, upstream.KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if resp.Prices == nil {
		return nil, nil
	}

	payload := *resp.Prices
	if ts, err := time.Parse(time.RFC3339, resp.UpdatedAt); err == nil {
		payload.UpdatedAt = ts
	}
	return normalize.Tag(normalize.Quotes(payload, card, p.clock.Now()), p.Name()), nil
}
