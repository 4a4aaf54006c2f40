package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/guarzo/pkmprices/internal/clock"
	"github.com/guarzo/pkmprices/internal/model"
	"github.com/guarzo/pkmprices/internal/normalize"
	"github.com/guarzo/pkmprices/internal/upstream"
)

const defaultPokeTCGURL = "https://api.pokemontcg.io"

// PokeTCGIO reads the tcgplayer and cardmarket price blocks embedded in
// pokemontcg.io card records. The API key is optional.
type PokeTCGIO struct {
	apiKey  string
	baseURL string
	client  *upstream.Client
	limiter *rate.Limiter
	clock   clock.Clock
}

type pokeTCGCard struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Set  struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"set"`
	TCGPlayer  *model.TCGPlayerPayload  `json:"tcgplayer"`
	Cardmarket *model.CardmarketPayload `json:"cardmarket"`
}

func NewPokeTCGIO(cfg Config, client *upstream.Client, clk clock.Clock) *PokeTCGIO {
	return &PokeTCGIO{
		apiKey:  cfg.PokemonTCGAPIKey,
		baseURL: strings.TrimRight(firstNonEmpty(cfg.PokemonTCGURL, defaultPokeTCGURL), "/"),
		client:  client,
		limiter: NewLimiter(cfg.RateLimitPerMin),
		clock:   clk,
	}
}

func (p *PokeTCGIO) Name() model.Source { return model.SourcePokemonTCG }

// Available is always true; the public API works without a key at a lower quota.
func (p *PokeTCGIO) Available() bool { return true }

func (p *PokeTCGIO) FetchQuotes(ctx context.Context, card model.CardKey) ([]model.PriceQuote, error) {
	if err := wait(ctx, p.limiter, p.Name()); err != nil {
		return nil, err
	}

	found, err := p.lookup(ctx, card)
	if upstream.IsKind(err, upstream.KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, nil
	}

	key := model.CardKey{
		Name:       firstNonEmpty(card.Name, found.Name),
		SetName:    firstNonEmpty(card.SetName, found.Set.Name),
		UpstreamID: found.ID,
	}
	quotes := normalize.PriceBlocks(found.Cardmarket, found.TCGPlayer, key, p.clock.Now())
	return normalize.Tag(quotes, p.Name()), nil
}

func (p *PokeTCGIO) lookup(ctx context.Context, card model.CardKey) (*pokeTCGCard, error) {
	if card.UpstreamID != "" {
		// GET /v2/cards/{id}
		var resp struct {
			Data pokeTCGCard `json:"data"`
		}
		u := fmt.Sprintf("%s/v2/cards/%s", p.baseURL, url.PathEscape(card.UpstreamID))
		if err := p.client.GetJSON(ctx, string(p.Name()), u, p.headers(), &resp); err != nil {
			return nil, err
		}
		return &resp.Data, nil
	}

	// GET /v2/cards?q=name:"..." set.name:"..."&pageSize=1
	q := fmt.Sprintf("name:%q", card.Name)
	if card.SetName != "" {
		q += fmt.Sprintf(" set.name:%q", card.SetName)
	}
	u := fmt.Sprintf("%s/v2/cards?q=%s&pageSize=1", p.baseURL, url.QueryEscape(q))

	var resp struct {
		Data []pokeTCGCard `json:"data"`
	}
	if err := p.client.GetJSON(ctx, string(p.Name()), u, p.headers(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	return &resp.Data[0], nil
}

func (p *PokeTCGIO) headers() map[string]string {
	h := map[string]string{"Accept": "application/json"}
	if p.apiKey != "" {
		h["X-Api-Key"] = p.apiKey
	}
	return h
}
