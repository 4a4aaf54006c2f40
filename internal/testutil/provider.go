package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/guarzo/pkmprices/internal/model"
)

// FakeProvider is a scripted provider that counts its calls. Responses are
// consumed in order; the last one repeats.
type FakeProvider struct {
	Source      model.Source
	Unavailable bool
	Delay       time.Duration

	mu        sync.Mutex
	responses []FakeResponse
	calls     int
	cards     []model.CardKey
}

// FakeResponse is one scripted FetchQuotes result.
type FakeResponse struct {
	Quotes []model.PriceQuote
	Err    error
}

// NewFakeProvider returns a provider answering with quotes and no error.
func NewFakeProvider(source model.Source, quotes ...model.PriceQuote) *FakeProvider {
	return &FakeProvider{Source: source, responses: []FakeResponse{{Quotes: quotes}}}
}

// NewFailingProvider returns a provider that always fails with err.
func NewFailingProvider(source model.Source, err error) *FakeProvider {
	return &FakeProvider{Source: source, responses: []FakeResponse{{Err: err}}}
}

// Script replaces the scripted responses.
func (p *FakeProvider) Script(responses ...FakeResponse) *FakeProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = responses
	return p
}

func (p *FakeProvider) Name() model.Source { return p.Source }

func (p *FakeProvider) Available() bool { return !p.Unavailable }

func (p *FakeProvider) FetchQuotes(ctx context.Context, card model.CardKey) ([]model.PriceQuote, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.cards = append(p.cards, card)
	var resp FakeResponse
	if len(p.responses) > 0 {
		resp = p.responses[min(idx, len(p.responses)-1)]
	}
	p.mu.Unlock()

	if p.Delay > 0 {
		t := time.NewTimer(p.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	out := make([]model.PriceQuote, len(resp.Quotes))
	for i, q := range resp.Quotes {
		if q.CardKey.Name == "" {
			q.CardKey = card
		}
		q.Source = p.Source
		out[i] = q
	}
	return out, nil
}

// Calls returns how many times FetchQuotes ran.
func (p *FakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Cards returns the cards FetchQuotes was asked for, in call order.
func (p *FakeProvider) Cards() []model.CardKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.CardKey(nil), p.cards...)
}
