package pricing

import (
	"context"
	"log"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/guarzo/pkmprices/internal/model"
)

// Batch defaults keep a full chunk under typical upstream per-second limits.
const (
	DefaultBatchSize  = 10
	DefaultBatchDelay = time.Second
)

// BatchItem is one card in a batch request.
type BatchItem struct {
	Name       string `json:"name"`
	SetName    string `json:"setName,omitempty"`
	UpstreamID string `json:"upstreamId,omitempty"`
}

// BatchResult pairs a card with its quotes. Err is set only for invalid
// items or when the batch was cancelled before the item ran.
type BatchResult struct {
	Card   model.CardKey      `json:"cardKey"`
	Quotes []model.PriceQuote `json:"quotes"`
	Err    error              `json:"-"`
	Error  string             `json:"error,omitempty"`
}

func withBatchDefaults(b BatchConfig) BatchConfig {
	if b.Size <= 0 {
		b.Size = DefaultBatchSize
	}
	if b.Delay < 0 {
		b.Delay = 0
	} else if b.Delay == 0 {
		b.Delay = DefaultBatchDelay
	}
	if b.Concurrency <= 0 || b.Concurrency > b.Size {
		b.Concurrency = b.Size
	}
	return b
}

// BatchResolve prices items in chunks. Items inside a chunk run concurrently;
// chunks run one after another with the configured delay between them.
// Results are in input order.
func (s *Service) BatchResolve(ctx context.Context, items []BatchItem, mode Mode) []BatchResult {
	results := make([]BatchResult, len(items))
	for i, it := range items {
		results[i].Card = model.CardKey{Name: it.Name, SetName: it.SetName, UpstreamID: it.UpstreamID}
	}

	for start := 0; start < len(items); start += s.batch.Size {
		if start > 0 {
			err := ctx.Err()
			if err == nil && s.batch.Delay > 0 {
				err = s.sleep(ctx, s.batch.Delay)
			}
			if err != nil {
				log.Printf("Pricing: batch stopped after %d of %d cards: %v", start, len(items), err)
				fail(results[start:], err)
				return results
			}
		}
		end := min(start+s.batch.Size, len(items))

		p := pool.New().WithMaxGoroutines(s.batch.Concurrency)
		for i := start; i < end; i++ {
			p.Go(func() {
				quotes, err := s.Resolve(ctx, ResolveRequest{
					Name:       items[i].Name,
					SetName:    items[i].SetName,
					UpstreamID: items[i].UpstreamID,
					Mode:       mode,
				})
				results[i].Quotes = quotes
				if err != nil {
					results[i].Err = err
					results[i].Error = err.Error()
				}
			})
		}
		p.Wait()
	}
	return results
}

func fail(results []BatchResult, err error) {
	for i := range results {
		results[i].Err = err
		results[i].Error = err.Error()
	}
}
