// Package catalog persists catalog cards and the price blob written back
// after resolution.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/guarzo/pkmprices/internal/clock"
	"github.com/guarzo/pkmprices/internal/model"
)

// ErrNotFound is returned when no card has the requested id.
var ErrNotFound = errors.New("card not found")

// Store is the catalog collaborator of the pricing core.
type Store interface {
	Card(ctx context.Context, id int64) (model.Card, error)
	ListCards(ctx context.Context, limit, offset int) ([]model.Card, error)
	// SavePrices replaces the card's price blob.
	SavePrices(ctx context.Context, id int64, quotes []model.PriceQuote) error
	// UpsertCard inserts or updates by UpstreamID and sets card.ID.
	UpsertCard(ctx context.Context, card *model.Card) error
	Close() error
}

// Open returns the store for driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string, clk clock.Clock) (Store, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
		s, err := NewSQLiteStore(dsn, clk)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres", "postgresql", "pgx":
		s, err := NewPostgresStore(ctx, dsn, clk)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown catalog driver %q", driver)
	}
}

func encodePrices(quotes []model.PriceQuote) ([]byte, error) {
	if quotes == nil {
		quotes = []model.PriceQuote{}
	}
	b, err := json.Marshal(quotes)
	if err != nil {
		return nil, fmt.Errorf("encode prices: %w", err)
	}
	return b, nil
}

func decodePrices(b []byte) ([]model.PriceQuote, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var quotes []model.PriceQuote
	if err := json.Unmarshal(b, &quotes); err != nil {
		return nil, fmt.Errorf("decode prices: %w", err)
	}
	return quotes, nil
}

func validate(card *model.Card) error {
	if card == nil {
		return errors.New("nil card")
	}
	if strings.TrimSpace(card.UpstreamID) == "" {
		return errors.New("card upstream id is required")
	}
	if strings.TrimSpace(card.Name) == "" {
		return errors.New("card name is required")
	}
	return nil
}
