package testutil

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guarzo/pkmprices/internal/model"
)

// TestDataFactory provides methods for generating dynamic test data
type TestDataFactory struct {
	rand *rand.Rand
	now  time.Time
}

// NewTestDataFactory creates a new test data factory with a seeded random generator
func NewTestDataFactory(seed int64) *TestDataFactory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &TestDataFactory{
		rand: rand.New(rand.NewSource(seed)),
		now:  time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
	}
}

// GenerateTestCardNumber generates a random card number for testing
func (f *TestDataFactory) GenerateTestCardNumber() string {
	return fmt.Sprintf("%03d", f.rand.Intn(300)+1)
}

// GenerateTestSetName generates a random test set name
func (f *TestDataFactory) GenerateTestSetName() string {
	sets := []string{"Test Base Set", "Test Jungle", "Test Fossil", "Test Rocket", "Test Gym"}
	return sets[f.rand.Intn(len(sets))]
}

// GenerateTestCardName generates a random test card name
func (f *TestDataFactory) GenerateTestCardName() string {
	names := []string{"Test Pikachu", "Test Charizard", "Test Blastoise", "Test Venusaur", "Test Mewtwo"}
	return names[f.rand.Intn(len(names))]
}

// GenerateTestCard generates a catalog card without prices
func (f *TestDataFactory) GenerateTestCard() model.Card {
	number := f.GenerateTestCardNumber()
	return model.Card{
		UpstreamID: "test-" + number,
		Name:       f.GenerateTestCardName(),
		SetName:    f.GenerateTestSetName(),
		SetID:      "test",
		Number:     number,
		Rarity:     "Rare",
	}
}

// GenerateTestPrice generates a random two-decimal price between 0.50 and 500.00
func (f *TestDataFactory) GenerateTestPrice() decimal.Decimal {
	return decimal.New(int64(f.rand.Intn(49950)+50), -2)
}

// GenerateTestQuote generates a consistent quote (min <= avg <= trend) for a card
func (f *TestDataFactory) GenerateTestQuote(key model.CardKey, lang model.Language, cond model.Condition) model.PriceQuote {
	avg := f.GenerateTestPrice()
	return model.PriceQuote{
		CardKey:           key,
		Language:          lang,
		Condition:         cond,
		MinPrice:          avg.Mul(decimal.NewFromFloat(0.9)).Round(2),
		AvgPrice:          avg,
		TrendPrice:        avg.Mul(decimal.NewFromFloat(1.05)).Round(2),
		Currency:          model.CurrencyEUR,
		AvailableQuantity: f.rand.Intn(20) + 1,
		Source:            model.SourceCardmarket,
		LastUpdated:       f.now,
	}
}
