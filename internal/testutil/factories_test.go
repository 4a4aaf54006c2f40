package testutil

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/guarzo/pkmprices/internal/model"
)

func TestNewTestDataFactory(t *testing.T) {
	f1 := NewTestDataFactory(12345)
	f2 := NewTestDataFactory(12345)

	if f1.GenerateTestCardNumber() != f2.GenerateTestCardNumber() {
		t.Error("factories with same seed should generate same values")
	}

	if NewTestDataFactory(0) == nil {
		t.Error("factory with zero seed should not be nil")
	}
}

func TestGenerateTestCardNumber(t *testing.T) {
	factory := NewTestDataFactory(12345)
	for i := 0; i < 10; i++ {
		number := factory.GenerateTestCardNumber()
		if len(number) != 3 {
			t.Errorf("card number should be 3 digits, got: %s", number)
		}
	}
}

func TestGenerateTestCard(t *testing.T) {
	card := NewTestDataFactory(7).GenerateTestCard()
	if !strings.HasPrefix(card.Name, "Test ") || !strings.HasPrefix(card.SetName, "Test ") {
		t.Errorf("unexpected card %+v", card)
	}
	if card.UpstreamID != "test-"+card.Number {
		t.Errorf("upstream id %q does not match number %q", card.UpstreamID, card.Number)
	}
}

func TestGenerateTestQuote(t *testing.T) {
	factory := NewTestDataFactory(99)
	key := model.CardKey{Name: "Test Mew"}
	for i := 0; i < 50; i++ {
		q := factory.GenerateTestQuote(key, model.LangFR, model.CondEX)
		if err := q.Validate(); err != nil {
			t.Fatalf("generated quote invalid: %v", err)
		}
		if q.MinPrice.GreaterThan(q.AvgPrice) || q.AvgPrice.GreaterThan(q.TrendPrice) {
			t.Errorf("prices out of order: %s %s %s", q.MinPrice, q.AvgPrice, q.TrendPrice)
		}
	}
}

func TestFakeProvider(t *testing.T) {
	ctx := context.Background()
	q := NewTestDataFactory(1).GenerateTestQuote(model.CardKey{}, model.LangEN, model.CondNM)
	boom := errors.New("boom")

	p := NewFakeProvider("fake").Script(FakeResponse{Err: boom}, FakeResponse{Quotes: []model.PriceQuote{q}})

	if _, err := p.FetchQuotes(ctx, model.CardKey{Name: "Mew"}); !errors.Is(err, boom) {
		t.Errorf("first call should fail, got %v", err)
	}
	for i := 0; i < 2; i++ {
		got, err := p.FetchQuotes(ctx, model.CardKey{Name: "Mew"})
		if err != nil || len(got) != 1 {
			t.Fatalf("call %d: %v, %v", i+2, got, err)
		}
		if got[0].Source != "fake" || got[0].CardKey.Name != "Mew" {
			t.Errorf("quote not attributed: %+v", got[0])
		}
	}
	if p.Calls() != 3 || len(p.Cards()) != 3 {
		t.Errorf("calls = %d", p.Calls())
	}
}
