package catalog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guarzo/pkmprices/internal/clock"
	"github.com/guarzo/pkmprices/internal/model"
	"github.com/guarzo/pkmprices/internal/testutil"
)

var storeNow = time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

// storeFactory returns an empty store and the clock it stamps rows with.
type storeFactory func(t *testing.T) (Store, *clock.Fake)

func newSQLiteTestStore(t *testing.T) (Store, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(storeNow)
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "catalog.db"), clk)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clk
}

func newPostgresTestStore(t *testing.T) (Store, *clock.Fake) {
	t.Helper()
	ctx := context.Background()
	clk := clock.NewFake(storeNow)

	pool, err := pgxpool.New(ctx, testutil.GetTestPostgresDSN())
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	s, err := NewPostgresStoreWithPool(ctx, pool, clk)
	if err != nil {
		pool.Close()
		t.Fatalf("NewPostgresStoreWithPool: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if _, err := pool.Exec(ctx, `TRUNCATE cards RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return s, clk
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, newSQLiteTestStore)
}

func TestPostgresStore(t *testing.T) {
	if testutil.GetTestPostgresDSN() == "" {
		t.Skipf("Skipping Postgres catalog tests: %s not set", testutil.TestPostgresDSN)
	}
	if !testutil.IsTestMode() {
		t.Skip("Skipping Postgres catalog tests outside test mode; they truncate the cards table")
	}
	runStoreContract(t, newPostgresTestStore)
}

func runStoreContract(t *testing.T, newStore storeFactory) {
	tests := []struct {
		name string
		run  func(t *testing.T, s Store, clk *clock.Fake)
	}{
		{"UpsertAndGet", testUpsertAndGet},
		{"SavePrices", testSavePrices},
		{"ListCards", testListCards},
		{"Errors", testStoreErrors},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, clk := newStore(t)
			tt.run(t, s, clk)
		})
	}
}

func testUpsertAndGet(t *testing.T, s Store, _ *clock.Fake) {
	ctx := context.Background()
	factory := testutil.NewTestDataFactory(7)

	card := factory.GenerateTestCard()
	if err := s.UpsertCard(ctx, &card); err != nil {
		t.Fatalf("UpsertCard: %v", err)
	}
	if card.ID == 0 {
		t.Fatal("UpsertCard should set the id")
	}

	got, err := s.Card(ctx, card.ID)
	if err != nil {
		t.Fatalf("Card: %v", err)
	}
	if got.Name != card.Name || got.SetName != card.SetName || got.Number != card.Number || got.Rarity != card.Rarity {
		t.Errorf("card did not round trip: got %+v want %+v", got, card)
	}
	if len(got.Prices) != 0 {
		t.Errorf("new card should have no prices, got %d", len(got.Prices))
	}

	// Same upstream id updates in place.
	again := card
	again.ID = 0
	again.SetName = card.SetName + " Unlimited"
	if err := s.UpsertCard(ctx, &again); err != nil {
		t.Fatalf("UpsertCard: %v", err)
	}
	if again.ID != card.ID {
		t.Errorf("upsert created a new row: %d vs %d", again.ID, card.ID)
	}
	got, _ = s.Card(ctx, card.ID)
	if got.SetName != again.SetName {
		t.Errorf("set name not updated: %q", got.SetName)
	}
}

func testSavePrices(t *testing.T, s Store, clk *clock.Fake) {
	ctx := context.Background()
	factory := testutil.NewTestDataFactory(11)

	card := factory.GenerateTestCard()
	if err := s.UpsertCard(ctx, &card); err != nil {
		t.Fatal(err)
	}

	clk.Advance(time.Hour)
	quotes := []model.PriceQuote{
		factory.GenerateTestQuote(card.Key(), model.LangIT, model.CondEX),
		factory.GenerateTestQuote(card.Key(), model.LangEN, model.CondNM),
	}
	if err := s.SavePrices(ctx, card.ID, quotes); err != nil {
		t.Fatalf("SavePrices: %v", err)
	}

	got, err := s.Card(ctx, card.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Prices) != len(quotes) {
		t.Fatalf("expected %d stored quotes, got %d", len(quotes), len(got.Prices))
	}
	for i, q := range got.Prices {
		want := quotes[i]
		if !q.AvgPrice.Equal(want.AvgPrice) || !q.MinPrice.Equal(want.MinPrice) ||
			q.Language != want.Language || q.Condition != want.Condition || q.Source != want.Source {
			t.Errorf("quote %d did not round trip: %+v", i, q)
		}
	}
	if !got.UpdatedAt.Equal(clk.Now()) {
		t.Errorf("updated_at = %v, want %v", got.UpdatedAt, clk.Now())
	}

	if err := s.SavePrices(ctx, 9999, quotes); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testListCards(t *testing.T, s Store, _ *clock.Fake) {
	ctx := context.Background()
	factory := testutil.NewTestDataFactory(3)

	for i := 1; i <= 5; i++ {
		c := factory.GenerateTestCard()
		c.UpstreamID = fmt.Sprintf("a-%d", i)
		if err := s.UpsertCard(ctx, &c); err != nil {
			t.Fatal(err)
		}
	}

	page1, err := s.ListCards(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListCards: %v", err)
	}
	page3, _ := s.ListCards(ctx, 2, 4)
	if len(page1) != 2 || len(page3) != 1 {
		t.Fatalf("pages = %d, %d", len(page1), len(page3))
	}
	if page1[0].UpstreamID != "a-1" || page3[0].UpstreamID != "a-5" {
		t.Errorf("unexpected order: %s, %s", page1[0].UpstreamID, page3[0].UpstreamID)
	}

	empty, _ := s.ListCards(ctx, 2, 10)
	if len(empty) != 0 {
		t.Errorf("expected empty page, got %d", len(empty))
	}
}

func testStoreErrors(t *testing.T, s Store, _ *clock.Fake) {
	ctx := context.Background()

	if _, err := s.Card(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.UpsertCard(ctx, &model.Card{Name: "No ID"}); err == nil {
		t.Error("expected error for missing upstream id")
	}
	if err := s.UpsertCard(ctx, nil); err == nil {
		t.Error("expected error for nil card")
	}
}

func TestOpen(t *testing.T) {
	st, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "x.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	st.Close()

	if _, err := Open(context.Background(), "oracle", "", nil); err == nil {
		t.Error("expected error for unknown driver")
	}
}
