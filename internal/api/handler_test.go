package api

import (
	"context"
	"encoding/csv"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/guarzo/pkmprices/internal/cache"
	"github.com/guarzo/pkmprices/internal/catalog"
	"github.com/guarzo/pkmprices/internal/clock"
	"github.com/guarzo/pkmprices/internal/model"
	"github.com/guarzo/pkmprices/internal/pricing"
	"github.com/guarzo/pkmprices/internal/providers"
	"github.com/guarzo/pkmprices/internal/synthetic"
	"github.com/guarzo/pkmprices/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router   *gin.Engine
	store    *catalog.SQLiteStore
	provider *testutil.FakeProvider
	clock    *clock.Fake
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC))

	store, err := catalog.NewSQLiteStore(filepath.Join(t.TempDir(), "catalog.db"), clk)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	// Only "Charizard" has real data; everything else falls back to synthetic.
	fake := testutil.NewFakeProvider(model.SourcePokemonTCG)
	svc := pricing.New(pricing.Options{
		Providers: []providers.Provider{charizardOnly{fake}},
		Cache:     cache.New(cache.DefaultTTL, clk),
		Generator: synthetic.New(synthetic.WithRand(rand.New(rand.NewSource(3))), synthetic.WithClock(clk)),
		Clock:     clk,
		Batch:     pricing.BatchConfig{Delay: -1},
	})

	return &testEnv{
		router:   NewRouter(NewHandler(svc, store)),
		store:    store,
		provider: fake,
		clock:    clk,
	}
}

// charizardOnly answers with fixed USD quotes for Charizard and nothing otherwise.
type charizardOnly struct{ *testutil.FakeProvider }

func (p charizardOnly) FetchQuotes(ctx context.Context, card model.CardKey) ([]model.PriceQuote, error) {
	p.FakeProvider.FetchQuotes(ctx, card)
	if card.Name != "Charizard" {
		return nil, nil
	}
	mk := func(cond model.Condition, qty int, avg string) model.PriceQuote {
		a := decimal.RequireFromString(avg)
		return model.PriceQuote{
			CardKey: card, Language: model.LangEN, Condition: cond,
			MinPrice: a, AvgPrice: a, TrendPrice: a,
			Currency: model.CurrencyUSD, AvailableQuantity: qty, Source: model.SourcePokemonTCG,
		}
	}
	return []model.PriceQuote{mk(model.CondLP, 5, "180"), mk(model.CondNM, 1, "250")}, nil
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type pricesResp struct {
	Quotes []model.PriceQuote `json:"quotes"`
	Min    *struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	} `json:"min"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
}

func TestGetPrices(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/prices?name=Charizard&set=Base&lang=en", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp pricesResp
	decode(t, w, &resp)
	if len(resp.Quotes) != 1 || resp.Quotes[0].Condition != model.CondNM {
		t.Errorf("best mode should return the NM quote, got %+v", resp.Quotes)
	}
	if resp.Min == nil || resp.Min.Amount != "250.00" || resp.Min.Currency != "USD" {
		t.Errorf("min = %+v", resp.Min)
	}

	w = env.do(t, http.MethodGet, "/api/prices?name=Charizard&set=Base&lang=en&mode=all", "")
	decode(t, w, &resp)
	if len(resp.Quotes) != 2 {
		t.Errorf("all mode: expected 2 quotes, got %d", len(resp.Quotes))
	}
	if resp.Min.Amount != "180.00" {
		t.Errorf("min over all conditions = %s", resp.Min.Amount)
	}
	if env.provider.Calls() != 1 {
		t.Errorf("second request should hit the cache, provider calls = %d", env.provider.Calls())
	}
}

func TestGetPrices_MissingLanguageIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/prices?name=Charizard&set=Base&lang=it", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp pricesResp
	decode(t, w, &resp)
	if len(resp.Quotes) != 0 || resp.Min != nil {
		t.Errorf("expected empty result, got %+v", resp)
	}
	if !strings.Contains(w.Body.String(), `"quotes":[]`) {
		t.Errorf("quotes should encode as an empty list: %s", w.Body.String())
	}
}

func TestGetPrices_BadRequests(t *testing.T) {
	env := newTestEnv(t)
	for _, target := range []string{
		"/api/prices",
		"/api/prices?name=Mew&lang=ja",
		"/api/prices?name=Mew&mode=cheapest",
		"/api/prices/by-language",
	} {
		if w := env.do(t, http.MethodGet, target, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", target, w.Code)
		}
	}
}

func TestByLanguageAndStats(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/prices/by-language?name=Pikachu%20V&set=Scarlet%20%26%20Violet", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var byLang map[model.Language]model.PriceQuote
	decode(t, w, &byLang)
	if len(byLang) != 6 {
		t.Errorf("synthetic fallback covers every language, got %d", len(byLang))
	}
	if byLang[model.LangIT].Source != model.SourceSynthetic {
		t.Errorf("IT source = %s", byLang[model.LangIT].Source)
	}

	w = env.do(t, http.MethodGet, "/api/prices/stats", "")
	var stats struct {
		Total     int      `json:"total"`
		Languages []string `json:"languages"`
	}
	decode(t, w, &stats)
	if stats.Total != 6 || len(stats.Languages) != 6 {
		t.Errorf("stats = %+v", stats)
	}

	env.clock.Advance(31 * time.Minute)
	w = env.do(t, http.MethodPost, "/api/prices/sweep", "")
	if !strings.Contains(w.Body.String(), `"removed":6`) {
		t.Errorf("sweep = %s", w.Body.String())
	}
}

func TestInvalidate(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/prices?name=Charizard&set=Base", "")

	w := env.do(t, http.MethodDelete, "/api/prices?name=charizard&set=base", "")
	if !strings.Contains(w.Body.String(), `"removed":6`) {
		t.Errorf("invalidate = %s", w.Body.String())
	}
	env.do(t, http.MethodGet, "/api/prices?name=Charizard&set=Base", "")
	if env.provider.Calls() != 2 {
		t.Errorf("invalidated card should be refetched, calls = %d", env.provider.Calls())
	}

	if w := env.do(t, http.MethodDelete, "/api/prices", ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing name: status = %d", w.Code)
	}
}

func TestBatch(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/prices/batch",
		`{"cards":[{"name":"Charizard","setName":"Base"},{"name":""},{"name":"Eevee"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Results []struct {
			Card   model.CardKey      `json:"cardKey"`
			Quotes []model.PriceQuote `json:"quotes"`
			Error  string             `json:"error"`
		} `json:"results"`
	}
	decode(t, w, &resp)
	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(resp.Results))
	}
	if resp.Results[0].Card.Name != "Charizard" || len(resp.Results[0].Quotes) != 1 {
		t.Errorf("first result = %+v", resp.Results[0])
	}
	if resp.Results[1].Error == "" {
		t.Error("empty name should carry an error")
	}
	if len(resp.Results[2].Quotes) != 6 {
		t.Errorf("synthetic best-per-language should give 6 quotes, got %d", len(resp.Results[2].Quotes))
	}

	for _, body := range []string{`{`, `{"cards":[]}`, `{"cards":[{"name":"Mew"}],"mode":"x"}`} {
		if w := env.do(t, http.MethodPost, "/api/prices/batch", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", body, w.Code)
		}
	}
}

func TestManual(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/prices/manual",
		`{"name":"Lugia","setName":"Neo Genesis","price":{"language":"fr","condition":"LP","avgPrice":"75.5"}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/api/prices?name=Lugia&set=Neo%20Genesis&lang=fr", "")
	var resp pricesResp
	decode(t, w, &resp)
	if len(resp.Quotes) != 1 || resp.Quotes[0].Source != model.SourceManual {
		t.Errorf("expected the manual quote, got %+v", resp.Quotes)
	}

	w = env.do(t, http.MethodPost, "/api/prices/manual", `{"name":"Lugia","price":{}}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("manual price without amounts: status = %d", w.Code)
	}
}

func TestCardPrices_WriteThrough(t *testing.T) {
	env := newTestEnv(t)
	card := model.Card{UpstreamID: "base1-4", Name: "Charizard", SetName: "Base"}
	if err := env.store.UpsertCard(context.Background(), &card); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodGet, fmt.Sprintf("/api/cards/%d/prices?lang=en", card.ID), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp pricesResp
	decode(t, w, &resp)
	if len(resp.Quotes) != 1 || resp.Quotes[0].Condition != model.CondNM {
		t.Errorf("unexpected quotes %+v", resp.Quotes)
	}

	stored, err := env.store.Card(context.Background(), card.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Prices) != 2 {
		t.Errorf("catalog should hold every condition, got %d quotes", len(stored.Prices))
	}
	if cards := env.provider.Cards(); len(cards) != 1 || cards[0].UpstreamID != "base1-4" {
		t.Errorf("provider should be asked once by upstream id, got %+v", cards)
	}

	if w := env.do(t, http.MethodGet, "/api/cards/999/prices", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown card: status = %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/cards/abc/prices", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d", w.Code)
	}
}

func TestCardPrices_BadViewSkipsWriteThrough(t *testing.T) {
	env := newTestEnv(t)
	card := testutil.NewTestDataFactory(8).GenerateTestCard()
	if err := env.store.UpsertCard(context.Background(), &card); err != nil {
		t.Fatal(err)
	}

	for _, query := range []string{"lang=xx", "mode=cheapest"} {
		w := env.do(t, http.MethodGet, fmt.Sprintf("/api/cards/%d/prices?%s", card.ID, query), "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", query, w.Code)
		}
	}
	if env.provider.Calls() != 0 {
		t.Errorf("invalid view should not reach providers, calls = %d", env.provider.Calls())
	}
	stored, err := env.store.Card(context.Background(), card.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Prices) != 0 {
		t.Errorf("invalid view should not write prices, got %d", len(stored.Prices))
	}
}

func TestExportCSV(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/prices.csv?name=Charizard&set=Base", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %s", ct)
	}
	rows, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	// Header plus both conditions; CSV defaults to every condition.
	if len(rows) != 3 {
		t.Errorf("expected 3 rows, got %d", len(rows))
	}
}
