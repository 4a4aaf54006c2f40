// Package api exposes the pricing service over HTTP.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/guarzo/pkmprices/internal/cache"
	"github.com/guarzo/pkmprices/internal/catalog"
	"github.com/guarzo/pkmprices/internal/model"
	"github.com/guarzo/pkmprices/internal/pricing"
	"github.com/guarzo/pkmprices/internal/report"
	"github.com/guarzo/pkmprices/internal/selector"
)

// MaxBatchCards caps POST /prices/batch.
const MaxBatchCards = 500

// Pricer is the pricing surface the handlers need; *pricing.Service implements it.
type Pricer interface {
	Resolve(ctx context.Context, req pricing.ResolveRequest) ([]model.PriceQuote, error)
	ResolveByLanguage(ctx context.Context, name, setName string) (map[model.Language]model.PriceQuote, error)
	BatchResolve(ctx context.Context, items []pricing.BatchItem, mode pricing.Mode) []pricing.BatchResult
	CacheStats() cache.Stats
	ClearExpiredCache() int
	Invalidate(name, setName string) int
	SetManual(key model.CardKey, mp pricing.ManualPrice) (model.PriceQuote, error)
}

type Handler struct {
	Pricer Pricer
	// Store is optional; without it the catalog routes answer 404.
	Store catalog.Store
}

func NewHandler(p Pricer, store catalog.Store) *Handler {
	return &Handler{Pricer: p, Store: store}
}

// NewRouter builds the engine with /health and the /api group.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), gin.Logger())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	h.RegisterRoutes(r.Group("/api"))
	return r
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/prices", h.getPrices)
	rg.DELETE("/prices", h.invalidate)
	rg.GET("/prices.csv", h.exportCSV)
	rg.GET("/prices/by-language", h.byLanguage)
	rg.GET("/prices/stats", h.stats)
	rg.POST("/prices/sweep", h.sweep)
	rg.POST("/prices/batch", h.batch)
	rg.POST("/prices/manual", h.manual)
	rg.GET("/cards/:id/prices", h.cardPrices)
}

type minPrice struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func summarize(quotes []model.PriceQuote) *minPrice {
	amount, currency, ok := selector.MinPrice(quotes)
	if !ok {
		return nil
	}
	return &minPrice{Amount: amount.StringFixed(2), Currency: currency}
}

func requestFromQuery(c *gin.Context) pricing.ResolveRequest {
	return pricing.ResolveRequest{
		Name:     c.Query("name"),
		SetName:  c.Query("set"),
		Language: c.Query("lang"),
		Mode:     pricing.Mode(c.Query("mode")),
	}
}

func (h *Handler) getPrices(c *gin.Context) {
	quotes, err := h.Pricer.Resolve(c.Request.Context(), requestFromQuery(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quotes": nonNil(quotes), "min": summarize(quotes)})
}

func (h *Handler) byLanguage(c *gin.Context) {
	byLang, err := h.Pricer.ResolveByLanguage(c.Request.Context(), c.Query("name"), c.Query("set"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, byLang)
}

func (h *Handler) stats(c *gin.Context) {
	s := h.Pricer.CacheStats()
	c.JSON(http.StatusOK, gin.H{"total": s.Total, "languages": s.Languages})
}

func (h *Handler) sweep(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"removed": h.Pricer.ClearExpiredCache()})
}

func (h *Handler) invalidate(c *gin.Context) {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": h.Pricer.Invalidate(name, c.Query("set"))})
}

type batchReq struct {
	Cards []pricing.BatchItem `json:"cards"`
	Mode  string              `json:"mode"`
}

func (h *Handler) batch(c *gin.Context) {
	var req batchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(req.Cards) == 0 || len(req.Cards) > MaxBatchCards {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("cards must hold 1-%d entries", MaxBatchCards)})
		return
	}
	mode, ok := pricing.ParseMode(req.Mode)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be best or all"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": h.Pricer.BatchResolve(c.Request.Context(), req.Cards, mode)})
}

type manualReq struct {
	Name    string              `json:"name"`
	SetName string              `json:"setName"`
	Price   pricing.ManualPrice `json:"price"`
}

func (h *Handler) manual(c *gin.Context) {
	var req manualReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	q, err := h.Pricer.SetManual(model.CardKey{Name: req.Name, SetName: req.SetName}, req.Price)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

// cardPrices resolves a catalog card and writes every condition back to the
// catalog before answering with the requested view.
func (h *Handler) cardPrices(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid card id"})
		return
	}
	if h.Store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "catalog not configured"})
		return
	}

	ctx := c.Request.Context()
	card, err := h.Store.Card(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}

	view := pricing.ResolveRequest{
		Name:       card.Name,
		SetName:    card.SetName,
		UpstreamID: card.UpstreamID,
		Language:   c.Query("lang"),
		Mode:       pricing.Mode(c.Query("mode")),
	}
	if err := view.Validate(); err != nil {
		writeError(c, err)
		return
	}

	all, err := h.Pricer.Resolve(ctx, pricing.ResolveRequest{
		Name:       card.Name,
		SetName:    card.SetName,
		UpstreamID: card.UpstreamID,
		Mode:       pricing.ModeAll,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.Store.SavePrices(ctx, card.ID, all); err != nil {
		log.Printf("API: write-through for card %d failed: %v", card.ID, err)
	}

	quotes, err := h.Pricer.Resolve(ctx, view)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"card":   gin.H{"id": card.ID, "name": card.Name, "setName": card.SetName, "upstreamId": card.UpstreamID},
		"quotes": nonNil(quotes),
		"min":    summarize(quotes),
	})
}

func (h *Handler) exportCSV(c *gin.Context) {
	req := requestFromQuery(c)
	if req.Mode == "" {
		req.Mode = pricing.ModeAll
	}
	quotes, err := h.Pricer.Resolve(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteQuotes(&buf, quotes); err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="prices.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pricing.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
	default:
		log.Printf("API: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func nonNil(quotes []model.PriceQuote) []model.PriceQuote {
	if quotes == nil {
		return []model.PriceQuote{}
	}
	return quotes
}
