package pricing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/guarzo/pkmprices/internal/model"
)

// metrics records through the global meter provider, which is a no-op until
// the binary installs an SDK. Instruments that fail to build stay nil.
type metrics struct {
	cacheHits          metric.Int64Counter
	cacheMisses        metric.Int64Counter
	providerCalls      metric.Int64Counter
	syntheticFallbacks metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter("pricing")
	m := &metrics{}
	if c, err := meter.Int64Counter("pricing.cache.hits",
		metric.WithDescription("Price cache lookups served fresh"),
		metric.WithUnit("{lookup}")); err == nil {
		m.cacheHits = c
	}
	if c, err := meter.Int64Counter("pricing.cache.misses",
		metric.WithDescription("Price cache lookups that were missing or stale"),
		metric.WithUnit("{lookup}")); err == nil {
		m.cacheMisses = c
	}
	if c, err := meter.Int64Counter("pricing.provider.calls",
		metric.WithDescription("Provider lookups by outcome"),
		metric.WithUnit("{call}")); err == nil {
		m.providerCalls = c
	}
	if c, err := meter.Int64Counter("pricing.synthetic.fallbacks",
		metric.WithDescription("Resolutions that fell back to synthetic prices"),
		metric.WithUnit("{resolution}")); err == nil {
		m.syntheticFallbacks = c
	}
	return m
}

func (m *metrics) cacheHit(ctx context.Context, lang model.Language) {
	add(ctx, m.cacheHits, attribute.String("language", string(lang)))
}

func (m *metrics) cacheMiss(ctx context.Context, lang model.Language) {
	add(ctx, m.cacheMisses, attribute.String("language", string(lang)))
}

func (m *metrics) providerCall(ctx context.Context, provider model.Source, outcome string) {
	add(ctx, m.providerCalls,
		attribute.String("provider", string(provider)),
		attribute.String("outcome", outcome),
	)
}

func (m *metrics) syntheticFallback(ctx context.Context) {
	add(ctx, m.syntheticFallbacks)
}

func add(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attrs...))
}
