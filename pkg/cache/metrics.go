package cache

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder observes loader behavior. All methods must be safe for
// concurrent use. A Loader falls back to a no-op recorder when none is
// configured.
type MetricsRecorder interface {
	IncLoaderInvocation(ctx context.Context, name string)
	IncCacheHit(ctx context.Context, name string)
	IncCacheStale(ctx context.Context, name string)
	IncCacheMiss(ctx context.Context, name string)
}

type noopMetrics struct{}

func (noopMetrics) IncLoaderInvocation(context.Context, string) {}
func (noopMetrics) IncCacheHit(context.Context, string)         {}
func (noopMetrics) IncCacheStale(context.Context, string)       {}
func (noopMetrics) IncCacheMiss(context.Context, string)        {}

// OtelMetrics records loader counters through an OpenTelemetry Meter.
type OtelMetrics struct {
	invocations metric.Int64Counter
	hits        metric.Int64Counter
	stale       metric.Int64Counter
	misses      metric.Int64Counter
}

// NewOtelMetrics builds an OtelMetrics recorder from meter, registering its
// four counters.
func NewOtelMetrics(meter metric.Meter) (*OtelMetrics, error) {
	invocations, err := meter.Int64Counter("racecache.loader.invocations",
		metric.WithDescription("number of times a loader function was actually invoked"))
	if err != nil {
		return nil, err
	}
	hits, err := meter.Int64Counter("racecache.cache.hits",
		metric.WithDescription("number of Load calls served from a fresh cached entry"))
	if err != nil {
		return nil, err
	}
	stale, err := meter.Int64Counter("racecache.cache.stale",
		metric.WithDescription("number of Load calls served a stale entry while refreshing in the background"))
	if err != nil {
		return nil, err
	}
	misses, err := meter.Int64Counter("racecache.cache.misses",
		metric.WithDescription("number of Load calls that found no usable cached entry"))
	if err != nil {
		return nil, err
	}
	return &OtelMetrics{invocations: invocations, hits: hits, stale: stale, misses: misses}, nil
}

func (m *OtelMetrics) IncLoaderInvocation(ctx context.Context, name string) {
	m.invocations.Add(ctx, 1, metric.WithAttributes(attribute.String("loader", name)))
}

func (m *OtelMetrics) IncCacheHit(ctx context.Context, name string) {
	m.hits.Add(ctx, 1, metric.WithAttributes(attribute.String("loader", name)))
}

func (m *OtelMetrics) IncCacheStale(ctx context.Context, name string) {
	m.stale.Add(ctx, 1, metric.WithAttributes(attribute.String("loader", name)))
}

func (m *OtelMetrics) IncCacheMiss(ctx context.Context, name string) {
	m.misses.Add(ctx, 1, metric.WithAttributes(attribute.String("loader", name)))
}
