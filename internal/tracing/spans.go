package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartTierSpan creates a child span for one cache tier lookup, e.g.
// ("master", "memory") or ("master", "snapshot").
func StartTierSpan(ctx context.Context, cacheName, tier string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "cache."+cacheName+"."+tier,
		trace.WithAttributes(
			attribute.String("cache.name", cacheName),
			attribute.String("cache.tier", tier),
		),
	)
}

// StartQuerySpan creates a child span for a fingerprinted query.
func StartQuerySpan(ctx context.Context, kind, fingerprint string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "query."+kind,
		trace.WithAttributes(
			attribute.String("query.kind", kind),
			attribute.String("query.fingerprint", fingerprint),
		),
	)
}

// StartSourceSpan creates a client span for a source-system extraction.
func StartSourceSpan(ctx context.Context, table string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "source.extract",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("source.table", table)),
	)
}

// StartRefreshSpan creates a span for one refresh stage run.
func StartRefreshSpan(ctx context.Context, stage, runID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "refresh."+stage,
		trace.WithAttributes(
			attribute.String("refresh.stage", stage),
			attribute.String("refresh.run_id", runID),
		),
	)
}

// SetCacheHit marks whether the current span was served from cache.
func SetCacheHit(ctx context.Context, hit bool) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("cache.hit", hit))
}

// SetRows records a row count on the current span.
func SetRows(ctx context.Context, rows int) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("rows", rows))
}

// RecordError records an error on the current span and marks it failed.
func RecordError(ctx context.Context, err error) {
	if err != nil {
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
