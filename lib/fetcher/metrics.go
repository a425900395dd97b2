package fetcher

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	attempts metric.Int64Counter
	duration metric.Float64Histogram
}

func newMetrics() *metrics {
	meter := otel.Meter("keiba-scraper/lib/fetcher")

	attempts, err := meter.Int64Counter(
		"fetch.attempts",
		metric.WithDescription("Page navigation attempts by outcome."),
	)
	if err != nil {
		slog.Warn("failed to create fetch counter", "err", err)
	}
	duration, err := meter.Float64Histogram(
		"fetch.duration",
		metric.WithDescription("Navigation duration."),
		metric.WithUnit("s"),
	)
	if err != nil {
		slog.Warn("failed to create fetch histogram", "err", err)
	}
	return &metrics{attempts: attempts, duration: duration}
}

func (m *metrics) record(ctx context.Context, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if m.attempts != nil {
		m.attempts.Add(ctx, 1, attrs)
	}
	if m.duration != nil && d > 0 {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
}
