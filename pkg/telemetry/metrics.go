package telemetry

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments are created from the global meter provider, which delegates
// to whatever provider Init installs later.
var (
	instrumentsOnce sync.Once
	cacheRequests   metric.Int64Counter
	apiRequests     metric.Int64Counter
	syncChannels    metric.Int64Counter
)

func instruments() {
	instrumentsOnce.Do(func() {
		meter := otel.Meter(instrumentationName)
		cacheRequests, _ = meter.Int64Counter("cache.requests",
			metric.WithDescription("Cache lookups by category and result (fresh, stale, miss, fallback)"))
		apiRequests, _ = meter.Int64Counter("youtube.requests",
			metric.WithDescription("Live calls to the video-data API by endpoint and HTTP status"))
		syncChannels, _ = meter.Int64Counter("sync.channels",
			metric.WithDescription("Channel synchronizations by mode and outcome"))
	})
}

// RecordCacheResult counts a cache lookup
func RecordCacheResult(ctx context.Context, category, result string) {
	instruments()
	if cacheRequests == nil {
		return
	}
	cacheRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("result", result),
	))
}

// RecordAPIRequest counts a live API call; status 0 means no response
func RecordAPIRequest(ctx context.Context, endpoint string, status int) {
	instruments()
	if apiRequests == nil {
		return
	}
	apiRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status", strconv.Itoa(status)),
	))
}

// RecordSyncOutcome counts a finished channel sync
func RecordSyncOutcome(ctx context.Context, mode, outcome string) {
	instruments()
	if syncChannels == nil {
		return
	}
	syncChannels.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	))
}
