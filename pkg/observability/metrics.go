package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricContainersTotal   = "chunkmap.containers.total"
	metricChunksLoaded      = "chunkmap.chunks.loaded.total"
	metricChunksFailed      = "chunkmap.chunks.failed.total"
	metricContainerDuration = "chunkmap.container.duration.seconds"
	metricCacheLookups      = "chunkmap.cache.lookups.total"

	attrStatus = "status"
	attrResult = "result"
)

// Container outcome labels.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Cache lookup outcome labels.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// durationBucketBoundaries covers 1ms to 30s; a region file rarely takes
// longer than a few seconds.
var durationBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// ScanMetrics holds the OTel instruments for a directory scan.
type ScanMetrics struct {
	containersTotal   metric.Int64Counter
	chunksLoaded      metric.Int64Counter
	chunksFailed      metric.Int64Counter
	containerDuration metric.Float64Histogram
	cacheLookups      metric.Int64Counter
}

// NewScanMetrics creates scan metric instruments from the given meter.
func NewScanMetrics(mt metric.Meter) (*ScanMetrics, error) {
	containers, err := mt.Int64Counter(metricContainersTotal,
		metric.WithDescription("Region files processed"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricContainersTotal, err)
	}

	loaded, err := mt.Int64Counter(metricChunksLoaded,
		metric.WithDescription("Chunks decoded as loaded"),
		metric.WithUnit("{chunk}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricChunksLoaded, err)
	}

	failed, err := mt.Int64Counter(metricChunksFailed,
		metric.WithDescription("Chunks whose document lacked an expected field"),
		metric.WithUnit("{chunk}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricChunksFailed, err)
	}

	duration, err := mt.Float64Histogram(metricContainerDuration,
		metric.WithDescription("Region file decode duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricContainerDuration, err)
	}

	lookups, err := mt.Int64Counter(metricCacheLookups,
		metric.WithDescription("Snapshot cache lookups"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCacheLookups, err)
	}

	return &ScanMetrics{
		containersTotal:   containers,
		chunksLoaded:      loaded,
		chunksFailed:      failed,
		containerDuration: duration,
		cacheLookups:      lookups,
	}, nil
}

// RecordContainer records one decoded (or failed) region file.
func (sm *ScanMetrics) RecordContainer(ctx context.Context, status string, loaded, failed int, duration time.Duration) {
	sm.containersTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
	sm.containerDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(attrStatus, status)))

	if loaded > 0 {
		sm.chunksLoaded.Add(ctx, int64(loaded))
	}

	if failed > 0 {
		sm.chunksFailed.Add(ctx, int64(failed))
	}
}

// RecordCacheLookup records a snapshot lookup outcome.
func (sm *ScanMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	result := CacheMiss
	if hit {
		result = CacheHit
	}

	sm.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}
