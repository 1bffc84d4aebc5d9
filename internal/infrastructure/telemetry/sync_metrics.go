package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erp/sellersync/internal/domain/syncrun"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetrics records sync runs, their counters and vendor calls.
// It implements syncrun.Recorder and spapi.RequestObserver.
type SyncMetrics struct {
	runsTotal       *Counter   // sync_runs_total
	runDuration     *Histogram // sync_run_duration_seconds
	recordsTotal    *Counter   // sync_records_total
	vendorRequests  *Counter   // vendor_requests_total
	vendorThrottled *Counter   // vendor_throttled_total
}

// NewSyncMetrics creates the sync instruments on meter.
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	runsTotal, err := NewCounter(meter, "sync_runs_total", "Finished sync runs by type and status", "{run}")
	if err != nil {
		return nil, err
	}
	runDuration, err := NewHistogram(meter, "sync_run_duration_seconds", "Wall-clock duration of sync runs", "s", SyncDurationBuckets...)
	if err != nil {
		return nil, err
	}
	recordsTotal, err := NewCounter(meter, "sync_records_total", "Records handled by sync runs by outcome", "{record}")
	if err != nil {
		return nil, err
	}
	vendorRequests, err := NewCounter(meter, "vendor_requests_total", "Selling-partner API requests by operation and status", "{request}")
	if err != nil {
		return nil, err
	}
	vendorThrottled, err := NewCounter(meter, "vendor_throttled_total", "Selling-partner API requests answered with 429", "{request}")
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		runsTotal:       runsTotal,
		runDuration:     runDuration,
		recordsTotal:    recordsTotal,
		vendorRequests:  vendorRequests,
		vendorThrottled: vendorThrottled,
	}, nil
}

// RecordRun implements syncrun.Recorder.
func (m *SyncMetrics) RecordRun(ctx context.Context, syncType syncrun.SyncType, status syncrun.Status, elapsed time.Duration) {
	attrs := []attribute.KeyValue{
		AttrSyncType.String(string(syncType)),
		AttrSyncStatus.String(string(status)),
	}
	m.runsTotal.Inc(ctx, attrs...)
	m.runDuration.RecordDuration(ctx, elapsed, attrs...)
}

// RecordCounters implements syncrun.Recorder.
func (m *SyncMetrics) RecordCounters(ctx context.Context, syncType syncrun.SyncType, c syncrun.Counters) {
	typ := AttrSyncType.String(string(syncType))
	m.recordsTotal.Add(ctx, int64(c.Processed), typ, AttrOutcome.String("processed"))
	m.recordsTotal.Add(ctx, int64(c.Created), typ, AttrOutcome.String("created"))
	m.recordsTotal.Add(ctx, int64(c.Updated), typ, AttrOutcome.String("updated"))
	m.recordsTotal.Add(ctx, int64(c.Skipped), typ, AttrOutcome.String("skipped"))
	m.recordsTotal.Add(ctx, int64(c.Failed), typ, AttrOutcome.String("failed"))
}

// ObserveVendorRequest implements spapi.RequestObserver.
func (m *SyncMetrics) ObserveVendorRequest(ctx context.Context, operation string, statusCode int) {
	op := AttrOperation.String(operation)
	m.vendorRequests.Inc(ctx, op, AttrStatusCode.Int(statusCode))
	if statusCode == 429 {
		m.vendorThrottled.Inc(ctx, op)
	}
}

// RegisterPoolMetrics reports database connection pool usage on every
// collection.
func RegisterPoolMetrics(meter metric.Meter, db *sql.DB) error {
	conns, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Number of connections in the pool by state"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create gauge db_pool_connections: %w", err)
	}
	waits, err := meter.Int64ObservableCounter("db_pool_wait_total",
		metric.WithDescription("Connections waited for because the pool was exhausted"),
		metric.WithUnit("{wait}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create counter db_pool_wait_total: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := db.Stats()
		o.ObserveInt64(conns, int64(stats.InUse), metric.WithAttributes(AttrPoolState.String("in_use")))
		o.ObserveInt64(conns, int64(stats.Idle), metric.WithAttributes(AttrPoolState.String("idle")))
		o.ObserveInt64(conns, int64(stats.MaxOpenConnections), metric.WithAttributes(AttrPoolState.String("max")))
		o.ObserveInt64(waits, stats.WaitCount)
		return nil
	}, conns, waits)
	if err != nil {
		return fmt.Errorf("failed to register pool callback: %w", err)
	}
	return nil
}
