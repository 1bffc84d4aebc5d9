package syncrun

import (
	"context"
	"time"
)

// Recorder receives run outcomes for metrics.
type Recorder interface {
	RecordRun(ctx context.Context, syncType SyncType, status Status, elapsed time.Duration)
	RecordCounters(ctx context.Context, syncType SyncType, counters Counters)
}

// NopRecorder discards everything.
type NopRecorder struct{}

// RecordRun implements Recorder.
func (NopRecorder) RecordRun(context.Context, SyncType, Status, time.Duration) {}

// RecordCounters implements Recorder.
func (NopRecorder) RecordCounters(context.Context, SyncType, Counters) {}
