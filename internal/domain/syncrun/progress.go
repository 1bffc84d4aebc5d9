package syncrun

import "time"

// BatchState is the per-batch lifecycle of a batched historical sync.
type BatchState string

const (
	BatchFetching  BatchState = "fetching"
	BatchParsing   BatchState = "parsing"
	BatchUpserting BatchState = "upserting"
	BatchFlushed   BatchState = "flushed"
	BatchSkipped   BatchState = "skipped"
)

// BatchProgress is emitted on every batch state change.
type BatchProgress struct {
	RunID        string     `json:"run_id"`
	Batch        int        `json:"batch"`
	TotalBatches int        `json:"total_batches"`
	State        BatchState `json:"state"`
	WindowStart  time.Time  `json:"window_start"`
	WindowEnd    time.Time  `json:"window_end"`
	ReportID     string     `json:"report_id,omitempty"`
	BatchCounts  Counters   `json:"batch_counts"`
	Totals       Counters   `json:"totals"`
	Error        string     `json:"error,omitempty"`
}
