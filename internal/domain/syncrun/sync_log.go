package syncrun

import (
	"time"

	"github.com/erp/sellersync/internal/domain/shared"
	"github.com/google/uuid"
)

// SyncType names a kind of sync run.
type SyncType string

const (
	SyncTypeOrdersHistorical  SyncType = "orders_historical"
	SyncTypeOrdersIncremental SyncType = "orders_incremental"
	SyncTypeFinancialEvents   SyncType = "financial_events"
	SyncTypeFbaShipments      SyncType = "fba_shipments"
	SyncTypeFbaInventory      SyncType = "fba_inventory"
	SyncTypeReturns           SyncType = "returns"
	SyncTypeDailyProfit       SyncType = "daily_profit"
)

func (t SyncType) String() string {
	return string(t)
}

// Status is the closed set of sync run states.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// IsFinal returns true once the run has ended
func (s Status) IsFinal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Counters are the cumulative record counts of a run.
type Counters struct {
	Processed int `gorm:"column:records_processed;not null;default:0" json:"records_processed"`
	Created   int `gorm:"column:records_created;not null;default:0" json:"records_created"`
	Updated   int `gorm:"column:records_updated;not null;default:0" json:"records_updated"`
	Skipped   int `gorm:"column:records_skipped;not null;default:0" json:"records_skipped"`
	Failed    int `gorm:"column:records_failed;not null;default:0" json:"records_failed"`
}

// Add folds other into c.
func (c *Counters) Add(other Counters) {
	c.Processed += other.Processed
	c.Created += other.Created
	c.Updated += other.Updated
	c.Skipped += other.Skipped
	c.Failed += other.Failed
}

// Checkpoint is the resumable position of a batched run.
type Checkpoint struct {
	RangeStart    *time.Time `json:"range_start,omitempty"`
	RangeEnd      *time.Time `json:"range_end,omitempty"`
	TotalDays     int        `gorm:"not null;default:0" json:"total_days"`
	BatchSizeDays int        `gorm:"not null;default:0" json:"batch_size_days"`
	TotalBatches  int        `gorm:"not null;default:0" json:"total_batches"`
	NextBatch     int        `gorm:"not null;default:0" json:"next_batch"`
	NewestFirst   bool       `gorm:"not null;default:false" json:"newest_first"`
	FailedBatches int        `gorm:"not null;default:0" json:"failed_batches"`
}

// Done reports whether every batch has been attempted.
func (c *Checkpoint) Done() bool {
	return c.NextBatch >= c.TotalBatches
}

// SyncLog records one run of one sync type.
type SyncLog struct {
	shared.BaseEntity
	SyncType     SyncType   `gorm:"size:32;not null;index"`
	Status       Status     `gorm:"size:16;not null;index"`
	StartedAt    time.Time  `gorm:"not null"`
	CompletedAt  *time.Time
	ErrorMessage string     `gorm:"type:text"`
	JobID        *uuid.UUID `gorm:"type:uuid;index"`
	Counters     Counters   `gorm:"embedded"`
	Checkpoint   Checkpoint `gorm:"embedded"`
}

// TableName returns the table name for GORM
func (SyncLog) TableName() string {
	return "sync_logs"
}

// NewSyncLog creates a running log for the given type.
func NewSyncLog(syncType SyncType, now time.Time) *SyncLog {
	return &SyncLog{
		BaseEntity: shared.NewBaseEntity(),
		SyncType:   syncType,
		Status:     StatusRunning,
		StartedAt:  now,
	}
}

// Succeed marks the run successful.
func (l *SyncLog) Succeed(now time.Time) {
	l.Status = StatusSuccess
	l.CompletedAt = &now
	l.ErrorMessage = ""
}

// Fail marks the run failed with the given error.
func (l *SyncLog) Fail(err error, now time.Time) {
	l.Status = StatusFailed
	l.CompletedAt = &now
	if err != nil {
		l.ErrorMessage = err.Error()
	}
}

// Resumable reports whether a later invocation may pick this run up again.
func (l *SyncLog) Resumable() bool {
	return l.Status != StatusSuccess && !l.Checkpoint.Done()
}
