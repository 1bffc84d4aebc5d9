package job

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the handler a job is dispatched to.
type Type string

const (
	TypeOrdersHistorical  Type = "orders_historical"
	TypeOrdersIncremental Type = "orders_incremental"
	TypeFinancialEvents   Type = "financial_events"
	TypeFbaShipments      Type = "fba_shipments"
	TypeFbaShipmentsPurge Type = "fba_shipments_purge"
	TypeFbaInventory      Type = "fba_inventory"
	TypeReturns           Type = "returns"
	TypeProfitRebuild     Type = "profit_rebuild"
	TypeProfitExport      Type = "profit_export"
)

// Status is the lifecycle state of a queued job.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// IsTerminal reports whether the job will never run again.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Job is the durable record of one unit of background work. Payload,
// Progress and Result hold JSON documents.
type Job struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	Type            Type      `gorm:"size:32;not null;index"`
	Status          Status    `gorm:"size:16;not null;index:idx_sync_jobs_due,priority:1"`
	Payload         string    `gorm:"type:text"`
	Attempts        int       `gorm:"not null;default:0"`
	MaxAttempts     int       `gorm:"not null;default:1"`
	NextRunAt       time.Time `gorm:"not null;index:idx_sync_jobs_due,priority:2"`
	StartedAt       *time.Time
	CompletedAt     *time.Time
	LastError       string `gorm:"type:text"`
	Progress        string `gorm:"type:text"`
	Result          string `gorm:"type:text"`
	CancelRequested bool   `gorm:"not null;default:false"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName returns the table name for GORM
func (Job) TableName() string {
	return "sync_jobs"
}

// New creates a pending job due immediately.
func New(jobType Type, payload []byte, maxAttempts int, now time.Time) *Job {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Job{
		ID:          uuid.New(),
		Type:        jobType,
		Status:      StatusPending,
		Payload:     string(payload),
		MaxAttempts: maxAttempts,
		NextRunAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// AttemptsLeft reports whether a failed attempt may be retried.
func (j *Job) AttemptsLeft() bool {
	return j.Attempts < j.MaxAttempts
}
