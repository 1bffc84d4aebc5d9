package syncrun

import (
	"time"

	"github.com/erp/sellersync/internal/domain/shared"
	"github.com/google/uuid"
)

// PendingReportStatus tracks a requested vendor report.
type PendingReportStatus string

const (
	PendingReportRequested PendingReportStatus = "requested"
	PendingReportDone      PendingReportStatus = "done"
	PendingReportFailed    PendingReportStatus = "failed"
	PendingReportTimedOut  PendingReportStatus = "timed_out"
)

// PendingReport remembers the vendor report requested for one batch of a
// run, so an interrupted run resumes polling instead of requesting again.
type PendingReport struct {
	shared.BaseEntity
	SyncLogID  uuid.UUID           `gorm:"type:uuid;not null;index:idx_pending_report_batch,priority:1"`
	BatchIndex int                 `gorm:"not null;index:idx_pending_report_batch,priority:2"`
	ReportType string              `gorm:"size:96;not null"`
	ReportID   string              `gorm:"size:64;not null"`
	RangeStart time.Time           `gorm:"not null"`
	RangeEnd   time.Time           `gorm:"not null"`
	Status     PendingReportStatus `gorm:"size:16;not null"`
	Error      string              `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (PendingReport) TableName() string {
	return "pending_reports"
}

// NewPendingReport creates a requested pending report.
func NewPendingReport(logID uuid.UUID, batch int, reportType, reportID string, window shared.DateRange) *PendingReport {
	return &PendingReport{
		BaseEntity: shared.NewBaseEntity(),
		SyncLogID:  logID,
		BatchIndex: batch,
		ReportType: reportType,
		ReportID:   reportID,
		RangeStart: window.Start,
		RangeEnd:   window.End,
		Status:     PendingReportRequested,
	}
}
