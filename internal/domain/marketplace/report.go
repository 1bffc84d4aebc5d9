package marketplace

import (
	"context"
	"time"

	"github.com/erp/sellersync/internal/domain/shared"
)

// Report types used by the sync services.
const (
	ReportTypeOrdersByOrderDate  = "GET_FLAT_FILE_ALL_ORDERS_DATA_BY_ORDER_DATE_GENERAL"
	ReportTypeOrdersByLastUpdate = "GET_FLAT_FILE_ALL_ORDERS_DATA_BY_LAST_UPDATE_GENERAL"
	ReportTypeCustomerReturns    = "GET_FBA_FULFILLMENT_CUSTOMER_RETURNS_DATA"
)

// ReportStatus is the vendor processing status of a report.
type ReportStatus string

const (
	ReportStatusInQueue    ReportStatus = "IN_QUEUE"
	ReportStatusInProgress ReportStatus = "IN_PROGRESS"
	ReportStatusDone       ReportStatus = "DONE"
	ReportStatusCancelled  ReportStatus = "CANCELLED"
	ReportStatusFatal      ReportStatus = "FATAL"
)

// IsTerminal returns true once the vendor will not change the status again.
func (s ReportStatus) IsTerminal() bool {
	return s == ReportStatusDone || s.IsFailure()
}

// IsFailure returns true for terminal states that produce no report data.
func (s ReportStatus) IsFailure() bool {
	return s == ReportStatusCancelled || s == ReportStatusFatal
}

func (s ReportStatus) String() string {
	return string(s)
}

// ReportStatusResult is one poll observation.
type ReportStatusResult struct {
	ReportID      string
	Status        ReportStatus
	DocumentID    string
	FailureReason string
}

// ReportFetcher drives the create → poll → download lifecycle of an
// asynchronous report. Request and Await are split so a caller can persist
// the report id between them and resume polling after an interruption.
type ReportFetcher interface {
	Request(ctx context.Context, reportType string, window shared.DateRange) (string, error)
	Await(ctx context.Context, reportID string) ([]byte, error)
}

// ReportArchive keeps a copy of every downloaded report document.
type ReportArchive interface {
	Store(ctx context.Context, reportType, reportID string, data []byte) error
}

// NopArchive discards documents.
type NopArchive struct{}

// Store implements ReportArchive.
func (NopArchive) Store(context.Context, string, string, []byte) error { return nil }

// Clock returns the current time. Services take one so tests can pin "now".
type Clock func() time.Time

// Sleeper waits for d or until ctx is done. Services take one so tests
// can skip the waits between vendor calls.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
