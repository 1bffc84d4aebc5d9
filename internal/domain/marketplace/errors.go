package marketplace

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Vendor errors
// ---------------------------------------------------------------------------

var (
	ErrNotConfigured      = errors.New("marketplace: vendor credentials not configured")
	ErrRateLimited        = errors.New("marketplace: vendor rate limited")
	ErrTokenExpired       = errors.New("marketplace: pagination token expired")
	ErrUnauthorized       = errors.New("marketplace: vendor authorization failed")
	ErrDuplicateReport    = errors.New("marketplace: duplicate report request")
	ErrVendorUnavailable  = errors.New("marketplace: vendor temporarily unavailable")
	ErrInvalidResponse    = errors.New("marketplace: invalid vendor response")
	ErrReportFailed       = errors.New("marketplace: report failed")
	ErrReportTimedOut     = errors.New("marketplace: report polling timed out")
	ErrReportNotAvailable = errors.New("marketplace: report document not available")
)

// ReportFailedError is returned when the vendor settles a report in a
// failure state. Such a report is never polled again.
type ReportFailedError struct {
	ReportID string
	Status   ReportStatus
	Reason   string
}

func (e *ReportFailedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("marketplace: report %s ended %s: %s", e.ReportID, e.Status, e.Reason)
	}
	return fmt.Sprintf("marketplace: report %s ended %s", e.ReportID, e.Status)
}

// Is matches ErrReportFailed.
func (e *ReportFailedError) Is(target error) bool {
	return target == ErrReportFailed
}

// ReportTimedOutError is returned when the poll budget is exhausted while the
// report is still processing. The report id stays valid and polling may be
// resumed later.
type ReportTimedOutError struct {
	ReportID string
	Attempts int
	Last     ReportStatus
}

func (e *ReportTimedOutError) Error() string {
	return fmt.Sprintf("marketplace: report %s still %s after %d polls", e.ReportID, e.Last, e.Attempts)
}

// Is matches ErrReportTimedOut.
func (e *ReportTimedOutError) Is(target error) bool {
	return target == ErrReportTimedOut
}

// IsTransient reports whether err is worth retrying later without any
// change of input.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrVendorUnavailable)
}
