package spapi

import (
	"context"
	"time"

	"github.com/erp/sellersync/internal/domain/marketplace"
	"github.com/erp/sellersync/internal/domain/shared"
	"go.uber.org/zap"
)

const (
	// DefaultPollInterval is the wait between report status polls
	DefaultPollInterval = 30 * time.Second
	// DefaultMaxPollAttempts bounds polling to twelve hours at the default interval
	DefaultMaxPollAttempts = 1440
)

// ReportAPI is the subset of the vendor client the lifecycle needs.
type ReportAPI interface {
	CreateReport(ctx context.Context, reportType string, window shared.DateRange) (string, error)
	GetReport(ctx context.Context, reportID string) (*marketplace.ReportStatusResult, error)
	DownloadDocument(ctx context.Context, documentID string) ([]byte, error)
}

var _ ReportAPI = (*Client)(nil)

// ReportLifecycle wraps create, poll, download and decompress into one
// blocking call, while still allowing the request and the wait to happen in
// different invocations.
type ReportLifecycle struct {
	api          ReportAPI
	pollInterval time.Duration
	maxAttempts  int
	logger       *zap.Logger
	sleep        func(ctx context.Context, d time.Duration) error
}

// LifecycleOption configures a ReportLifecycle.
type LifecycleOption func(*ReportLifecycle)

// WithPollInterval sets the wait between polls.
func WithPollInterval(d time.Duration) LifecycleOption {
	return func(l *ReportLifecycle) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

// WithMaxPollAttempts bounds the number of polls per Await.
func WithMaxPollAttempts(n int) LifecycleOption {
	return func(l *ReportLifecycle) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// WithLifecycleLogger sets the logger.
func WithLifecycleLogger(logger *zap.Logger) LifecycleOption {
	return func(l *ReportLifecycle) {
		l.logger = logger
	}
}

// WithSleeper replaces the context-aware wait between polls.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) LifecycleOption {
	return func(l *ReportLifecycle) {
		l.sleep = sleep
	}
}

// NewReportLifecycle creates a lifecycle over api.
func NewReportLifecycle(api ReportAPI, opts ...LifecycleOption) *ReportLifecycle {
	l := &ReportLifecycle{
		api:          api,
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxPollAttempts,
		logger:       zap.NewNop(),
		sleep:        marketplace.SleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ marketplace.ReportFetcher = (*ReportLifecycle)(nil)

// Request creates the report and returns its id.
func (l *ReportLifecycle) Request(ctx context.Context, reportType string, window shared.DateRange) (string, error) {
	return l.api.CreateReport(ctx, reportType, window)
}

// Poll returns the current status of a report.
func (l *ReportLifecycle) Poll(ctx context.Context, reportID string) (*marketplace.ReportStatusResult, error) {
	return l.api.GetReport(ctx, reportID)
}

// Download fetches and decompresses a finished report document.
func (l *ReportLifecycle) Download(ctx context.Context, documentID string) ([]byte, error) {
	return l.api.DownloadDocument(ctx, documentID)
}

// Await polls reportID until it settles and returns the document contents.
// A CANCELLED or FATAL report yields *marketplace.ReportFailedError; an
// exhausted poll budget yields *marketplace.ReportTimedOutError, after which
// the same id may be awaited again. Rate limits and vendor outages while
// polling count toward the budget and back off before the next poll.
func (l *ReportLifecycle) Await(ctx context.Context, reportID string) ([]byte, error) {
	last := marketplace.ReportStatusInQueue
	transient := 0
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		status, err := l.api.GetReport(ctx, reportID)
		switch {
		case err != nil && !marketplace.IsTransient(err):
			return nil, err
		case err != nil:
			transient++
			l.logger.Warn("report poll throttled",
				zap.String("report_id", reportID),
				zap.Int("attempt", attempt),
				zap.Error(err))
		case status.Status == marketplace.ReportStatusDone:
			if status.DocumentID == "" {
				return nil, &marketplace.ReportFailedError{ReportID: reportID, Status: status.Status, Reason: "no document id"}
			}
			l.logger.Debug("report ready",
				zap.String("report_id", reportID),
				zap.Int("polls", attempt))
			return l.api.DownloadDocument(ctx, status.DocumentID)
		case status.Status.IsFailure():
			return nil, &marketplace.ReportFailedError{ReportID: reportID, Status: status.Status, Reason: status.FailureReason}
		default:
			transient = 0
			last = status.Status
		}

		if attempt < l.maxAttempts {
			if err := l.sleep(ctx, pollBackoff(l.pollInterval, transient)); err != nil {
				return nil, err
			}
		}
	}

	l.logger.Warn("report poll budget exhausted",
		zap.String("report_id", reportID),
		zap.Int("attempts", l.maxAttempts),
		zap.String("status", last.String()))
	return nil, &marketplace.ReportTimedOutError{ReportID: reportID, Attempts: l.maxAttempts, Last: last}
}

// maxPollBackoff caps the doubling after consecutive throttled polls.
const maxPollBackoff = 8

func pollBackoff(interval time.Duration, transient int) time.Duration {
	factor := 1
	for i := 0; i < transient && factor < maxPollBackoff; i++ {
		factor *= 2
	}
	return interval * time.Duration(factor)
}

// Fetch requests a report and waits for it.
func (l *ReportLifecycle) Fetch(ctx context.Context, reportType string, window shared.DateRange) (string, []byte, error) {
	id, err := l.Request(ctx, reportType, window)
	if err != nil {
		return "", nil, err
	}
	data, err := l.Await(ctx, id)
	return id, data, err
}
