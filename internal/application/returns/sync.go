// Package returns imports the FBA customer returns report.
package returns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/sellersync/internal/domain/catalog"
	"github.com/erp/sellersync/internal/domain/marketplace"
	"github.com/erp/sellersync/internal/domain/sales"
	"github.com/erp/sellersync/internal/domain/shared"
	"github.com/erp/sellersync/internal/domain/syncrun"
	"github.com/erp/sellersync/internal/infrastructure/reportparser"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultLookback is how far back a run asks for returns when none is given.
const DefaultLookback = 30 * 24 * time.Hour

// Sync mirrors customer returns and flags the affected orders as returned.
type Sync struct {
	reports  marketplace.ReportFetcher
	returns  sales.ReturnRepository
	orders   sales.OrderRepository
	products catalog.ProductRepository
	logs     syncrun.Repository
	archive  marketplace.ReportArchive
	recorder syncrun.Recorder
	logger   *zap.Logger
	now      marketplace.Clock
}

// Option configures a Sync.
type Option func(*Sync)

// WithClock overrides the time source.
func WithClock(clock marketplace.Clock) Option {
	return func(s *Sync) { s.now = clock }
}

// WithArchive keeps a copy of each downloaded report.
func WithArchive(a marketplace.ReportArchive) Option {
	return func(s *Sync) { s.archive = a }
}

// WithRecorder reports run metrics to r.
func WithRecorder(r syncrun.Recorder) Option {
	return func(s *Sync) { s.recorder = r }
}

// NewSync creates a new Sync
func NewSync(
	reports marketplace.ReportFetcher,
	returns sales.ReturnRepository,
	orders sales.OrderRepository,
	products catalog.ProductRepository,
	logs syncrun.Repository,
	logger *zap.Logger,
	opts ...Option,
) *Sync {
	s := &Sync{
		reports:  reports,
		returns:  returns,
		orders:   orders,
		products: products,
		logs:     logs,
		archive:  marketplace.NopArchive{},
		recorder: syncrun.NopRecorder{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run imports returns reported in the last lookback.
func (s *Sync) Run(ctx context.Context, lookback time.Duration, jobID *uuid.UUID) (*syncrun.SyncLog, error) {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	started := s.now().UTC()
	run := syncrun.NewSyncLog(syncrun.SyncTypeReturns, started)
	run.JobID = jobID
	if err := s.logs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create sync log: %w", err)
	}

	err := s.importWindow(ctx, run, shared.DateRange{Start: started.Add(-lookback), End: started})
	if err != nil {
		run.Fail(err, s.now())
	} else {
		run.Succeed(s.now())
	}
	if saveErr := s.logs.Save(context.WithoutCancel(ctx), run); saveErr != nil {
		return run, fmt.Errorf("save sync log: %w", saveErr)
	}
	s.recorder.RecordCounters(ctx, syncrun.SyncTypeReturns, run.Counters)
	s.recorder.RecordRun(ctx, syncrun.SyncTypeReturns, run.Status, s.now().Sub(started))

	s.logger.Info("Returns sync finished",
		zap.String("run_id", run.ID.String()),
		zap.String("status", string(run.Status)),
		zap.Int("records_processed", run.Counters.Processed),
		zap.Int("records_created", run.Counters.Created),
		zap.Int("records_skipped", run.Counters.Skipped),
	)
	return run, err
}

func (s *Sync) importWindow(ctx context.Context, run *syncrun.SyncLog, window shared.DateRange) error {
	reportID, err := s.reports.Request(ctx, marketplace.ReportTypeCustomerReturns, window)
	if err != nil {
		return fmt.Errorf("request returns report: %w", err)
	}
	raw, err := s.reports.Await(ctx, reportID)
	if err != nil {
		return err
	}
	if err := s.archive.Store(ctx, marketplace.ReportTypeCustomerReturns, reportID, raw); err != nil {
		s.logger.Warn("Failed to archive report document",
			zap.String("report_id", reportID),
			zap.Error(err),
		)
	}

	table, err := reportparser.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse returns report: %w", err)
	}
	ext := reportparser.ReturnsReport.Extract(table)
	run.Counters.Processed += ext.Total
	run.Counters.Skipped += ext.Skipped

	for _, rec := range ext.Records {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.importRecord(ctx, run, rec)
	}
	return nil
}

func (s *Sync) importRecord(ctx context.Context, run *syncrun.SyncLog, rec reportparser.Record) {
	returnDate, ok := rec.Time(reportparser.FieldReturnDate)
	if !ok {
		run.Counters.Skipped++
		return
	}
	quantity := rec.Int(reportparser.FieldQuantity)
	if quantity <= 0 {
		quantity = 1
	}
	ret := &sales.Return{
		AmazonOrderID:     strings.TrimSpace(rec.Get(reportparser.FieldOrderID)),
		SKU:               strings.TrimSpace(rec.Get(reportparser.FieldSKU)),
		ASIN:              strings.TrimSpace(rec.Get(reportparser.FieldASIN)),
		FNSKU:             strings.TrimSpace(rec.Get(reportparser.FieldFNSKU)),
		ReturnDate:        returnDate,
		Quantity:          quantity,
		Reason:            rec.Get(reportparser.FieldReason),
		Disposition:       rec.Get(reportparser.FieldDisposition),
		Status:            rec.Get(reportparser.FieldReturnStatus),
		FulfillmentCenter: rec.Get(reportparser.FieldFulfillmentCenter),
	}

	created, err := s.returns.Upsert(ctx, ret)
	if err != nil {
		run.Counters.Failed++
		s.logger.Warn("Failed to upsert return",
			zap.String("amazon_order_id", ret.AmazonOrderID),
			zap.String("sku", ret.SKU),
			zap.Int("line", rec.Line),
			zap.Error(err),
		)
		return
	}
	if created {
		run.Counters.Created++
	} else {
		run.Counters.Updated++
	}

	if err := s.orders.MarkReturned(ctx, ret.AmazonOrderID); err != nil && !errors.Is(err, shared.ErrNotFound) {
		s.logger.Warn("Failed to mark order returned",
			zap.String("amazon_order_id", ret.AmazonOrderID),
			zap.Error(err),
		)
	}
	err = s.products.BackfillIdentifiers(ctx, ret.SKU, ret.ASIN, ret.FNSKU, rec.Get(reportparser.FieldTitle))
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		s.logger.Warn("Failed to backfill product identifiers",
			zap.String("sku", ret.SKU),
			zap.Error(err),
		)
	}
}
