// Package ordersync imports orders from the vendor's flat-file order
// reports: a batched historical backfill that can be resumed, and a short
// incremental sync over recently updated orders.
package ordersync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/sellersync/internal/domain/marketplace"
	"github.com/erp/sellersync/internal/domain/shared"
	"github.com/erp/sellersync/internal/domain/syncrun"
	"github.com/erp/sellersync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const day = 24 * time.Hour

var (
	ErrInvalidRequest   = errors.New("ordersync: total_days and batch_size_days must be positive and batch_size_days <= total_days")
	ErrAllBatchesFailed = errors.New("ordersync: every batch failed")
)

// Config tunes the orchestrator.
type Config struct {
	// ReportTypes are tried in order when a report ends CANCELLED or FATAL.
	ReportTypes     []string
	InterBatchDelay time.Duration
	// IncrementalLookback is the window of the incremental sync.
	IncrementalLookback time.Duration
}

// Request describes a historical run. Two requests with the same
// TotalDays and BatchSizeDays share a checkpoint.
type Request struct {
	TotalDays     int        `json:"total_days"`
	BatchSizeDays int        `json:"batch_size_days"`
	NewestFirst   bool       `json:"newest_first"`
	JobID         *uuid.UUID `json:"-"`
}

// Validate checks the request shape.
func (r Request) Validate() error {
	if r.TotalDays <= 0 || r.BatchSizeDays <= 0 || r.BatchSizeDays > r.TotalDays {
		return ErrInvalidRequest
	}
	return nil
}

// RunResult is the outcome of one invocation. Status running means the
// invocation stopped early and a later call with the same request resumes.
type RunResult struct {
	RunID         uuid.UUID        `json:"run_id"`
	Status        syncrun.Status   `json:"status"`
	Resumed       bool             `json:"resumed"`
	TotalBatches  int              `json:"total_batches"`
	NextBatch     int              `json:"next_batch"`
	FailedBatches int              `json:"failed_batches"`
	Counters      syncrun.Counters `json:"counters"`
	RangeStart    time.Time        `json:"range_start"`
	RangeEnd      time.Time        `json:"range_end"`
	Error         string           `json:"error,omitempty"`
}

// ProgressFunc receives every batch state change.
type ProgressFunc func(syncrun.BatchProgress)

// Orchestrator runs batched historical order syncs.
type Orchestrator struct {
	reports  marketplace.ReportFetcher
	archive  marketplace.ReportArchive
	ingestor *Ingestor
	logs     syncrun.Repository
	recorder syncrun.Recorder
	config   Config
	logger   *zap.Logger
	now      marketplace.Clock
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now marketplace.Clock) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithSleeper overrides how the inter-batch delay is waited out.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// WithArchive stores every downloaded document.
func WithArchive(a marketplace.ReportArchive) Option {
	return func(o *Orchestrator) { o.archive = a }
}

// WithRecorder reports run metrics.
func WithRecorder(r syncrun.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(
	reports marketplace.ReportFetcher,
	ingestor *Ingestor,
	logs syncrun.Repository,
	config Config,
	logger *zap.Logger,
	opts ...Option,
) *Orchestrator {
	if len(config.ReportTypes) == 0 {
		config.ReportTypes = []string{marketplace.ReportTypeOrdersByOrderDate}
	}
	o := &Orchestrator{
		reports:  reports,
		archive:  marketplace.NopArchive{},
		ingestor: ingestor,
		logs:     logs,
		recorder: syncrun.NopRecorder{},
		config:   config,
		logger:   logger,
		now:      time.Now,
		sleep:    marketplace.SleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes or resumes a historical run. Batches run one after another.
// A batch whose report fails or times out is skipped; the run fails only
// if every batch failed. When ctx ends, or the vendor throttles or is
// unavailable, the run is left running with its checkpoint on the current
// batch and the partial result is returned without error. The batch's
// pending report is awaited again on the next call.
func (o *Orchestrator) Run(ctx context.Context, req Request, onProgress ProgressFunc) (*RunResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if onProgress == nil {
		onProgress = func(syncrun.BatchProgress) {}
	}

	run, resumed, err := o.openRun(ctx, req)
	if err != nil {
		return nil, err
	}
	cp := &run.Checkpoint
	windows := batchWindows(*cp.RangeStart, *cp.RangeEnd, req.BatchSizeDays, cp.NewestFirst)
	started := o.now()

	log := o.logger.With(
		zap.String("run_id", run.ID.String()),
		zap.Int("total_batches", cp.TotalBatches),
	)
	log.Info("Historical order sync started",
		zap.Bool("resumed", resumed),
		zap.Int("next_batch", cp.NextBatch),
		zap.Time("range_start", *cp.RangeStart),
		zap.Time("range_end", *cp.RangeEnd),
	)

	var paused error
	first := cp.NextBatch
	for b := first; b < cp.TotalBatches; b++ {
		if b > first {
			if err := o.sleep(ctx, o.config.InterBatchDelay); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		window := windows[b]
		progress := syncrun.BatchProgress{
			RunID:        run.ID.String(),
			Batch:        b,
			TotalBatches: cp.TotalBatches,
			WindowStart:  window.Start,
			WindowEnd:    window.End,
		}
		counters, err := o.runBatch(ctx, run, b, window, func(state syncrun.BatchState, reportID string, c syncrun.Counters) {
			progress.State = state
			if reportID != "" {
				progress.ReportID = reportID
			}
			progress.BatchCounts = c
			progress.Totals = run.Counters
			onProgress(progress)
		})
		if err != nil && ctx.Err() != nil {
			// Interrupted mid-batch: keep the checkpoint on this batch so the
			// next call repeats it. Upserts are idempotent.
			break
		}
		if err != nil && marketplace.IsTransient(err) {
			paused = err
			log.Warn("Batch paused by vendor",
				zap.Int("batch", b),
				zap.Error(err),
			)
			break
		}
		run.Counters.Add(counters)
		if err != nil {
			cp.FailedBatches++
			log.Warn("Batch skipped",
				zap.Int("batch", b),
				zap.Time("window_start", window.Start),
				zap.Error(err),
			)
			progress.State = syncrun.BatchSkipped
			progress.Error = err.Error()
		} else {
			progress.State = syncrun.BatchFlushed
			progress.Error = ""
		}
		progress.BatchCounts = counters
		progress.Totals = run.Counters
		cp.NextBatch = b + 1

		if err := o.logs.Save(context.WithoutCancel(ctx), run); err != nil {
			return nil, fmt.Errorf("save checkpoint: %w", err)
		}
		o.recorder.RecordCounters(ctx, syncrun.SyncTypeOrdersHistorical, counters)
		onProgress(progress)
	}

	if !cp.Done() {
		if err := o.logs.Save(context.WithoutCancel(ctx), run); err != nil {
			return nil, fmt.Errorf("save checkpoint: %w", err)
		}
		log.Info("Historical order sync interrupted", zap.Int("next_batch", cp.NextBatch))
		res := o.result(run, resumed)
		if paused != nil {
			res.Error = paused.Error()
		}
		return res, nil
	}

	if cp.FailedBatches >= cp.TotalBatches {
		run.Fail(fmt.Errorf("%w (%d batches)", ErrAllBatchesFailed, cp.TotalBatches), o.now())
	} else {
		run.Succeed(o.now())
	}
	if err := o.logs.Save(context.WithoutCancel(ctx), run); err != nil {
		return nil, fmt.Errorf("save sync log: %w", err)
	}
	o.recorder.RecordRun(ctx, syncrun.SyncTypeOrdersHistorical, run.Status, o.now().Sub(started))
	log.Info("Historical order sync finished",
		zap.String("status", string(run.Status)),
		zap.Int("failed_batches", cp.FailedBatches),
		zap.Int("records_created", run.Counters.Created),
		zap.Int("records_updated", run.Counters.Updated),
	)
	return o.result(run, resumed), nil
}

// openRun resumes the newest unfinished run with the same shape or starts
// a new one ending now.
func (o *Orchestrator) openRun(ctx context.Context, req Request) (*syncrun.SyncLog, bool, error) {
	run, err := o.logs.FindResumable(ctx, syncrun.SyncTypeOrdersHistorical, req.TotalDays, req.BatchSizeDays)
	if err == nil && run.Checkpoint.RangeStart != nil && run.Checkpoint.RangeEnd != nil {
		if run.Status != syncrun.StatusRunning {
			run.Status = syncrun.StatusRunning
			run.CompletedAt = nil
			run.ErrorMessage = ""
		}
		return run, true, nil
	}
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, false, fmt.Errorf("find resumable run: %w", err)
	}

	now := o.now().UTC()
	end := now
	start := end.Add(-time.Duration(req.TotalDays) * day)
	run = syncrun.NewSyncLog(syncrun.SyncTypeOrdersHistorical, now)
	run.JobID = req.JobID
	run.Checkpoint = syncrun.Checkpoint{
		RangeStart:    &start,
		RangeEnd:      &end,
		TotalDays:     req.TotalDays,
		BatchSizeDays: req.BatchSizeDays,
		TotalBatches:  (req.TotalDays + req.BatchSizeDays - 1) / req.BatchSizeDays,
		NewestFirst:   req.NewestFirst,
	}
	if err := o.logs.Create(ctx, run); err != nil {
		return nil, false, fmt.Errorf("create sync log: %w", err)
	}
	return run, false, nil
}

type emitFunc func(state syncrun.BatchState, reportID string, c syncrun.Counters)

func (o *Orchestrator) runBatch(ctx context.Context, run *syncrun.SyncLog, batch int, window shared.DateRange, emit emitFunc) (counters syncrun.Counters, err error) {
	ctx, span := telemetry.StartSpan(ctx, "ordersync", "batch",
		attribute.String("run_id", run.ID.String()),
		attribute.Int("batch", batch),
		attribute.String("window_start", window.Start.Format(time.RFC3339)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	emit(syncrun.BatchFetching, "", syncrun.Counters{})
	reportType, reportID, raw, err := o.fetchBatch(ctx, run.ID, batch, window)
	if err != nil {
		return syncrun.Counters{}, err
	}
	if err := o.archive.Store(ctx, reportType, reportID, raw); err != nil {
		o.logger.Warn("Failed to archive report document",
			zap.String("report_id", reportID),
			zap.Error(err),
		)
	}

	emit(syncrun.BatchParsing, reportID, syncrun.Counters{})
	groups, skipped, err := o.ingestor.Parse(raw)
	if err != nil {
		return syncrun.Counters{}, fmt.Errorf("parse report %s: %w", reportID, err)
	}

	emit(syncrun.BatchUpserting, reportID, syncrun.Counters{Skipped: skipped})
	counters, err = o.ingestor.Upsert(ctx, groups)
	counters.Skipped += skipped
	return counters, err
}

// fetchBatch returns the document of the batch's report, reusing the report
// requested by an earlier invocation when there is one.
func (o *Orchestrator) fetchBatch(ctx context.Context, runID uuid.UUID, batch int, window shared.DateRange) (string, string, []byte, error) {
	pending, err := o.logs.FindPendingReport(ctx, runID, batch)
	switch {
	case err == nil && pending.Status != syncrun.PendingReportFailed:
		raw, err := o.await(ctx, pending)
		if err == nil || !errors.Is(err, marketplace.ErrReportFailed) {
			return pending.ReportType, pending.ReportID, raw, err
		}
	case err != nil && !errors.Is(err, shared.ErrNotFound):
		return "", "", nil, fmt.Errorf("find pending report: %w", err)
	}

	var lastErr error
	for _, reportType := range o.config.ReportTypes {
		reportID, err := o.reports.Request(ctx, reportType, window)
		if err != nil {
			return reportType, "", nil, fmt.Errorf("request %s: %w", reportType, err)
		}
		pending := syncrun.NewPendingReport(runID, batch, reportType, reportID, window)
		if err := o.logs.SavePendingReport(ctx, pending); err != nil {
			return reportType, reportID, nil, fmt.Errorf("save pending report: %w", err)
		}

		raw, err := o.await(ctx, pending)
		if err == nil {
			return reportType, reportID, raw, nil
		}
		if !errors.Is(err, marketplace.ErrReportFailed) {
			return reportType, reportID, nil, err
		}
		lastErr = err
		o.logger.Warn("Report failed, trying next report type",
			zap.String("report_type", reportType),
			zap.String("report_id", reportID),
			zap.Error(err),
		)
	}
	return "", "", nil, lastErr
}

// await waits for a pending report and records how it settled.
func (o *Orchestrator) await(ctx context.Context, pending *syncrun.PendingReport) ([]byte, error) {
	raw, err := o.reports.Await(ctx, pending.ReportID)
	status := pending.Status
	switch {
	case err == nil:
		status = syncrun.PendingReportDone
	case errors.Is(err, marketplace.ErrReportFailed):
		status = syncrun.PendingReportFailed
	case errors.Is(err, marketplace.ErrReportTimedOut):
		status = syncrun.PendingReportTimedOut
	}
	if status != pending.Status {
		pending.Status = status
		if err != nil {
			pending.Error = err.Error()
		}
		if saveErr := o.logs.SavePendingReport(context.WithoutCancel(ctx), pending); saveErr != nil {
			o.logger.Warn("Failed to update pending report",
				zap.String("report_id", pending.ReportID),
				zap.Error(saveErr),
			)
		}
	}
	return raw, err
}

func (o *Orchestrator) result(run *syncrun.SyncLog, resumed bool) *RunResult {
	cp := run.Checkpoint
	res := &RunResult{
		RunID:         run.ID,
		Status:        run.Status,
		Resumed:       resumed,
		TotalBatches:  cp.TotalBatches,
		NextBatch:     cp.NextBatch,
		FailedBatches: cp.FailedBatches,
		Counters:      run.Counters,
		Error:         run.ErrorMessage,
	}
	if cp.RangeStart != nil {
		res.RangeStart = *cp.RangeStart
	}
	if cp.RangeEnd != nil {
		res.RangeEnd = *cp.RangeEnd
	}
	return res
}

// batchWindows splits [start, end) into windows of batchDays. Newest-first
// runs walk the windows from the end of the range.
func batchWindows(start, end time.Time, batchDays int, newestFirst bool) []shared.DateRange {
	windows := shared.DateRange{Start: start, End: end}.Split(time.Duration(batchDays) * day)
	if newestFirst {
		for i, j := 0, len(windows)-1; i < j; i, j = i+1, j-1 {
			windows[i], windows[j] = windows[j], windows[i]
		}
	}
	return windows
}
