package syncjobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/sellersync/internal/application/finance"
	"github.com/erp/sellersync/internal/application/ordersync"
	"github.com/erp/sellersync/internal/application/profit"
	"github.com/erp/sellersync/internal/domain/job"
	"github.com/erp/sellersync/internal/domain/marketplace"
	"github.com/erp/sellersync/internal/domain/syncrun"
	"github.com/erp/sellersync/internal/infrastructure/logger"
	"github.com/erp/sellersync/internal/infrastructure/scheduler"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrdersLockKey serialises the historical and incremental order syncs,
// which write the same tables.
const OrdersLockKey = "orders"

// ErrRunInterrupted is returned when a historical run stopped before its
// last batch. The queue retries the job, which resumes at the checkpoint.
var ErrRunInterrupted = errors.New("historical run interrupted before its last batch")

// HistoricalRunner runs batched and incremental order syncs.
type HistoricalRunner interface {
	Run(ctx context.Context, req ordersync.Request, onProgress ordersync.ProgressFunc) (*ordersync.RunResult, error)
	RunIncremental(ctx context.Context, lookback time.Duration, jobID *uuid.UUID) (*syncrun.SyncLog, error)
}

// FinanceRunner reconciles financial events.
type FinanceRunner interface {
	Run(ctx context.Context, req finance.Request) (*finance.Result, error)
}

// ShipmentRunner mirrors and purges FBA shipments.
type ShipmentRunner interface {
	Run(ctx context.Context, jobID *uuid.UUID) (*syncrun.SyncLog, error)
	PurgeTerminal(ctx context.Context, retention time.Duration) (int64, error)
}

// InventoryRunner snapshots FBA inventory.
type InventoryRunner interface {
	Run(ctx context.Context, jobID *uuid.UUID) (*syncrun.SyncLog, error)
}

// ReturnsRunner imports customer returns.
type ReturnsRunner interface {
	Run(ctx context.Context, lookback time.Duration, jobID *uuid.UUID) (*syncrun.SyncLog, error)
}

// ProfitRunner rebuilds and exports the daily profit projection.
type ProfitRunner interface {
	Rebuild(ctx context.Context, days int, jobID *uuid.UUID) (*syncrun.SyncLog, error)
	ExportRecent(ctx context.Context, days int) (int, error)
}

// Registrar is the part of the queue the executors need.
type Registrar interface {
	Register(jobType job.Type, handler scheduler.Handler, opts ...scheduler.HandlerOption)
}

// Executors adapts queue jobs to the sync services. A nil service leaves
// its job types unregistered.
type Executors struct {
	Orders    HistoricalRunner
	Finances  FinanceRunner
	Shipments ShipmentRunner
	Inventory InventoryRunner
	Returns   ReturnsRunner
	Profit    ProfitRunner

	// ShipmentRetention is used by purge jobs that name no retention.
	ShipmentRetention time.Duration

	Logger *zap.Logger
	now    func() time.Time
}

// Register installs a handler for every job type with a service behind it.
func (e *Executors) Register(r Registrar) {
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}

	if e.Orders != nil {
		r.Register(job.TypeOrdersHistorical, e.historical, scheduler.WithLockKey(OrdersLockKey))
		r.Register(job.TypeOrdersIncremental, e.incremental, scheduler.WithLockKey(OrdersLockKey))
	}
	if e.Finances != nil {
		r.Register(job.TypeFinancialEvents, e.finances)
	}
	if e.Shipments != nil {
		r.Register(job.TypeFbaShipments, e.shipments)
		r.Register(job.TypeFbaShipmentsPurge, e.purge)
	}
	if e.Inventory != nil {
		r.Register(job.TypeFbaInventory, e.inventory)
	}
	if e.Returns != nil {
		r.Register(job.TypeReturns, e.returns)
	}
	if e.Profit != nil {
		r.Register(job.TypeProfitRebuild, e.profitRebuild)
		r.Register(job.TypeProfitExport, e.profitExport)
	}
}

func (e *Executors) historical(ctx context.Context, j *job.Job, progress scheduler.Progress) (any, error) {
	var req HistoricalPayload
	if err := decode(j.Payload, &req); err != nil {
		return nil, scheduler.Permanent(err)
	}
	req.JobID = &j.ID
	ctx, log := logger.WithJob(ctx, e.Logger, j.ID.String(), string(j.Type))

	result, err := e.Orders.Run(ctx, req, func(p syncrun.BatchProgress) {
		progress.Report(ctx, p)
	})
	if err != nil {
		return nil, classify(err)
	}
	if result.Status == syncrun.StatusRunning {
		log.Info("Historical run stopped early; queue will resume it",
			zap.Int("next_batch", result.NextBatch),
			zap.Int("total_batches", result.TotalBatches),
		)
		return result, fmt.Errorf("%w at batch %d of %d", ErrRunInterrupted, result.NextBatch, result.TotalBatches)
	}
	if result.Status == syncrun.StatusFailed {
		return result, errors.New(result.Error)
	}
	return result, nil
}

func (e *Executors) incremental(ctx context.Context, j *job.Job, _ scheduler.Progress) (any, error) {
	var p IncrementalPayload
	if err := decode(j.Payload, &p); err != nil {
		return nil, scheduler.Permanent(err)
	}
	ctx, _ = logger.WithJob(ctx, e.Logger, j.ID.String(), string(j.Type))
	run, err := e.Orders.RunIncremental(ctx, time.Duration(p.LookbackHours)*time.Hour, &j.ID)
	return summarize(run), classify(err)
}

func (e *Executors) finances(ctx context.Context, j *job.Job, progress scheduler.Progress) (any, error) {
	var p FinancesPayload
	if err := decode(j.Payload, &p); err != nil {
		return nil, scheduler.Permanent(err)
	}
	req := financeRequest(p, e.now().UTC())
	req.JobID = &j.ID
	ctx, _ = logger.WithJob(ctx, e.Logger, j.ID.String(), string(j.Type))

	result, err := e.Finances.Run(ctx, req)
	if result != nil {
		progress.Report(ctx, result)
	}
	if errors.Is(err, finance.ErrInvalidRange) {
		return result, scheduler.Permanent(err)
	}
	return result, classify(err)
}

func financeRequest(p FinancesPayload, now time.Time) finance.Request {
	n := p.Days
	if n <= 0 {
		n = DefaultFinanceDays
	}
	req := finance.Request{
		PostedAfter:  now.Add(-days(n)),
		PostedBefore: now,
		WindowDays:   p.WindowDays,
	}
	if p.PostedAfter != nil {
		req.PostedAfter = p.PostedAfter.UTC()
	}
	if p.PostedBefore != nil {
		req.PostedBefore = p.PostedBefore.UTC()
	}
	// The vendor rejects a PostedBefore in the last two minutes.
	if latest := now.Add(-2 * time.Minute); req.PostedBefore.After(latest) {
		req.PostedBefore = latest
	}
	return req
}

func (e *Executors) shipments(ctx context.Context, j *job.Job, _ scheduler.Progress) (any, error) {
	ctx, _ = logger.WithJob(ctx, e.Logger, j.ID.String(), string(j.Type))
	run, err := e.Shipments.Run(ctx, &j.ID)
	return summarize(run), classify(err)
}

func (e *Executors) purge(ctx context.Context, j *job.Job, _ scheduler.Progress) (any, error) {
	var p PurgePayload
	if err := decode(j.Payload, &p); err != nil {
		return nil, scheduler.Permanent(err)
	}
	retention := e.ShipmentRetention
	if p.RetentionDays > 0 {
		retention = days(p.RetentionDays)
	}
	if retention <= 0 {
		return nil, scheduler.Permanent(errors.New("shipment retention is not configured"))
	}
	deleted, err := e.Shipments.PurgeTerminal(ctx, retention)
	if err != nil {
		return nil, err
	}
	return map[string]int64{"deleted": deleted}, nil
}

func (e *Executors) inventory(ctx context.Context, j *job.Job, _ scheduler.Progress) (any, error) {
	ctx, _ = logger.WithJob(ctx, e.Logger, j.ID.String(), string(j.Type))
	run, err := e.Inventory.Run(ctx, &j.ID)
	return summarize(run), classify(err)
}

func (e *Executors) returns(ctx context.Context, j *job.Job, _ scheduler.Progress) (any, error) {
	var p ReturnsPayload
	if err := decode(j.Payload, &p); err != nil {
		return nil, scheduler.Permanent(err)
	}
	ctx, _ = logger.WithJob(ctx, e.Logger, j.ID.String(), string(j.Type))
	run, err := e.Returns.Run(ctx, days(p.LookbackDays), &j.ID)
	return summarize(run), classify(err)
}

func (e *Executors) profitRebuild(ctx context.Context, j *job.Job, _ scheduler.Progress) (any, error) {
	var p DaysPayload
	if err := decode(j.Payload, &p); err != nil {
		return nil, scheduler.Permanent(err)
	}
	run, err := e.Profit.Rebuild(ctx, p.Days, &j.ID)
	return summarize(run), err
}

func (e *Executors) profitExport(ctx context.Context, j *job.Job, _ scheduler.Progress) (any, error) {
	var p DaysPayload
	if err := decode(j.Payload, &p); err != nil {
		return nil, scheduler.Permanent(err)
	}
	n, err := e.Profit.ExportRecent(ctx, p.Days)
	if errors.Is(err, profit.ErrExportDisabled) {
		return nil, scheduler.Permanent(err)
	}
	if err != nil {
		return nil, err
	}
	return map[string]int{"exported": n}, nil
}

// classify marks errors that no retry can fix as permanent.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ordersync.ErrInvalidRequest),
		errors.Is(err, marketplace.ErrNotConfigured),
		errors.Is(err, marketplace.ErrUnauthorized):
		return scheduler.Permanent(err)
	default:
		return err
	}
}

// RunSummary is the job result of the single-pass syncs.
type RunSummary struct {
	RunID    uuid.UUID        `json:"run_id"`
	Status   syncrun.Status   `json:"status"`
	Counters syncrun.Counters `json:"counters"`
	Error    string           `json:"error,omitempty"`
}

func summarize(run *syncrun.SyncLog) *RunSummary {
	if run == nil {
		return nil
	}
	return &RunSummary{
		RunID:    run.ID,
		Status:   run.Status,
		Counters: run.Counters,
		Error:    run.ErrorMessage,
	}
}
