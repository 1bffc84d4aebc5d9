package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/sellersync/internal/domain/finance"
	"github.com/erp/sellersync/internal/domain/marketplace"
	"github.com/erp/sellersync/internal/domain/sales"
	"github.com/erp/sellersync/internal/domain/shared"
	"github.com/erp/sellersync/internal/domain/syncrun"
	"github.com/erp/sellersync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var ErrInvalidRange = errors.New("finance: posted_after must be before posted_before")

// Config tunes the reconciler.
type Config struct {
	WindowDays          int
	FlushEveryKeys      int
	RateLimitWait       time.Duration
	MaxRateLimitRetries int
}

// Request selects the posted-date range to reconcile.
type Request struct {
	PostedAfter  time.Time  `json:"posted_after"`
	PostedBefore time.Time  `json:"posted_before"`
	WindowDays   int        `json:"window_days,omitempty"`
	JobID        *uuid.UUID `json:"-"`
}

// Result summarizes a reconciliation run.
type Result struct {
	RunID            uuid.UUID        `json:"run_id"`
	Status           syncrun.Status   `json:"status"`
	Windows          int              `json:"windows"`
	Pages            int              `json:"pages"`
	Events           int              `json:"events"`
	RequeuedWindows  int              `json:"requeued_windows"`
	FailedWindows    int              `json:"failed_windows"`
	RateLimitRetries int              `json:"rate_limit_retries"`
	RefundsApplied   int              `json:"refunds_applied"`
	Counters         syncrun.Counters `json:"counters"`
	Error            string           `json:"error,omitempty"`
}

type keyOutcome struct {
	updated bool
	missing bool
	failed  bool
}

// Reconciler pages the financial event feed and refines order item fees
// and revenue with the settled amounts.
type Reconciler struct {
	feed     marketplace.FinancialEventFeed
	orders   sales.OrderRepository
	returns  sales.ReturnRepository
	logs     syncrun.Repository
	recorder syncrun.Recorder
	config   Config
	logger   *zap.Logger
	now      marketplace.Clock
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the time source.
func WithClock(now marketplace.Clock) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithSleeper overrides how rate-limit backoffs are waited out.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Reconciler) { r.sleep = sleep }
}

// WithRecorder reports run metrics.
func WithRecorder(rec syncrun.Recorder) Option {
	return func(r *Reconciler) { r.recorder = rec }
}

// NewReconciler creates a new Reconciler
func NewReconciler(
	feed marketplace.FinancialEventFeed,
	orders sales.OrderRepository,
	returns sales.ReturnRepository,
	logs syncrun.Repository,
	config Config,
	logger *zap.Logger,
	opts ...Option,
) *Reconciler {
	if config.WindowDays <= 0 {
		config.WindowDays = 30
	}
	if config.FlushEveryKeys <= 0 {
		config.FlushEveryKeys = 500
	}
	if config.RateLimitWait <= 0 {
		config.RateLimitWait = time.Minute
	}
	r := &Reconciler{
		feed:     feed,
		orders:   orders,
		returns:  returns,
		logs:     logs,
		recorder: syncrun.NopRecorder{},
		config:   config,
		logger:   logger,
		now:      time.Now,
		sleep:    marketplace.SleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// run is the state of one reconciliation.
type run struct {
	req      Request
	result   *Result
	charges  *finance.Accumulator
	refunds  *finance.Accumulator
	outcomes map[finance.ItemKey]*keyOutcome
	log      *zap.Logger
}

// Run reconciles every event posted in [PostedAfter, PostedBefore). The
// range is walked in windows; a window whose NextToken expires is queued
// and replayed once with a fresh request after the other windows. When ctx
// ends, everything accumulated so far is flushed before returning.
func (r *Reconciler) Run(ctx context.Context, req Request) (*Result, error) {
	if !req.PostedAfter.Before(req.PostedBefore) {
		return nil, ErrInvalidRange
	}
	windowDays := req.WindowDays
	if windowDays <= 0 {
		windowDays = r.config.WindowDays
	}
	windows := shared.DateRange{Start: req.PostedAfter.UTC(), End: req.PostedBefore.UTC()}.
		Split(time.Duration(windowDays) * 24 * time.Hour)

	started := r.now()
	syncLog := syncrun.NewSyncLog(syncrun.SyncTypeFinancialEvents, started)
	syncLog.JobID = req.JobID
	if err := r.logs.Create(ctx, syncLog); err != nil {
		return nil, fmt.Errorf("create sync log: %w", err)
	}

	st := &run{
		req:      req,
		result:   &Result{RunID: syncLog.ID, Windows: len(windows)},
		charges:  finance.NewAccumulator(),
		refunds:  finance.NewAccumulator(),
		outcomes: make(map[finance.ItemKey]*keyOutcome),
		log:      r.logger.With(zap.String("run_id", syncLog.ID.String())),
	}
	st.log.Info("Financial event reconciliation started",
		zap.Time("posted_after", req.PostedAfter),
		zap.Time("posted_before", req.PostedBefore),
		zap.Int("windows", len(windows)),
	)

	runErr := r.walk(ctx, st, windows)

	// Flush whatever is left, even when ctx has ended.
	if err := r.flush(context.WithoutCancel(ctx), st); err != nil && runErr == nil {
		runErr = err
	}

	st.result.Counters = st.counters()
	syncLog.Counters = st.result.Counters
	if runErr != nil {
		syncLog.Fail(runErr, r.now())
	} else {
		syncLog.Succeed(r.now())
	}
	st.result.Status = syncLog.Status
	st.result.Error = syncLog.ErrorMessage
	if err := r.logs.Save(context.WithoutCancel(ctx), syncLog); err != nil {
		st.log.Error("Failed to save sync log", zap.Error(err))
	}
	r.recorder.RecordCounters(ctx, syncrun.SyncTypeFinancialEvents, syncLog.Counters)
	r.recorder.RecordRun(ctx, syncrun.SyncTypeFinancialEvents, syncLog.Status, r.now().Sub(started))

	st.log.Info("Financial event reconciliation finished",
		zap.String("status", string(syncLog.Status)),
		zap.Int("pages", st.result.Pages),
		zap.Int("events", st.result.Events),
		zap.Int("records_updated", syncLog.Counters.Updated),
		zap.Int("records_skipped", syncLog.Counters.Skipped),
		zap.Int("requeued_windows", st.result.RequeuedWindows),
	)
	return st.result, runErr
}

func (r *Reconciler) walk(ctx context.Context, st *run, windows []shared.DateRange) error {
	var requeued []int
	for i, w := range windows {
		err := r.runWindow(ctx, st, i, w)
		switch {
		case err == nil:
		case errors.Is(err, marketplace.ErrTokenExpired):
			st.log.Warn("Pagination token expired, window queued for another pass",
				zap.Int("window", i),
				zap.Time("window_start", w.Start),
			)
			requeued = append(requeued, i)
			st.result.RequeuedWindows++
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return fmt.Errorf("window %d: %w", i, err)
		}
	}

	for _, i := range requeued {
		err := r.runWindow(ctx, st, i, windows[i])
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, marketplace.ErrTokenExpired):
			st.result.FailedWindows++
			st.log.Warn("Pagination token expired twice, giving up on window",
				zap.Int("window", i),
				zap.Time("window_start", windows[i].Start),
			)
		default:
			return fmt.Errorf("window %d: %w", i, err)
		}
	}
	return nil
}

// runWindow pages one window to the end. On a rate limit the accumulator is
// flushed, the window's contributions are discarded and the window starts
// over after a backoff.
func (r *Reconciler) runWindow(ctx context.Context, st *run, index int, window shared.DateRange) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "finance", "window",
		attribute.Int("window", index),
		attribute.String("posted_after", window.Start.Format(time.RFC3339)),
		attribute.String("posted_before", window.End.Format(time.RFC3339)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	st.charges.ResetWindow(index)
	st.refunds.ResetWindow(index)

	token := ""
	retries := 0
	for {
		page, err := r.feed.ListFinancialEvents(ctx, window.Start, window.End, token)
		if err != nil {
			if ferr := r.flush(context.WithoutCancel(ctx), st); ferr != nil {
				return ferr
			}
			if !errors.Is(err, marketplace.ErrRateLimited) {
				if errors.Is(err, marketplace.ErrTokenExpired) {
					st.charges.ResetWindow(index)
					st.refunds.ResetWindow(index)
				}
				return err
			}
			if retries >= r.config.MaxRateLimitRetries {
				return fmt.Errorf("rate limited %d times: %w", retries+1, err)
			}
			retries++
			st.result.RateLimitRetries++
			wait := r.config.RateLimitWait << (retries - 1)
			st.log.Warn("Rate limited, restarting window after backoff",
				zap.Int("window", index),
				zap.Int("retry", retries),
				zap.Duration("wait", wait),
			)
			if err := r.sleep(ctx, wait); err != nil {
				return err
			}
			st.charges.ResetWindow(index)
			st.refunds.ResetWindow(index)
			token = ""
			continue
		}

		st.result.Pages++
		for _, ev := range page.Shipments {
			st.result.Events++
			st.charges.AddEvent(index, ev)
			if st.charges.DirtyCount() >= r.config.FlushEveryKeys {
				if err := r.flush(ctx, st); err != nil {
					return err
				}
			}
		}
		for _, ev := range page.Refunds {
			st.result.Events++
			st.refunds.AddEvent(index, ev)
		}
		if err := r.flush(ctx, st); err != nil {
			return err
		}

		if page.NextToken == "" {
			return nil
		}
		token = page.NextToken
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// flush writes the cumulative totals of every dirty key.
func (r *Reconciler) flush(ctx context.Context, st *run) error {
	if err := r.flushCharges(ctx, st); err != nil {
		return err
	}
	return r.flushRefunds(ctx, st)
}

func (r *Reconciler) flushCharges(ctx context.Context, st *run) error {
	if st.charges.DirtyCount() == 0 {
		return nil
	}
	dirty := st.charges.Drain()
	for key, b := range dirty {
		out := st.outcome(key)
		item, err := r.orders.FindItem(ctx, key.OrderID, key.SKU)
		if errors.Is(err, shared.ErrNotFound) {
			out.missing = true
			continue
		}
		if err != nil {
			st.charges.Restore(keysOf(dirty))
			return fmt.Errorf("load order item %s/%s: %w", key.OrderID, key.SKU, err)
		}
		if !item.ApplyFinancials(b.Financials()) {
			continue
		}
		if err := r.orders.SaveItem(ctx, item); err != nil {
			out.failed = true
			st.charges.Restore(keysOf(dirty))
			return fmt.Errorf("save order item %s/%s: %w", key.OrderID, key.SKU, err)
		}
		out.updated = true
	}
	return nil
}

func (r *Reconciler) flushRefunds(ctx context.Context, st *run) error {
	if st.refunds.DirtyCount() == 0 {
		return nil
	}
	dirty := st.refunds.Drain()
	for key, b := range dirty {
		ret, err := r.returns.FindByOrderAndSKU(ctx, key.OrderID, key.SKU)
		if errors.Is(err, shared.ErrNotFound) {
			continue
		}
		if err != nil {
			st.refunds.Restore(keysOf(dirty))
			return fmt.Errorf("load return %s/%s: %w", key.OrderID, key.SKU, err)
		}
		if !ret.BackfillRefund(b.RefundTotal()) {
			continue
		}
		if err := r.returns.Save(ctx, ret); err != nil {
			st.refunds.Restore(keysOf(dirty))
			return fmt.Errorf("save return %s/%s: %w", key.OrderID, key.SKU, err)
		}
		st.result.RefundsApplied++
	}
	return nil
}

func (st *run) outcome(key finance.ItemKey) *keyOutcome {
	out, ok := st.outcomes[key]
	if !ok {
		out = &keyOutcome{}
		st.outcomes[key] = out
	}
	return out
}

// counters counts each order line once, however often it was flushed.
func (st *run) counters() syncrun.Counters {
	var c syncrun.Counters
	for _, out := range st.outcomes {
		c.Processed++
		switch {
		case out.failed:
			c.Failed++
		case out.updated:
			c.Updated++
		case out.missing:
			c.Skipped++
		}
	}
	return c
}

func keysOf(m map[finance.ItemKey]*finance.Breakdown) []finance.ItemKey {
	keys := make([]finance.ItemKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
