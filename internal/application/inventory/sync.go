// Package inventory mirrors FBA inventory summaries into local snapshots.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/sellersync/internal/domain/catalog"
	"github.com/erp/sellersync/internal/domain/fulfillment"
	"github.com/erp/sellersync/internal/domain/marketplace"
	"github.com/erp/sellersync/internal/domain/shared"
	"github.com/erp/sellersync/internal/domain/syncrun"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sync pages the FBA inventory summaries, replaces each SKU's snapshot and
// backfills catalog identifiers.
type Sync struct {
	feed      marketplace.InventoryFeed
	snapshots fulfillment.InventorySnapshotRepository
	products  catalog.ProductRepository
	logs      syncrun.Repository
	recorder  syncrun.Recorder
	logger    *zap.Logger
	now       marketplace.Clock
}

// Option configures a Sync.
type Option func(*Sync)

// WithClock overrides the time source.
func WithClock(clock marketplace.Clock) Option {
	return func(s *Sync) { s.now = clock }
}

// WithRecorder reports run metrics to r.
func WithRecorder(r syncrun.Recorder) Option {
	return func(s *Sync) { s.recorder = r }
}

// NewSync creates a new Sync
func NewSync(
	feed marketplace.InventoryFeed,
	snapshots fulfillment.InventorySnapshotRepository,
	products catalog.ProductRepository,
	logs syncrun.Repository,
	logger *zap.Logger,
	opts ...Option,
) *Sync {
	s := &Sync{
		feed:      feed,
		snapshots: snapshots,
		products:  products,
		logs:      logs,
		recorder:  syncrun.NopRecorder{},
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run walks every page of inventory summaries.
func (s *Sync) Run(ctx context.Context, jobID *uuid.UUID) (*syncrun.SyncLog, error) {
	started := s.now().UTC()
	run := syncrun.NewSyncLog(syncrun.SyncTypeFbaInventory, started)
	run.JobID = jobID
	if err := s.logs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create sync log: %w", err)
	}

	err := s.walk(ctx, run)
	if err != nil {
		run.Fail(err, s.now())
	} else {
		run.Succeed(s.now())
	}
	if saveErr := s.logs.Save(context.WithoutCancel(ctx), run); saveErr != nil {
		return run, fmt.Errorf("save sync log: %w", saveErr)
	}
	s.recorder.RecordCounters(ctx, syncrun.SyncTypeFbaInventory, run.Counters)
	s.recorder.RecordRun(ctx, syncrun.SyncTypeFbaInventory, run.Status, s.now().Sub(started))

	s.logger.Info("FBA inventory sync finished",
		zap.String("run_id", run.ID.String()),
		zap.String("status", string(run.Status)),
		zap.Int("records_processed", run.Counters.Processed),
		zap.Int("records_created", run.Counters.Created),
		zap.Int("records_updated", run.Counters.Updated),
	)
	return run, err
}

func (s *Sync) walk(ctx context.Context, run *syncrun.SyncLog) error {
	token := ""
	for {
		page, err := s.feed.ListInventorySummaries(ctx, token)
		if err != nil {
			return fmt.Errorf("list inventory summaries: %w", err)
		}
		for _, summary := range page.Summaries {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.store(ctx, run, summary)
		}
		if page.NextToken == "" {
			return nil
		}
		token = page.NextToken
	}
}

func (s *Sync) store(ctx context.Context, run *syncrun.SyncLog, summary marketplace.InventorySummary) {
	run.Counters.Processed++
	sku := strings.TrimSpace(summary.SellerSKU)
	if sku == "" {
		run.Counters.Skipped++
		return
	}
	vendorUpdated := summary.LastUpdated.UTC()
	if summary.LastUpdated.IsZero() {
		vendorUpdated = s.now().UTC()
	}

	created, err := s.snapshots.Upsert(ctx, &fulfillment.FbaInventory{
		SKU:           sku,
		FNSKU:         strings.TrimSpace(summary.FNSKU),
		ASIN:          strings.TrimSpace(summary.ASIN),
		Fulfillable:   summary.Fulfillable,
		Inbound:       summary.Inbound,
		Reserved:      summary.Reserved,
		Unfulfillable: summary.Unfulfillable,
		VendorUpdated: vendorUpdated,
	})
	if err != nil {
		run.Counters.Failed++
		s.logger.Warn("Failed to store inventory snapshot", zap.String("sku", sku), zap.Error(err))
		return
	}
	if created {
		run.Counters.Created++
	} else {
		run.Counters.Updated++
	}

	err = s.products.BackfillIdentifiers(ctx, sku, summary.ASIN, summary.FNSKU, summary.ProductName)
	if errors.Is(err, shared.ErrNotFound) {
		_, err = s.products.EnsureExists(ctx, placeholderFor(sku, summary))
	}
	if err != nil {
		s.logger.Warn("Failed to backfill product", zap.String("sku", sku), zap.Error(err))
	}
}

// Snapshots returns the latest FBA stock position of every SKU.
func (s *Sync) Snapshots(ctx context.Context) ([]fulfillment.FbaInventory, error) {
	return s.snapshots.List(ctx)
}

func placeholderFor(sku string, summary marketplace.InventorySummary) *catalog.Product {
	p := catalog.NewPlaceholder(sku, summary.ASIN, summary.ProductName)
	p.FNSKU = strings.TrimSpace(summary.FNSKU)
	return p
}
