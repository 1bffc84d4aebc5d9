package fulfillment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/erp/sellersync/internal/domain/fulfillment"
	"github.com/erp/sellersync/internal/domain/marketplace"
	"github.com/erp/sellersync/internal/domain/syncrun"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ShipmentSync mirrors FBA inbound shipments and their items.
type ShipmentSync struct {
	feed      marketplace.ShipmentFeed
	shipments fulfillment.ShipmentRepository
	logs      syncrun.Repository
	recorder  syncrun.Recorder
	lookback  time.Duration
	logger    *zap.Logger
	now       marketplace.Clock
}

// ShipmentSyncOption configures a ShipmentSync.
type ShipmentSyncOption func(*ShipmentSync)

// WithShipmentClock overrides the time source.
func WithShipmentClock(clock marketplace.Clock) ShipmentSyncOption {
	return func(s *ShipmentSync) { s.now = clock }
}

// WithShipmentRecorder reports run metrics to r.
func WithShipmentRecorder(r syncrun.Recorder) ShipmentSyncOption {
	return func(s *ShipmentSync) { s.recorder = r }
}

// NewShipmentSync creates a new ShipmentSync. lookback bounds how far back a
// run looks for updated shipments; zero means 30 days.
func NewShipmentSync(
	feed marketplace.ShipmentFeed,
	shipments fulfillment.ShipmentRepository,
	logs syncrun.Repository,
	lookback time.Duration,
	logger *zap.Logger,
	opts ...ShipmentSyncOption,
) *ShipmentSync {
	if lookback <= 0 {
		lookback = 30 * 24 * time.Hour
	}
	s := &ShipmentSync{
		feed:      feed,
		shipments: shipments,
		logs:      logs,
		recorder:  syncrun.NopRecorder{},
		lookback:  lookback,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run pulls shipments updated in the last lookback and upserts them. The
// reconciliation state of known shipments is never touched.
func (s *ShipmentSync) Run(ctx context.Context, jobID *uuid.UUID) (*syncrun.SyncLog, error) {
	started := s.now().UTC()
	run := syncrun.NewSyncLog(syncrun.SyncTypeFbaShipments, started)
	run.JobID = jobID
	if err := s.logs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create sync log: %w", err)
	}

	err := s.pull(ctx, run, started.Add(-s.lookback), started)
	if err != nil {
		run.Fail(err, s.now())
	} else {
		run.Succeed(s.now())
	}
	if saveErr := s.logs.Save(context.WithoutCancel(ctx), run); saveErr != nil {
		return run, fmt.Errorf("save sync log: %w", saveErr)
	}
	s.recorder.RecordCounters(ctx, syncrun.SyncTypeFbaShipments, run.Counters)
	s.recorder.RecordRun(ctx, syncrun.SyncTypeFbaShipments, run.Status, s.now().Sub(started))

	s.logger.Info("FBA shipment sync finished",
		zap.String("run_id", run.ID.String()),
		zap.String("status", string(run.Status)),
		zap.Int("records_processed", run.Counters.Processed),
		zap.Int("records_created", run.Counters.Created),
		zap.Int("records_failed", run.Counters.Failed),
	)
	return run, err
}

func (s *ShipmentSync) pull(ctx context.Context, run *syncrun.SyncLog, after, before time.Time) error {
	token := ""
	for {
		page, err := s.feed.ListInboundShipments(ctx, after, before, token)
		if err != nil {
			return fmt.Errorf("list shipments: %w", err)
		}
		for _, vs := range page.Shipments {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.mirror(ctx, run, vs); err != nil {
				return err
			}
		}
		if page.NextToken == "" {
			return nil
		}
		token = page.NextToken
	}
}

// mirror upserts one shipment. Vendor errors abort the run so the job is
// retried; a bad row is counted and skipped.
func (s *ShipmentSync) mirror(ctx context.Context, run *syncrun.SyncLog, vs marketplace.InboundShipment) error {
	run.Counters.Processed++
	id := strings.TrimSpace(vs.ShipmentID)
	if id == "" {
		run.Counters.Skipped++
		return nil
	}

	vendorItems, err := s.feed.ListInboundShipmentItems(ctx, id)
	if err != nil {
		return fmt.Errorf("list items of %s: %w", id, err)
	}
	shipment := &fulfillment.Shipment{
		ShipmentID:          id,
		Name:                vs.Name,
		VendorStatus:        vs.Status,
		DestinationCenterID: vs.DestinationCenterID,
		VendorUpdatedAt:     vs.LastUpdated.UTC(),
		Items:               make([]fulfillment.ShipmentItem, 0, len(vendorItems)),
	}
	for _, vi := range vendorItems {
		sku := strings.TrimSpace(vi.SellerSKU)
		if sku == "" {
			continue
		}
		shipment.Items = append(shipment.Items, fulfillment.ShipmentItem{
			ShipmentID:       id,
			SellerSKU:        sku,
			FNSKU:            strings.TrimSpace(vi.FNSKU),
			QuantityShipped:  vi.QuantityShipped,
			QuantityReceived: vi.QuantityReceived,
		})
	}

	created, err := s.shipments.Upsert(ctx, shipment)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		run.Counters.Failed++
		s.logger.Warn("Failed to upsert shipment",
			zap.String("shipment_id", id),
			zap.Error(err),
		)
		return nil
	}
	if created {
		run.Counters.Created++
	} else {
		run.Counters.Updated++
	}
	return nil
}

// PurgeTerminal deletes shipments reconciled more than retention ago.
func (s *ShipmentSync) PurgeTerminal(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive, got %s", retention)
	}
	n, err := s.shipments.PurgeReconciledBefore(ctx, s.now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge shipments: %w", err)
	}
	if n > 0 {
		s.logger.Info("Purged reconciled shipments", zap.Int64("count", n), zap.Duration("retention", retention))
	}
	return n, nil
}
