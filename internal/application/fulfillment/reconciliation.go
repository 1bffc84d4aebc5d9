// Package fulfillment holds the FBA inbound shipment services: mirroring
// shipments from the vendor and reconciling their effect on local stock.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/erp/sellersync/internal/domain/catalog"
	"github.com/erp/sellersync/internal/domain/fulfillment"
	"github.com/erp/sellersync/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReconciliationService previews and applies seller decisions on mirrored
// shipments.
type ReconciliationService struct {
	shipments        fulfillment.ShipmentRepository
	products         catalog.ProductRepository
	ledger           fulfillment.Ledger
	defaultWarehouse uuid.UUID
	logger           *zap.Logger
}

// NewReconciliationService creates a new ReconciliationService. A non-nil
// defaultWarehouse is used when a deduction names no warehouse.
func NewReconciliationService(
	shipments fulfillment.ShipmentRepository,
	products catalog.ProductRepository,
	ledger fulfillment.Ledger,
	defaultWarehouse uuid.UUID,
	logger *zap.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		shipments:        shipments,
		products:         products,
		ledger:           ledger,
		defaultWarehouse: defaultWarehouse,
		logger:           logger,
	}
}

// Preview computes what Apply would do without writing anything.
func (s *ReconciliationService) Preview(ctx context.Context, shipmentID string, action fulfillment.Action, warehouseID uuid.UUID) (*fulfillment.Plan, error) {
	shipmentID = strings.TrimSpace(shipmentID)
	if shipmentID == "" {
		return nil, fulfillment.ErrMissingShipmentID
	}
	to, err := action.Target()
	if err != nil {
		return nil, err
	}
	if action == fulfillment.ActionDeduct {
		if warehouseID == uuid.Nil {
			warehouseID = s.defaultWarehouse
		}
		if warehouseID == uuid.Nil {
			return nil, fulfillment.ErrMissingWarehouseID
		}
	}

	shipment, err := s.shipments.FindByID(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if !shipment.ReconciliationStatus.CanTransitionTo(to) {
		return nil, &fulfillment.ConflictError{
			ShipmentID: shipmentID,
			Current:    shipment.ReconciliationStatus,
			Requested:  to,
		}
	}

	plan := &fulfillment.Plan{
		ShipmentID: shipmentID,
		Action:     action,
		From:       shipment.ReconciliationStatus,
		To:         to,
	}
	if action != fulfillment.ActionDeduct {
		return plan, nil
	}
	plan.WarehouseID = warehouseID
	plan.Lines, err = s.planLines(ctx, shipment, warehouseID)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// planLines resolves every item to a product and projects its stock
// movement. Lines that share a product see each other's effect.
func (s *ReconciliationService) planLines(ctx context.Context, shipment *fulfillment.Shipment, warehouseID uuid.UUID) ([]fulfillment.DeductionLine, error) {
	running := make(map[string]int64)
	lines := make([]fulfillment.DeductionLine, 0, len(shipment.Items))
	for _, item := range shipment.Items {
		line := fulfillment.DeductionLine{
			SellerSKU: item.SellerSKU,
			FNSKU:     item.FNSKU,
			Shipped:   item.QuantityShipped,
		}
		product, err := s.products.Match(ctx, item.SellerSKU, item.FNSKU)
		if errors.Is(err, shared.ErrNotFound) {
			line.Skipped = true
			line.SkipReason = "no matching product"
			lines = append(lines, line)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("match %s: %w", item.SellerSKU, err)
		}
		line.MatchedSKU = product.SKU

		before, ok := running[product.SKU]
		if !ok {
			before, err = s.ledger.Available(ctx, warehouseID, product.SKU)
			if err != nil {
				return nil, fmt.Errorf("read stock of %s: %w", product.SKU, err)
			}
		}
		after, _ := fulfillment.Deduct(before, item.QuantityShipped)
		running[product.SKU] = after
		line.QuantityBefore = before
		line.QuantityAfter = after
		lines = append(lines, line)
	}
	return lines, nil
}

// Apply performs the action. A shipment that moved on since it was read
// yields a *fulfillment.ConflictError.
func (s *ReconciliationService) Apply(ctx context.Context, shipmentID string, action fulfillment.Action, warehouseID uuid.UUID) (*fulfillment.Plan, error) {
	plan, err := s.Preview(ctx, shipmentID, action, warehouseID)
	if err != nil {
		return nil, err
	}

	switch action {
	case fulfillment.ActionAccept:
		if err := s.ledger.Transition(ctx, plan.ShipmentID, plan.From, plan.To); err != nil {
			return nil, err
		}
	case fulfillment.ActionDeduct:
		lines, err := s.ledger.Deduct(ctx, plan.ShipmentID, plan.WarehouseID, plan.Lines)
		if err != nil {
			return nil, err
		}
		plan.Lines = lines
	}
	plan.Applied = true

	s.logger.Info("Shipment reconciled",
		zap.String("shipment_id", plan.ShipmentID),
		zap.String("action", string(action)),
		zap.String("status", plan.To.String()),
		zap.Int("lines", len(plan.Lines)),
		zap.Int("skipped_lines", plan.SkippedLines()),
	)
	return plan, nil
}

// Revert withdraws an acceptance. Deductions are permanent.
func (s *ReconciliationService) Revert(ctx context.Context, shipmentID string) (*fulfillment.Plan, error) {
	shipmentID = strings.TrimSpace(shipmentID)
	if shipmentID == "" {
		return nil, fulfillment.ErrMissingShipmentID
	}
	shipment, err := s.shipments.FindByID(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	switch shipment.ReconciliationStatus {
	case fulfillment.ReconciliationDeducted:
		return nil, fulfillment.ErrDeductionIrreversible
	case fulfillment.ReconciliationAccepted:
	default:
		return nil, fulfillment.ErrNothingToRevert
	}

	err = s.ledger.Transition(ctx, shipmentID, fulfillment.ReconciliationAccepted, fulfillment.ReconciliationPending)
	if err != nil {
		var conflict *fulfillment.ConflictError
		if errors.As(err, &conflict) && conflict.Current == fulfillment.ReconciliationDeducted {
			return nil, fulfillment.ErrDeductionIrreversible
		}
		return nil, err
	}
	s.logger.Info("Shipment acceptance reverted", zap.String("shipment_id", shipmentID))
	return &fulfillment.Plan{
		ShipmentID: shipmentID,
		From:       fulfillment.ReconciliationAccepted,
		To:         fulfillment.ReconciliationPending,
		Applied:    true,
	}, nil
}

// DeductOnce deducts a shipment unless its adjustments already exist, in
// which case it reports AlreadyDeducted instead of failing.
func (s *ReconciliationService) DeductOnce(ctx context.Context, shipmentID string, warehouseID uuid.UUID) (*fulfillment.Plan, error) {
	shipmentID = strings.TrimSpace(shipmentID)
	if shipmentID == "" {
		return nil, fulfillment.ErrMissingShipmentID
	}
	done, err := s.ledger.HasAdjustment(ctx, fulfillment.AdjustmentTypeFBAShipment, shipmentID)
	if err != nil {
		return nil, err
	}
	if done {
		return &fulfillment.Plan{
			ShipmentID:      shipmentID,
			Action:          fulfillment.ActionDeduct,
			To:              fulfillment.ReconciliationDeducted,
			AlreadyDeducted: true,
		}, nil
	}

	plan, err := s.Apply(ctx, shipmentID, fulfillment.ActionDeduct, warehouseID)
	var conflict *fulfillment.ConflictError
	if errors.As(err, &conflict) && conflict.Current == fulfillment.ReconciliationDeducted {
		return &fulfillment.Plan{
			ShipmentID:      shipmentID,
			Action:          fulfillment.ActionDeduct,
			From:            conflict.Current,
			To:              fulfillment.ReconciliationDeducted,
			AlreadyDeducted: true,
		}, nil
	}
	return plan, err
}

// SetStock overwrites the on-hand quantity of a SKU in a warehouse.
func (s *ReconciliationService) SetStock(ctx context.Context, warehouseID uuid.UUID, sku string, quantity int64) error {
	sku = strings.TrimSpace(sku)
	if warehouseID == uuid.Nil {
		warehouseID = s.defaultWarehouse
	}
	if warehouseID == uuid.Nil {
		return fulfillment.ErrMissingWarehouseID
	}
	if sku == "" || quantity < 0 {
		return shared.NewDomainError("INVALID_STOCK", "sku is required and quantity must not be negative")
	}
	return s.ledger.SetAvailable(ctx, warehouseID, sku, quantity, fulfillment.AdjustmentTypeStockSet, uuid.NewString())
}

// List returns mirrored shipments in the given state, or all of them.
func (s *ReconciliationService) List(ctx context.Context, status fulfillment.ReconciliationStatus, limit int) ([]fulfillment.Shipment, error) {
	if status != "" && !status.IsValid() {
		return nil, shared.NewDomainError("INVALID_STATUS", "unknown reconciliation status: "+string(status))
	}
	return s.shipments.List(ctx, status, limit)
}
