package fulfillment

import (
	"errors"
	"fmt"
)

var (
	ErrMissingShipmentID      = errors.New("fulfillment: shipment id is required")
	ErrMissingWarehouseID     = errors.New("fulfillment: warehouse id is required")
	ErrShipmentNotFound       = errors.New("fulfillment: shipment not found")
	ErrReconciliationConflict = errors.New("fulfillment: shipment already reconciled")
	ErrDeductionIrreversible  = errors.New("fulfillment: deducted shipments cannot be reverted")
	ErrNothingToRevert        = errors.New("fulfillment: shipment is not accepted")
	ErrUnknownAction          = errors.New("fulfillment: unknown reconciliation action")
)

// ConflictError reports the state a shipment was found in when a transition
// could not be applied.
type ConflictError struct {
	ShipmentID string
	Current    ReconciliationStatus
	Requested  ReconciliationStatus
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("fulfillment: shipment %s is %s, cannot move to %s", e.ShipmentID, e.Current, e.Requested)
}

// Is matches ErrReconciliationConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrReconciliationConflict
}
