package handler

import (
	"encoding/json"
	"time"

	"github.com/erp/sellersync/internal/domain/fulfillment"
	"github.com/erp/sellersync/internal/domain/job"
	"github.com/erp/sellersync/internal/domain/syncrun"
	"github.com/erp/sellersync/internal/interfaces/http/dto"
	"github.com/google/uuid"
)

// APIResponse is the envelope with a typed data field
type APIResponse[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data,omitempty"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
	Meta    *dto.Meta      `json:"meta,omitempty"`
}

// JobAcceptedResponse is returned when work is handed to the queue.
type JobAcceptedResponse struct {
	JobID uuid.UUID `json:"job_id"`
	Type  job.Type  `json:"type"`
}

// JobResponse is the API view of a queued job. Payload, progress and result
// are passed through as the JSON documents stored on the job.
type JobResponse struct {
	ID              uuid.UUID       `json:"id"`
	Type            job.Type        `json:"type"`
	Status          job.Status      `json:"status"`
	Attempts        int             `json:"attempts"`
	MaxAttempts     int             `json:"max_attempts"`
	NextRunAt       time.Time       `json:"next_run_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	LastError       string          `json:"last_error,omitempty"`
	CancelRequested bool            `json:"cancel_requested"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	Progress        json.RawMessage `json:"progress,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

func newJobResponse(j *job.Job) JobResponse {
	return JobResponse{
		ID:              j.ID,
		Type:            j.Type,
		Status:          j.Status,
		Attempts:        j.Attempts,
		MaxAttempts:     j.MaxAttempts,
		NextRunAt:       j.NextRunAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
		LastError:       j.LastError,
		CancelRequested: j.CancelRequested,
		Payload:         rawJSON(j.Payload),
		Progress:        rawJSON(j.Progress),
		Result:          rawJSON(j.Result),
		CreatedAt:       j.CreatedAt,
	}
}

// rawJSON passes a stored document through, dropping anything that is not
// valid JSON so one bad row cannot break a listing.
func rawJSON(s string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return nil
	}
	return json.RawMessage(s)
}

// SyncStatusResponse is the status object of one sync run.
type SyncStatusResponse struct {
	ID               uuid.UUID        `json:"id"`
	SyncType         syncrun.SyncType `json:"sync_type"`
	Status           syncrun.Status   `json:"status"`
	RecordsProcessed int              `json:"records_processed"`
	RecordsCreated   int              `json:"records_created"`
	RecordsUpdated   int              `json:"records_updated"`
	RecordsSkipped   int              `json:"records_skipped"`
	RecordsFailed    int              `json:"records_failed"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	StartedAt        time.Time        `json:"started_at"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	JobID            *uuid.UUID       `json:"job_id,omitempty"`
	TotalBatches     int              `json:"total_batches,omitempty"`
	NextBatch        int              `json:"next_batch,omitempty"`
}

func newSyncStatusResponse(l *syncrun.SyncLog) SyncStatusResponse {
	return SyncStatusResponse{
		ID:               l.ID,
		SyncType:         l.SyncType,
		Status:           l.Status,
		RecordsProcessed: l.Counters.Processed,
		RecordsCreated:   l.Counters.Created,
		RecordsUpdated:   l.Counters.Updated,
		RecordsSkipped:   l.Counters.Skipped,
		RecordsFailed:    l.Counters.Failed,
		ErrorMessage:     l.ErrorMessage,
		StartedAt:        l.StartedAt,
		CompletedAt:      l.CompletedAt,
		JobID:            l.JobID,
		TotalBatches:     l.Checkpoint.TotalBatches,
		NextBatch:        l.Checkpoint.NextBatch,
	}
}

// ShipmentResponse is the API view of a mirrored FBA shipment.
type ShipmentResponse struct {
	ShipmentID           string                           `json:"shipment_id"`
	Name                 string                           `json:"name"`
	VendorStatus         string                           `json:"vendor_status"`
	DestinationCenterID  string                           `json:"destination_center_id,omitempty"`
	VendorUpdatedAt      time.Time                        `json:"vendor_updated_at"`
	ReconciliationStatus fulfillment.ReconciliationStatus `json:"reconciliation_status"`
	ReconciledAt         *time.Time                       `json:"reconciled_at,omitempty"`
	WarehouseID          *uuid.UUID                       `json:"warehouse_id,omitempty"`
	TotalShipped         int64                            `json:"total_shipped"`
	Items                []ShipmentItemResponse           `json:"items"`
}

// ShipmentItemResponse is one SKU line of a shipment.
type ShipmentItemResponse struct {
	SellerSKU        string `json:"seller_sku"`
	FNSKU            string `json:"fnsku,omitempty"`
	QuantityShipped  int64  `json:"quantity_shipped"`
	QuantityReceived int64  `json:"quantity_received"`
}

func newShipmentResponse(s *fulfillment.Shipment) ShipmentResponse {
	items := make([]ShipmentItemResponse, len(s.Items))
	for i, it := range s.Items {
		items[i] = ShipmentItemResponse{
			SellerSKU:        it.SellerSKU,
			FNSKU:            it.FNSKU,
			QuantityShipped:  it.QuantityShipped,
			QuantityReceived: it.QuantityReceived,
		}
	}
	return ShipmentResponse{
		ShipmentID:           s.ShipmentID,
		Name:                 s.Name,
		VendorStatus:         s.VendorStatus,
		DestinationCenterID:  s.DestinationCenterID,
		VendorUpdatedAt:      s.VendorUpdatedAt,
		ReconciliationStatus: s.ReconciliationStatus,
		ReconciledAt:         s.ReconciledAt,
		WarehouseID:          s.WarehouseID,
		TotalShipped:         s.TotalShipped(),
		Items:                items,
	}
}

// InventoryResponse is the latest FBA stock snapshot of a SKU.
type InventoryResponse struct {
	SKU           string    `json:"sku"`
	FNSKU         string    `json:"fnsku,omitempty"`
	ASIN          string    `json:"asin,omitempty"`
	Fulfillable   int64     `json:"fulfillable"`
	Inbound       int64     `json:"inbound"`
	Reserved      int64     `json:"reserved"`
	Unfulfillable int64     `json:"unfulfillable"`
	VendorUpdated time.Time `json:"vendor_updated"`
}

func newInventoryResponse(inv *fulfillment.FbaInventory) InventoryResponse {
	return InventoryResponse{
		SKU:           inv.SKU,
		FNSKU:         inv.FNSKU,
		ASIN:          inv.ASIN,
		Fulfillable:   inv.Fulfillable,
		Inbound:       inv.Inbound,
		Reserved:      inv.Reserved,
		Unfulfillable: inv.Unfulfillable,
		VendorUpdated: inv.VendorUpdated,
	}
}
