package syncrun

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists sync logs and pending reports.
type Repository interface {
	Create(ctx context.Context, log *SyncLog) error
	Save(ctx context.Context, log *SyncLog) error
	FindByID(ctx context.Context, id uuid.UUID) (*SyncLog, error)
	// FindResumable returns the most recent unfinished batched run of the
	// given type and shape, or shared.ErrNotFound.
	FindResumable(ctx context.Context, syncType SyncType, totalDays, batchSizeDays int) (*SyncLog, error)
	LatestSuccess(ctx context.Context, syncType SyncType) (*SyncLog, error)
	List(ctx context.Context, syncType SyncType, limit int) ([]SyncLog, error)

	FindPendingReport(ctx context.Context, logID uuid.UUID, batch int) (*PendingReport, error)
	SavePendingReport(ctx context.Context, report *PendingReport) error
}
