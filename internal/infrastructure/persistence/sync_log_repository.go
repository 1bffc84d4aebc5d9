package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/sellersync/internal/domain/shared"
	"github.com/erp/sellersync/internal/domain/syncrun"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormSyncLogRepository implements syncrun.Repository using GORM
type GormSyncLogRepository struct {
	db *gorm.DB
}

// NewGormSyncLogRepository creates a new GormSyncLogRepository
func NewGormSyncLogRepository(db *gorm.DB) *GormSyncLogRepository {
	return &GormSyncLogRepository{db: db}
}

// Create inserts a new sync log
func (r *GormSyncLogRepository) Create(ctx context.Context, log *syncrun.SyncLog) error {
	if log.ID == uuid.Nil {
		log.BaseEntity = shared.NewBaseEntity()
	}
	return r.db.WithContext(ctx).Create(log).Error
}

// Save persists status, counters and checkpoint of a sync log
func (r *GormSyncLogRepository) Save(ctx context.Context, log *syncrun.SyncLog) error {
	log.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(log).Error
}

// FindByID finds a sync log by ID
func (r *GormSyncLogRepository) FindByID(ctx context.Context, id uuid.UUID) (*syncrun.SyncLog, error) {
	var log syncrun.SyncLog
	if err := r.db.WithContext(ctx).First(&log, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &log, nil
}

// FindResumable returns the newest unfinished batched run with the same shape
func (r *GormSyncLogRepository) FindResumable(ctx context.Context, syncType syncrun.SyncType, totalDays, batchSizeDays int) (*syncrun.SyncLog, error) {
	var log syncrun.SyncLog
	err := r.db.WithContext(ctx).
		Where("sync_type = ? AND status <> ? AND total_days = ? AND batch_size_days = ? AND next_batch < total_batches",
			syncType, syncrun.StatusSuccess, totalDays, batchSizeDays).
		Order("started_at DESC").
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &log, nil
}

// LatestSuccess returns the most recent successful run of a type
func (r *GormSyncLogRepository) LatestSuccess(ctx context.Context, syncType syncrun.SyncType) (*syncrun.SyncLog, error) {
	var log syncrun.SyncLog
	err := r.db.WithContext(ctx).
		Where("sync_type = ? AND status = ?", syncType, syncrun.StatusSuccess).
		Order("completed_at DESC").
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &log, nil
}

// List returns recent sync logs, newest first. An empty type lists all.
func (r *GormSyncLogRepository) List(ctx context.Context, syncType syncrun.SyncType, limit int) ([]syncrun.SyncLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit)
	if syncType != "" {
		q = q.Where("sync_type = ?", syncType)
	}
	var logs []syncrun.SyncLog
	err := q.Find(&logs).Error
	return logs, err
}

// FindPendingReport returns the report requested for a batch of a run
func (r *GormSyncLogRepository) FindPendingReport(ctx context.Context, logID uuid.UUID, batch int) (*syncrun.PendingReport, error) {
	var report syncrun.PendingReport
	err := r.db.WithContext(ctx).
		Where("sync_log_id = ? AND batch_index = ?", logID, batch).
		Order("created_at DESC").
		First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &report, nil
}

// SavePendingReport inserts or updates a pending report
func (r *GormSyncLogRepository) SavePendingReport(ctx context.Context, report *syncrun.PendingReport) error {
	if report.ID == uuid.Nil {
		report.BaseEntity = shared.NewBaseEntity()
	}
	report.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(report).Error
}
