package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/sellersync/internal/domain/job"
	"github.com/erp/sellersync/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormJobRepository implements job.Repository using GORM
type GormJobRepository struct {
	db *gorm.DB
}

// NewGormJobRepository creates a new GormJobRepository
func NewGormJobRepository(db *gorm.DB) *GormJobRepository {
	return &GormJobRepository{db: db}
}

// Create inserts a job
func (r *GormJobRepository) Create(ctx context.Context, j *job.Job) error {
	return r.db.WithContext(ctx).Create(j).Error
}

// FindByID finds a job by ID
func (r *GormJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	var j job.Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// List returns jobs newest first
func (r *GormJobRepository) List(ctx context.Context, filter job.Filter) ([]job.Job, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	var jobs []job.Job
	err := q.Find(&jobs).Error
	return jobs, err
}

// Claim implements job.Repository
func (r *GormJobRepository) Claim(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&job.Job{}).
		Where("id = ? AND status = ? AND cancel_requested = ? AND next_run_at <= ?", id, job.StatusPending, false, now).
		Updates(map[string]any{
			"status":     job.StatusRunning,
			"attempts":   gorm.Expr("attempts + 1"),
			"started_at": now,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Complete marks a running job succeeded
func (r *GormJobRepository) Complete(ctx context.Context, id uuid.UUID, result string, now time.Time) error {
	return r.finish(ctx, id, map[string]any{
		"status":       job.StatusSucceeded,
		"result":       result,
		"last_error":   "",
		"completed_at": now,
		"updated_at":   now,
	})
}

// Fail marks a running job permanently failed
func (r *GormJobRepository) Fail(ctx context.Context, id uuid.UUID, lastError string, now time.Time) error {
	return r.finish(ctx, id, map[string]any{
		"status":       job.StatusFailed,
		"last_error":   lastError,
		"completed_at": now,
		"updated_at":   now,
	})
}

// Reschedule returns a running job to PENDING for another attempt
func (r *GormJobRepository) Reschedule(ctx context.Context, id uuid.UUID, lastError string, nextRunAt time.Time) error {
	return r.finish(ctx, id, map[string]any{
		"status":      job.StatusPending,
		"last_error":  lastError,
		"next_run_at": nextRunAt,
		"updated_at":  time.Now(),
	})
}

// MarkCancelled marks a running job cancelled
func (r *GormJobRepository) MarkCancelled(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.finish(ctx, id, map[string]any{
		"status":       job.StatusCancelled,
		"completed_at": now,
		"updated_at":   now,
	})
}

func (r *GormJobRepository) finish(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&job.Job{}).
		Where("id = ? AND status = ?", id, job.StatusRunning).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return shared.ErrInvalidState
	}
	return nil
}

// RequestCancel implements job.Repository
func (r *GormJobRepository) RequestCancel(ctx context.Context, id uuid.UUID, now time.Time) (*job.Job, error) {
	db := r.db.WithContext(ctx)

	res := db.Model(&job.Job{}).
		Where("id = ? AND status = ?", id, job.StatusPending).
		Updates(map[string]any{
			"status":           job.StatusCancelled,
			"cancel_requested": true,
			"completed_at":     now,
			"updated_at":       now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if err := db.Model(&job.Job{}).
			Where("id = ? AND status = ?", id, job.StatusRunning).
			Updates(map[string]any{"cancel_requested": true, "updated_at": now}).Error; err != nil {
			return nil, err
		}
	}
	return r.FindByID(ctx, id)
}

// CancelRequested reports whether cancellation was requested for a job
func (r *GormJobRepository) CancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var j job.Job
	if err := r.db.WithContext(ctx).Select("id", "cancel_requested").First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, shared.ErrNotFound
		}
		return false, err
	}
	return j.CancelRequested, nil
}

// SaveProgress stores the latest progress document of a running job
func (r *GormJobRepository) SaveProgress(ctx context.Context, id uuid.UUID, progress string) error {
	return r.db.WithContext(ctx).Model(&job.Job{}).
		Where("id = ?", id).
		Updates(map[string]any{"progress": progress, "updated_at": time.Now()}).Error
}

// DueIDs returns PENDING jobs whose next run time has passed, oldest first
func (r *GormJobRepository) DueIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	var jobs []job.Job
	err := r.db.WithContext(ctx).
		Select("id").
		Where("status = ? AND cancel_requested = ? AND next_run_at <= ?", job.StatusPending, false, now).
		Order("next_run_at").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	return ids, nil
}

// ResetOrphaned implements job.Repository. Jobs whose cancellation was
// requested are cancelled instead. The interrupted attempt is not refunded.
func (r *GormJobRepository) ResetOrphaned(ctx context.Context, now time.Time) (int64, error) {
	db := r.db.WithContext(ctx)
	if err := db.Model(&job.Job{}).
		Where("status = ? AND cancel_requested = ?", job.StatusRunning, true).
		Updates(map[string]any{
			"status":       job.StatusCancelled,
			"completed_at": now,
			"updated_at":   now,
		}).Error; err != nil {
		return 0, err
	}
	res := db.Model(&job.Job{}).
		Where("status = ?", job.StatusRunning).
		Updates(map[string]any{
			"status":      job.StatusPending,
			"next_run_at": now,
			"last_error":  "interrupted by restart",
			"updated_at":  now,
		})
	return res.RowsAffected, res.Error
}
