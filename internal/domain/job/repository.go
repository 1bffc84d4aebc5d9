package job

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows a job listing. Zero values match everything.
type Filter struct {
	Type   Type
	Status Status
	Limit  int
}

// Repository persists queue records. Every state change is a conditional
// update on the current status, so concurrent workers and duplicate
// deliveries cannot run a job twice.
type Repository interface {
	Create(ctx context.Context, j *Job) error
	FindByID(ctx context.Context, id uuid.UUID) (*Job, error)
	List(ctx context.Context, filter Filter) ([]Job, error)

	// Claim moves a due PENDING job to RUNNING and counts the attempt. It
	// returns false if another worker got there first or the job is not due.
	Claim(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	Complete(ctx context.Context, id uuid.UUID, result string, now time.Time) error
	Fail(ctx context.Context, id uuid.UUID, lastError string, now time.Time) error
	Reschedule(ctx context.Context, id uuid.UUID, lastError string, nextRunAt time.Time) error
	MarkCancelled(ctx context.Context, id uuid.UUID, now time.Time) error

	// RequestCancel cancels a PENDING job outright and flags a RUNNING one
	// for cooperative cancellation. It returns the job after the change.
	RequestCancel(ctx context.Context, id uuid.UUID, now time.Time) (*Job, error)
	CancelRequested(ctx context.Context, id uuid.UUID) (bool, error)
	SaveProgress(ctx context.Context, id uuid.UUID, progress string) error

	DueIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	// ResetOrphaned returns RUNNING jobs left behind by a crashed process to
	// PENDING.
	ResetOrphaned(ctx context.Context, now time.Time) (int64, error)
}
