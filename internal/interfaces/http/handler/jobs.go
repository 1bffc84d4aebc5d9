package handler

import (
	"context"

	"github.com/erp/sellersync/internal/domain/job"
	"github.com/erp/sellersync/internal/infrastructure/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// JobQueue is the part of the queue the job endpoints read and cancel.
type JobQueue interface {
	Get(ctx context.Context, id uuid.UUID) (*job.Job, error)
	List(ctx context.Context, filter job.Filter) ([]job.Job, error)
	Cancel(ctx context.Context, id uuid.UUID) (*job.Job, error)
}

// ScheduleLister lists registered cron triggers.
type ScheduleLister interface {
	Entries() []scheduler.ScheduledEntry
}

// JobHandler exposes the job queue.
type JobHandler struct {
	BaseHandler
	queue     JobQueue
	schedules ScheduleLister
}

// NewJobHandler creates a JobHandler. schedules may be nil when no cron
// triggers are configured.
func NewJobHandler(queue JobQueue, schedules ScheduleLister) *JobHandler {
	return &JobHandler{queue: queue, schedules: schedules}
}

// List handles GET /jobs?type=&status=&limit=
func (h *JobHandler) List(c *gin.Context) {
	filter := job.Filter{
		Type:   job.Type(c.Query("type")),
		Status: job.Status(c.Query("status")),
		Limit:  queryInt(c, "limit", 50),
	}
	jobs, err := h.queue.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]JobResponse, len(jobs))
	for i := range jobs {
		out[i] = newJobResponse(&jobs[i])
	}
	h.SuccessList(c, out, len(out), filter.Limit)
}

// Get handles GET /jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}
	j, err := h.queue.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, newJobResponse(j))
}

// Cancel handles POST /jobs/:id/cancel. A pending job is cancelled at once;
// a running one is flagged and stops at its next checkpoint.
func (h *JobHandler) Cancel(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}
	j, err := h.queue.Cancel(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, newJobResponse(j))
}

// Schedules handles GET /jobs/schedules
func (h *JobHandler) Schedules(c *gin.Context) {
	entries := []scheduler.ScheduledEntry{}
	if h.schedules != nil {
		entries = h.schedules.Entries()
	}
	h.SuccessList(c, entries, len(entries), 0)
}

func (h *JobHandler) jobID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid job ID format")
		return uuid.Nil, false
	}
	return id, true
}
