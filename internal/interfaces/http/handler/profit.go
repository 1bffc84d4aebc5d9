package handler

import (
	"context"
	"time"

	"github.com/erp/sellersync/internal/application/profit"
	"github.com/erp/sellersync/internal/application/syncjobs"
	"github.com/erp/sellersync/internal/domain/job"
	domainprofit "github.com/erp/sellersync/internal/domain/profit"
	"github.com/erp/sellersync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

// ProfitReader reads the daily profit projection.
type ProfitReader interface {
	Daily(ctx context.Context, from, to time.Time) ([]domainprofit.DailyProfit, error)
	Velocity(ctx context.Context, days int) ([]domainprofit.Velocity, error)
}

// ProfitHandler serves the profit projection and queues its rebuilds.
type ProfitHandler struct {
	BaseHandler
	profit        ProfitReader
	queue         Enqueuer
	exportEnabled bool
	now           func() time.Time
}

// NewProfitHandler creates a ProfitHandler. exportEnabled reports whether
// an analytics exporter is wired.
func NewProfitHandler(reader ProfitReader, queue Enqueuer, exportEnabled bool) *ProfitHandler {
	return &ProfitHandler{
		profit:        reader,
		queue:         queue,
		exportEnabled: exportEnabled,
		now:           time.Now,
	}
}

// DaysRequest is the optional body of the rebuild and export endpoints.
type DaysRequest struct {
	Days int `json:"days" binding:"omitempty,min=1,max=3650"`
}

// Daily handles GET /profit/daily?from=YYYY-MM-DD&to=YYYY-MM-DD. Both
// dates are inclusive; the default is the last 30 days.
func (h *ProfitHandler) Daily(c *gin.Context) {
	today := h.now().UTC().Truncate(24 * time.Hour)
	from := today.AddDate(0, 0, -29)
	to := today

	var err error
	if s := c.Query("from"); s != "" {
		if from, err = time.Parse(dateLayout, s); err != nil {
			h.BadRequest(c, "from must be a date in YYYY-MM-DD form")
			return
		}
	}
	if s := c.Query("to"); s != "" {
		if to, err = time.Parse(dateLayout, s); err != nil {
			h.BadRequest(c, "to must be a date in YYYY-MM-DD form")
			return
		}
	}

	rows, err := h.profit.Daily(c.Request.Context(), from, to.AddDate(0, 0, 1))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessList(c, rows, len(rows), 0)
}

// Velocity handles GET /profit/velocity?days=
func (h *ProfitHandler) Velocity(c *gin.Context) {
	rows, err := h.profit.Velocity(c.Request.Context(), queryInt(c, "days", 30))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessList(c, rows, len(rows), 0)
}

// Rebuild handles POST /profit/rebuild
func (h *ProfitHandler) Rebuild(c *gin.Context) {
	p, ok := h.bindDays(c)
	if !ok {
		return
	}
	enqueueJob(c, &h.BaseHandler, h.queue, job.TypeProfitRebuild, p)
}

// Export handles POST /profit/export
func (h *ProfitHandler) Export(c *gin.Context) {
	if !h.exportEnabled {
		h.HandleError(c, profit.ErrExportDisabled)
		return
	}
	p, ok := h.bindDays(c)
	if !ok {
		return
	}
	enqueueJob(c, &h.BaseHandler, h.queue, job.TypeProfitExport, p)
}

func (h *ProfitHandler) bindDays(c *gin.Context) (syncjobs.DaysPayload, bool) {
	var req DaysRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.HandleValidationError(c, err)
			return syncjobs.DaysPayload{}, false
		}
	}
	return syncjobs.DaysPayload{Days: req.Days}, true
}
