package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/erp/sellersync/internal/application/ordersync"
	"github.com/erp/sellersync/internal/application/syncjobs"
	"github.com/erp/sellersync/internal/domain/job"
	"github.com/erp/sellersync/internal/domain/syncrun"
	"github.com/erp/sellersync/internal/infrastructure/logger"
	"github.com/erp/sellersync/internal/interfaces/http/dto"
	"github.com/erp/sellersync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HistoricalRunner runs a batched historical order sync in the request.
type HistoricalRunner interface {
	Run(ctx context.Context, req ordersync.Request, onProgress ordersync.ProgressFunc) (*ordersync.RunResult, error)
}

// Enqueuer hands work to the job queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType job.Type, payload any) (uuid.UUID, error)
}

// RunLocker is the cross-process lock the queue holds while a sync runs.
type RunLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

// SyncLogReader lists recent sync runs.
type SyncLogReader interface {
	List(ctx context.Context, syncType syncrun.SyncType, limit int) ([]syncrun.SyncLog, error)
}

// SyncHandler starts syncs and reports on their runs.
type SyncHandler struct {
	BaseHandler
	orders    HistoricalRunner
	queue     Enqueuer
	logs      SyncLogReader
	locker    RunLocker
	wallClock time.Duration
	logger    *zap.Logger
}

// SyncHandlerOption configures a SyncHandler
type SyncHandlerOption func(*SyncHandler)

// WithRunLocker makes synchronous runs take the lock queued order syncs use.
func WithRunLocker(l RunLocker) SyncHandlerOption {
	return func(h *SyncHandler) {
		h.locker = l
	}
}

// WithSyncLogger sets the handler logger
func WithSyncLogger(l *zap.Logger) SyncHandlerOption {
	return func(h *SyncHandler) {
		h.logger = l
	}
}

// NewSyncHandler creates a SyncHandler. wallClock bounds a synchronous
// historical run.
func NewSyncHandler(orders HistoricalRunner, queue Enqueuer, logs SyncLogReader, wallClock time.Duration, opts ...SyncHandlerOption) *SyncHandler {
	h := &SyncHandler{
		orders:    orders,
		queue:     queue,
		logs:      logs,
		wallClock: wallClock,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HistoricalSyncRequest starts or resumes a batched historical order sync.
type HistoricalSyncRequest struct {
	TotalDays     int  `json:"total_days" form:"total_days" binding:"required,min=1,max=3650"`
	BatchSizeDays int  `json:"batch_size_days" form:"batch_size_days" binding:"required,min=1,ltefield=TotalDays"`
	NewestFirst   bool `json:"newest_first" form:"newest_first"`
	Async         bool `json:"async" form:"async"`
}

func (r HistoricalSyncRequest) toRequest() ordersync.Request {
	return ordersync.Request{
		TotalDays:     r.TotalDays,
		BatchSizeDays: r.BatchSizeDays,
		NewestFirst:   r.NewestFirst,
	}
}

// RunHistorical handles POST /sync/orders/historical. An async request is
// queued; otherwise the run executes until it finishes or the wall clock
// elapses, and a result with status running means "call again".
func (h *SyncHandler) RunHistorical(c *gin.Context) {
	var req HistoricalSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	if req.Async {
		h.enqueue(c, job.TypeOrdersHistorical, req.toRequest())
		return
	}
	if h.orders == nil {
		h.ServiceUnavailable(c, "historical order sync is not configured")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.wallClock)
	defer cancel()

	release, ok := h.lock(ctx, c)
	if !ok {
		return
	}
	defer release()

	result, err := h.orders.Run(ctx, req.toRequest(), nil)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// StreamHistorical handles GET /sync/orders/historical/stream. It runs like
// RunHistorical and streams every batch state change as a server-sent
// event, ending with a result or error event.
func (h *SyncHandler) StreamHistorical(c *gin.Context) {
	var req HistoricalSyncRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	if h.orders == nil {
		h.ServiceUnavailable(c, "historical order sync is not configured")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.wallClock)
	defer cancel()

	release, ok := h.lock(ctx, c)
	if !ok {
		return
	}
	defer release()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	events := make(chan syncrun.BatchProgress, 64)
	type outcome struct {
		result *ordersync.RunResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := h.orders.Run(ctx, req.toRequest(), func(p syncrun.BatchProgress) {
			select {
			case events <- p:
			case <-ctx.Done():
			}
		})
		done <- outcome{result: result, err: err}
	}()

	log := logger.GetGinLogger(c, h.logger)
	for {
		select {
		case p := <-events:
			writeEvent(c.Writer, "progress", p)
			c.Writer.Flush()
		case out := <-done:
			// Drain what the run emitted before it returned.
			for drained := false; !drained; {
				select {
				case p := <-events:
					writeEvent(c.Writer, "progress", p)
				default:
					drained = true
				}
			}
			if out.err != nil {
				log.Warn("Streamed historical sync failed", zap.Error(out.err))
				writeEvent(c.Writer, "error", gin.H{"message": out.err.Error()})
			} else {
				writeEvent(c.Writer, "result", out.result)
			}
			c.Writer.Flush()
			return
		}
	}
}

func writeEvent(w io.Writer, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(`{}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// lock takes the order sync lock for the duration of a synchronous run.
// It writes the error response itself when the lock is not granted.
func (h *SyncHandler) lock(ctx context.Context, c *gin.Context) (func(), bool) {
	if h.locker == nil {
		return func() {}, true
	}
	token, ok, err := h.locker.TryLock(ctx, syncjobs.OrdersLockKey, h.wallClock+time.Minute)
	if err != nil {
		logger.GetGinLogger(c, h.logger).Error("Run lock unavailable", zap.Error(err))
		h.ServiceUnavailable(c, "run lock unavailable")
		return nil, false
	}
	if !ok {
		h.Conflict(c, "an order sync is already running")
		return nil, false
	}
	return func() {
		if err := h.locker.Unlock(context.WithoutCancel(ctx), syncjobs.OrdersLockKey, token); err != nil {
			h.logger.Warn("Failed to release run lock", zap.Error(err))
		}
	}, true
}

// SyncOrders handles POST /sync/orders: queue an incremental order sync.
func (h *SyncHandler) SyncOrders(c *gin.Context) {
	var p syncjobs.IncrementalPayload
	if !h.bindOptional(c, &p) {
		return
	}
	h.enqueue(c, job.TypeOrdersIncremental, p)
}

// SyncFinances handles POST /sync/finances.
func (h *SyncHandler) SyncFinances(c *gin.Context) {
	var p syncjobs.FinancesPayload
	if !h.bindOptional(c, &p) {
		return
	}
	if p.PostedAfter != nil && p.PostedBefore != nil && !p.PostedAfter.Before(*p.PostedBefore) {
		h.ErrorWithCode(c, dto.ErrCodeInvalidRange, "posted_after must be before posted_before")
		return
	}
	h.enqueue(c, job.TypeFinancialEvents, p)
}

// SyncShipments handles POST /sync/shipments.
func (h *SyncHandler) SyncShipments(c *gin.Context) {
	h.enqueue(c, job.TypeFbaShipments, nil)
}

// SyncInventory handles POST /sync/inventory.
func (h *SyncHandler) SyncInventory(c *gin.Context) {
	h.enqueue(c, job.TypeFbaInventory, nil)
}

// SyncReturns handles POST /sync/returns.
func (h *SyncHandler) SyncReturns(c *gin.Context) {
	var p syncjobs.ReturnsPayload
	if !h.bindOptional(c, &p) {
		return
	}
	h.enqueue(c, job.TypeReturns, p)
}

// ListLogs handles GET /sync/logs?type=&limit=
func (h *SyncHandler) ListLogs(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	logs, err := h.logs.List(c.Request.Context(), syncrun.SyncType(c.Query("type")), limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]SyncStatusResponse, len(logs))
	for i := range logs {
		out[i] = newSyncStatusResponse(&logs[i])
	}
	h.SuccessList(c, out, len(out), limit)
}

func (h *SyncHandler) enqueue(c *gin.Context, jobType job.Type, payload any) {
	enqueueJob(c, &h.BaseHandler, h.queue, jobType, payload)
}

// bindOptional binds a JSON body when one was sent.
func (h *SyncHandler) bindOptional(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		middleware.HandleValidationError(c, err)
		return false
	}
	return true
}

func enqueueJob(c *gin.Context, h *BaseHandler, queue Enqueuer, jobType job.Type, payload any) {
	id, err := queue.Enqueue(c.Request.Context(), jobType, payload)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, JobAcceptedResponse{JobID: id, Type: jobType})
}

// queryInt reads a positive integer query parameter, or def.
func queryInt(c *gin.Context, name string, def int) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
