package handler

import (
	"errors"
	"net/http"

	"github.com/erp/sellersync/internal/application/finance"
	"github.com/erp/sellersync/internal/application/ordersync"
	"github.com/erp/sellersync/internal/application/profit"
	"github.com/erp/sellersync/internal/domain/fulfillment"
	"github.com/erp/sellersync/internal/domain/marketplace"
	"github.com/erp/sellersync/internal/domain/shared"
	"github.com/erp/sellersync/internal/infrastructure/logger"
	"github.com/erp/sellersync/internal/infrastructure/scheduler"
	"github.com/erp/sellersync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID set by the logging middleware
func getRequestID(c *gin.Context) string {
	if id := logger.GetRequestID(c.Request.Context()); id != "" {
		return id
	}
	return c.GetHeader(logger.RequestIDHeader)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessList sends a listing with its size
func (h *BaseHandler) SuccessList(c *gin.Context, data any, total, limit int) {
	c.JSON(http.StatusOK, dto.NewListResponse(data, total, limit))
}

// Accepted sends a 202 for work handed to the job queue
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// Conflict sends a 409 conflict response
func (h *BaseHandler) Conflict(c *gin.Context, message string) {
	h.Error(c, http.StatusConflict, dto.ErrCodeConflict, message)
}

// ServiceUnavailable sends a 503 for features whose backend is not configured
func (h *BaseHandler) ServiceUnavailable(c *gin.Context, message string) {
	h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeUnavailable, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// conflictDetails is the current state of a shipment that could not move.
type conflictDetails struct {
	ShipmentID      string `json:"shipment_id"`
	CurrentStatus   string `json:"current_status"`
	RequestedStatus string `json:"requested_status,omitempty"`
}

// HandleError converts service errors to HTTP responses. Unrecognised
// errors are logged and reported as 500 without their text.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID := getRequestID(c)

	var conflict *fulfillment.ConflictError
	if errors.As(err, &conflict) {
		c.JSON(http.StatusConflict, dto.NewErrorResponseWithDetails(
			dto.ErrCodeReconciliationConflict,
			err.Error(),
			requestID,
			conflictDetails{
				ShipmentID:      conflict.ShipmentID,
				CurrentStatus:   string(conflict.Current),
				RequestedStatus: string(conflict.Requested),
			},
		))
		return
	}

	if code, ok := sentinelCode(err); ok {
		h.ErrorWithCode(c, code, err.Error())
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		h.ErrorWithCode(c, code, domainErr.Message)
		return
	}

	_ = c.Error(err)
	logger.GetGinLogger(c, nil).Error("Unhandled error", zap.Error(err))
	h.InternalError(c, "An unexpected error occurred")
}

func sentinelCode(err error) (string, bool) {
	switch {
	case errors.Is(err, fulfillment.ErrShipmentNotFound),
		errors.Is(err, scheduler.ErrJobNotFound):
		return dto.ErrCodeNotFound, true
	case errors.Is(err, fulfillment.ErrMissingShipmentID),
		errors.Is(err, fulfillment.ErrMissingWarehouseID),
		errors.Is(err, fulfillment.ErrUnknownAction),
		errors.Is(err, ordersync.ErrInvalidRequest):
		return dto.ErrCodeInvalidInput, true
	case errors.Is(err, finance.ErrInvalidRange):
		return dto.ErrCodeInvalidRange, true
	case errors.Is(err, fulfillment.ErrDeductionIrreversible):
		return dto.ErrCodeIrreversible, true
	case errors.Is(err, fulfillment.ErrNothingToRevert):
		return dto.ErrCodeInvalidState, true
	case errors.Is(err, profit.ErrExportDisabled),
		errors.Is(err, scheduler.ErrUnknownJobType),
		errors.Is(err, scheduler.ErrJobQueueFull),
		errors.Is(err, scheduler.ErrSchedulerNotRunning):
		return dto.ErrCodeUnavailable, true
	case errors.Is(err, marketplace.ErrNotConfigured):
		return dto.ErrCodeVendorNotConfigured, true
	case errors.Is(err, marketplace.ErrRateLimited):
		return dto.ErrCodeRateLimited, true
	case errors.Is(err, marketplace.ErrUnauthorized),
		errors.Is(err, marketplace.ErrVendorUnavailable),
		errors.Is(err, marketplace.ErrInvalidResponse),
		errors.Is(err, marketplace.ErrReportFailed),
		errors.Is(err, marketplace.ErrReportTimedOut):
		return dto.ErrCodeVendorUnavailable, true
	default:
		return "", false
	}
}
