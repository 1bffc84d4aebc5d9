package middleware

import (
	"errors"
	"net/http"

	"github.com/erp/sellersync/internal/infrastructure/logger"
	"github.com/erp/sellersync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// BodyLimit rejects request bodies larger than maxBytes. A declared length
// over the limit is refused before the handler runs; an undeclared one is
// cut off while it is read, and the binding error reports it as 413.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			logger.GetGinLogger(c, nil).Warn("Request body too large")
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, tooLarge(c))
			return
		}
		if c.Request.Body != nil && c.Request.Body != http.NoBody {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func tooLarge(c *gin.Context) dto.Response {
	return dto.NewErrorResponseWithRequestID(dto.ErrCodeRequestTooLarge,
		"Request body exceeds maximum allowed size", logger.GetRequestID(c.Request.Context()))
}
