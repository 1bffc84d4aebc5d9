package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/sellersync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type limitedBody struct {
	SKU string `json:"sku" binding:"required"`
}

func newLimitedRouter(limit int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(BodyLimit(limit))
	r.POST("/stock", func(c *gin.Context) {
		var body limitedBody
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.String(http.StatusOK, body.SKU)
	})
	r.GET("/stock", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func TestBodyLimit(t *testing.T) {
	tests := []struct {
		name          string
		method        string
		body          string
		contentLength int64
		wantStatus    int
		wantBody      string
	}{
		{
			name:          "within limit",
			method:        http.MethodPost,
			body:          `{"sku":"SKU-1"}`,
			contentLength: 15,
			wantStatus:    http.StatusOK,
			wantBody:      "SKU-1",
		},
		{
			name:          "declared length over limit",
			method:        http.MethodPost,
			body:          `{"sku":"` + strings.Repeat("x", 100) + `"}`,
			contentLength: 110,
			wantStatus:    http.StatusRequestEntityTooLarge,
			wantBody:      dto.ErrCodeRequestTooLarge,
		},
		{
			name:          "undeclared length cut off while binding",
			method:        http.MethodPost,
			body:          `{"sku":"` + strings.Repeat("x", 100) + `"}`,
			contentLength: -1,
			wantStatus:    http.StatusRequestEntityTooLarge,
			wantBody:      dto.ErrCodeRequestTooLarge,
		},
		{
			name:       "no body",
			method:     http.MethodGet,
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/stock", strings.NewReader(tt.body))
			req.ContentLength = tt.contentLength
			w := httptest.NewRecorder()

			newLimitedRouter(64).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}
